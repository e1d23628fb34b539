package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcpulse/internal/committer"
	"btcpulse/internal/config"
	"btcpulse/internal/gateway/binance"
	"btcpulse/internal/gateway/coinbase"
	"btcpulse/internal/logger"
	"btcpulse/internal/market"
)

func main() {
	cfgPath := flag.String("config", "", "TOML 配置文件路径")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		logger.Errorf("[fetcher] %v", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	defaultStart, err := cfg.Fetch.DefaultStartTime()
	if err != nil {
		return err
	}

	src := coinbase.New(coinbase.Config{
		BaseURL:     cfg.Coinbase.BaseURL,
		ProductID:   cfg.Coinbase.ProductID,
		HTTPTimeout: time.Duration(cfg.Coinbase.HTTPTimeoutSeconds) * time.Second,
		ChunkHours:  cfg.Coinbase.ChunkHours,
		MaxRequests: cfg.Coinbase.MaxRequests,
	})
	var alt market.Source
	if cfg.Binance.Enabled {
		alt = binance.New(binance.Config{Symbol: cfg.Binance.Symbol})
	}

	c, err := committer.New(committer.Config{
		DataDir:       cfg.Data.Dir,
		DefaultStart:  defaultStart,
		MaxDaysPerRun: cfg.Fetch.MaxDaysPerRun,
	}, src, alt)
	if err != nil {
		return err
	}

	report, err := c.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(report.Table())
	return nil
}
