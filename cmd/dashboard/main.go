package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"btcpulse/internal/config"
	"btcpulse/internal/gateway/coinbase"
	"btcpulse/internal/logger"
	"btcpulse/internal/market"
	"btcpulse/internal/render"
	"btcpulse/internal/snapshot"
	"btcpulse/internal/store"
	"btcpulse/internal/syncer"
	transport "btcpulse/internal/transport/http"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "TOML 配置文件路径")
		screenshot = flag.String("screenshot", "", "服务起来后截一张仪表盘图到该路径并退出")
	)
	flag.Parse()

	if err := run(*cfgPath, *screenshot); err != nil {
		logger.Errorf("[dashboard] %v", err)
		os.Exit(1)
	}
}

func run(cfgPath, screenshotPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	kv, err := store.OpenSQLiteStateStore(cfg.Sync.StatePath)
	if err != nil {
		return fmt.Errorf("打开状态库失败: %w", err)
	}
	defer kv.Close()

	src := coinbase.New(coinbase.Config{
		BaseURL:     cfg.Coinbase.BaseURL,
		ProductID:   cfg.Coinbase.ProductID,
		HTTPTimeout: time.Duration(cfg.Coinbase.HTTPTimeoutSeconds) * time.Second,
		ChunkHours:  cfg.Coinbase.ChunkHours,
		MaxRequests: cfg.Coinbase.MaxRequests,
	})
	loader := snapshot.NewLoader(cfg.Data.File)

	engine, err := syncer.New(syncer.Config{
		RefreshInterval: cfg.Sync.RefreshInterval(),
		StatusInterval:  cfg.Sync.StatusInterval(),
		FreshnessBuffer: cfg.Sync.FreshnessBuffer(),
		FailureCeiling:  cfg.Sync.FailureCeiling,
		Enabled:         cfg.Sync.Enabled,
	}, loader, src, kv, nil)
	if err != nil {
		return err
	}

	seriesStore := store.NewMemorySeriesStore()
	engine.AddListener(syncer.Listener{
		OnData: func(s market.Series) {
			if err := seriesStore.Set(context.Background(), s); err != nil {
				logger.Warnf("[dashboard] 序列写入失败: %v", err)
			}
		},
		OnStatus: func(st syncer.Status) {
			logger.Debugf("[dashboard] %s: %s", st.State, st.Message)
		},
	})

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("引擎启动失败: %w", err)
	}
	defer engine.Stop()

	server, err := transport.NewServer(transport.Config{
		Addr:   cfg.HTTP.Addr,
		Engine: engine,
		Series: seriesStore,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("[dashboard] HTTP 服务监听 %s", cfg.HTTP.Addr)
		return server.Start(gctx)
	})
	if screenshotPath != "" {
		g.Go(func() error {
			defer cancel() // 截完即退
			// 等首轮同步与图表渲染就绪。
			select {
			case <-time.After(3 * time.Second):
			case <-gctx.Done():
				return gctx.Err()
			}
			png, err := render.Screenshot(gctx, "http://127.0.0.1"+cfg.HTTP.Addr+"/", 30*time.Second)
			if err != nil {
				return err
			}
			return render.Save(screenshotPath, png)
		})
	}
	return g.Wait()
}
