package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config 是整个进程的运行配置，来源于一个 TOML 文件。
// 缺省值在 Default 里给出，文件里只需要写想覆盖的键。
type Config struct {
	LogLevel string `toml:"log_level"`

	Data     DataConfig     `toml:"data"`
	Sync     SyncConfig     `toml:"sync"`
	Coinbase CoinbaseConfig `toml:"coinbase"`
	Binance  BinanceConfig  `toml:"binance"`
	Fetch    FetchConfig    `toml:"fetch"`
	HTTP     HTTPConfig     `toml:"http"`
}

// DataConfig 指定快照数据的位置：本地路径或 http(s) 地址。
type DataConfig struct {
	File string `toml:"file"`
	Dir  string `toml:"dir"`
}

// SyncConfig 对应同步引擎的调度参数。
type SyncConfig struct {
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"`
	StatusIntervalSeconds  int    `toml:"status_interval_seconds"`
	FreshnessBufferSeconds int    `toml:"freshness_buffer_seconds"`
	FailureCeiling         int    `toml:"failure_ceiling"`
	Enabled                bool   `toml:"enabled"`
	StatePath              string `toml:"state_path"`
}

func (c SyncConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}
func (c SyncConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalSeconds) * time.Second
}
func (c SyncConfig) FreshnessBuffer() time.Duration {
	return time.Duration(c.FreshnessBufferSeconds) * time.Second
}

type CoinbaseConfig struct {
	BaseURL            string `toml:"base_url"`
	ProductID          string `toml:"product_id"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ChunkHours         int    `toml:"chunk_hours"`
	MaxRequests        int    `toml:"max_requests"`
}

type BinanceConfig struct {
	Enabled bool   `toml:"enabled"`
	Symbol  string `toml:"symbol"`
}

// FetchConfig 只被提交任务（cmd/fetcher）使用。
type FetchConfig struct {
	DefaultStart  string `toml:"default_start"` // YYYY-MM-DD
	MaxDaysPerRun int    `toml:"max_days_per_run"`
}

func (c FetchConfig) DefaultStartTime() (time.Time, error) {
	if c.DefaultStart == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", c.DefaultStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("default_start 格式应为 YYYY-MM-DD: %w", err)
	}
	return ts.UTC(), nil
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default 返回全部缺省值。
func Default() Config {
	return Config{
		LogLevel: "info",
		Data: DataConfig{
			File: "data/bitcoin_5m_combined.csv",
			Dir:  "data",
		},
		Sync: SyncConfig{
			RefreshIntervalSeconds: 300,
			StatusIntervalSeconds:  30,
			FreshnessBufferSeconds: 90,
			FailureCeiling:         3,
			Enabled:                true,
			StatePath:              "data/btcpulse_state.db",
		},
		Coinbase: CoinbaseConfig{},
		Binance:  BinanceConfig{Symbol: "BTCUSDT"},
		Fetch:    FetchConfig{DefaultStart: "2025-01-01", MaxDaysPerRun: 7},
		HTTP:     HTTPConfig{Addr: ":8088"},
	}
}

// Load 读取 TOML 配置；path 为空或文件不存在时直接用缺省值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("读取配置失败: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}
