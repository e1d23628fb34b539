package coinbase

import "time"

// Config 描述 Coinbase Exchange 数据源的运行参数。
type Config struct {
	BaseURL     string
	ProductID   string
	HTTPTimeout time.Duration
	// ChunkHours 分段回补时单次请求覆盖的小时数（单请求约 300 根上限）。
	ChunkHours int
	// MaxRequests 单次回补的请求总数安全上限。
	MaxRequests int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = "https://api.exchange.coinbase.com"
	}
	if out.ProductID == "" {
		out.ProductID = "BTC-USD"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 30 * time.Second
	}
	if out.ChunkHours <= 0 {
		out.ChunkHours = 24
	}
	if out.MaxRequests <= 0 {
		out.MaxRequests = 500
	}
	return out
}
