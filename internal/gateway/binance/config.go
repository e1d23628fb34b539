package binance

// Config 描述 Binance 对照数据源的参数。该源是可选的，
// 只用于提交任务里的第二份数据文件。
type Config struct {
	Symbol string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Symbol == "" {
		out.Symbol = "BTCUSDT"
	}
	return out
}
