package market

import "time"

// BarPeriod 固定 K 线周期：5 分钟。整个系统只处理这一种粒度。
const BarPeriod = 5 * time.Minute

// GranularitySeconds 远端查询使用的粒度参数（秒）。
const GranularitySeconds = int(BarPeriod / time.Second)

// 来源标记。Source 仅作展示用途，不参与 Bar 身份判定。
const (
	SourceSnapshot = "snapshot"
	SourceCoinbase = "coinbase"
	SourceBinance  = "binance"
)

// Bar 表示一根固定周期的 OHLCV K 线。
// 身份只由 Timestamp 决定：时间戳相同的两根 Bar 是同一条逻辑记录。
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Source    string    `json:"source,omitempty"`
}

// Aligned 判断时间戳是否落在 5 分钟整点上。
func (b Bar) Aligned() bool {
	return b.Timestamp.Equal(b.Timestamp.Truncate(BarPeriod))
}
