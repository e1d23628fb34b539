package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"btcpulse/internal/market"
)

// Settings 控制展示层指标的参数。
type Settings struct {
	RSIPeriod     int     `json:"rsi_period,omitempty"`
	RSIOversold   float64 `json:"rsi_oversold,omitempty"`
	RSIOverbought float64 `json:"rsi_overbought,omitempty"`
}

// IndicatorValue 单个指标的最新值与可选的完整序列。
type IndicatorValue struct {
	Latest float64   `json:"latest"`
	Series []float64 `json:"series,omitempty"`
	State  string    `json:"state,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// Report 汇总展示层用到的全部指标。纯粹消费合并后的序列，不做任何同步工作。
type Report struct {
	Count  int                       `json:"count"`
	Values map[string]IndicatorValue `json:"values"`
}

// Compute computes the dashboard indicators over a merged series.
func Compute(series market.Series, cfg Settings) (Report, error) {
	rep := Report{Count: len(series), Values: make(map[string]IndicatorValue)}
	if len(series) == 0 {
		return rep, fmt.Errorf("no bars")
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOverbought == 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOversold == 0 {
		cfg.RSIOversold = 30
	}

	closes := make([]float64, len(series))
	for i, b := range series {
		closes[i] = b.Close
	}

	if len(closes) > cfg.RSIPeriod {
		rsiSeries := talib.Rsi(closes, cfg.RSIPeriod)
		// 前 RSIPeriod 位是暖机区，其后全部有效；0 也是合法读数（极端单边下跌），
		// 所以直接取最后一位，不做跳零。
		rsiVal := rsiSeries[len(rsiSeries)-1]
		state := "neutral"
		switch {
		case rsiVal >= cfg.RSIOverbought:
			state = "overbought"
		case rsiVal <= cfg.RSIOversold:
			state = "oversold"
		}
		rep.Values["rsi"] = IndicatorValue{
			Latest: rsiVal,
			Series: rsiSeries,
			State:  state,
			Note:   fmt.Sprintf("RSI%d", cfg.RSIPeriod),
		}
	}

	dd, peakAt := MaxDrawdown(series)
	rep.Values["max_drawdown"] = IndicatorValue{
		Latest: dd,
		Note:   fmt.Sprintf("peak %s", peakAt.Format("2006-01-02")),
	}
	return rep, nil
}
