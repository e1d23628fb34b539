package binance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"btcpulse/internal/market"
)

const interval5m = "5m"

// Source 实现 market.Source，通过官方 SDK 拉取现货 5 分钟 K 线。
type Source struct {
	cfg    Config
	client *gobinance.Client
}

// New 创建匿名只读客户端；K 线接口不需要鉴权。
func New(cfg Config) *Source {
	return &Source{
		cfg:    cfg.withDefaults(),
		client: gobinance.NewClient("", ""),
	}
}

func (s *Source) Candles(ctx context.Context, start, end time.Time) ([]market.Bar, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("%w: binance source not initialized", market.ErrFetchFailed)
	}
	ks, err := s.client.NewKlinesService().
		Symbol(s.cfg.Symbol).
		Interval(interval5m).
		StartTime(start.UTC().UnixMilli()).
		EndTime(end.UTC().UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrFetchFailed, err)
	}
	out := make([]market.Bar, 0, len(ks))
	for _, k := range ks {
		if k == nil {
			continue
		}
		out = append(out, market.Bar{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			Source:    market.SourceBinance,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func parseFloat(raw string) float64 {
	f, _ := strconv.ParseFloat(raw, 64)
	return f
}
