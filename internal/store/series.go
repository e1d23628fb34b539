package store

import (
	"context"
	"sync"
	"time"

	"btcpulse/internal/market"
)

// SeriesStore 抽象：保存引擎产出的合并序列，供展示层查询。
type SeriesStore interface {
	Set(ctx context.Context, series market.Series) error
	Get(ctx context.Context) (market.Series, error)
	Window(ctx context.Context, start, end time.Time, limit int) (market.Series, error)
}

// MemorySeriesStore 内存实现。引擎每次成功同步后整体替换，读取返回拷贝。
type MemorySeriesStore struct {
	mu     sync.RWMutex
	series market.Series
}

func NewMemorySeriesStore() *MemorySeriesStore {
	return &MemorySeriesStore{}
}

// Set 全量替换当前序列。
func (s *MemorySeriesStore) Set(ctx context.Context, series market.Series) error {
	dst := series.Clone()
	s.mu.Lock()
	s.series = dst
	s.mu.Unlock()
	return nil
}

// Get 返回拷贝。
func (s *MemorySeriesStore) Get(ctx context.Context) (market.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series.Clone(), nil
}

// Window 返回 [start, end] 内的子序列；limit > 0 时只保留最近 limit 根。
// start/end 为零值时表示不限制对应端。
func (s *MemorySeriesStore) Window(ctx context.Context, start, end time.Time, limit int) (market.Series, error) {
	s.mu.RLock()
	cur := s.series
	s.mu.RUnlock()

	out := make(market.Series, 0, len(cur))
	for _, b := range cur {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Latest 返回最后一根 Bar；空序列时 ok 为 false。
func (s *MemorySeriesStore) Latest(ctx context.Context) (market.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series.Latest()
}
