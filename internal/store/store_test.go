package store

import (
	"path/filepath"
	"testing"
	"time"

	"btcpulse/internal/market"
)

func mkBar(minute int, close float64) market.Bar {
	return market.Bar{
		Timestamp: time.Date(2025, 6, 1, 0, minute, 0, 0, time.UTC),
		Close:     close,
		Source:    market.SourceCoinbase,
	}
}

func TestMemorySeriesStoreCopies(t *testing.T) {
	s := NewMemorySeriesStore()
	in := market.Series{mkBar(0, 1), mkBar(5, 2)}
	if err := s.Set(t.Context(), in); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	// 写入后改原切片不应影响存储。
	in[0].Close = 999
	got, err := s.Get(t.Context())
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got[0].Close != 1 {
		t.Fatal("存储应持有拷贝而非共享底层数组")
	}

	// 读出来的切片改了也不应影响存储。
	got[1].Close = 888
	again, _ := s.Get(t.Context())
	if again[1].Close != 2 {
		t.Fatal("读取应返回拷贝")
	}
}

func TestMemorySeriesStoreWindow(t *testing.T) {
	s := NewMemorySeriesStore()
	series := make(market.Series, 0, 10)
	for i := 0; i < 10; i++ {
		series = append(series, mkBar(i*5, float64(i)))
	}
	if err := s.Set(t.Context(), series); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	start := time.Date(2025, 6, 1, 0, 10, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC)
	got, err := s.Window(t.Context(), start, end, 0)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("闭区间 [10m, 30m] 应有 5 根，实际 %d", len(got))
	}

	// limit 只保留最近 limit 根。
	got, _ = s.Window(t.Context(), time.Time{}, time.Time{}, 3)
	if len(got) != 3 || got[0].Close != 7 {
		t.Fatalf("limit=3 应返回最后 3 根，实际 %+v", got)
	}
}

func TestMemoryStateStoreRoundtrip(t *testing.T) {
	s := NewMemoryStateStore()
	if _, ok, err := s.Get(t.Context(), KeyLastSyncAt); err != nil || ok {
		t.Fatalf("空库读取: ok=%v err=%v", ok, err)
	}
	if err := s.Set(t.Context(), KeyLastSyncAt, "1750000000"); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	v, ok, err := s.Get(t.Context(), KeyLastSyncAt)
	if err != nil || !ok || v != "1750000000" {
		t.Fatalf("回读不一致: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestSQLiteStateStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSQLiteStateStore(path)
	if err != nil {
		t.Fatalf("打开失败: %v", err)
	}

	if err := s.Set(t.Context(), KeyEnabled, "false"); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	// upsert 覆盖旧值。
	if err := s.Set(t.Context(), KeyEnabled, "true"); err != nil {
		t.Fatalf("覆盖写失败: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}

	// 重开验证持久化。
	s2, err := OpenSQLiteStateStore(path)
	if err != nil {
		t.Fatalf("重开失败: %v", err)
	}
	defer s2.Close()
	v, ok, err := s2.Get(t.Context(), KeyEnabled)
	if err != nil || !ok || v != "true" {
		t.Fatalf("持久化回读不一致: v=%q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := s2.Get(t.Context(), "missing"); ok {
		t.Fatal("不存在的键应返回 ok=false")
	}
}
