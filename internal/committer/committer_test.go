package committer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"btcpulse/internal/market"
	"btcpulse/internal/snapshot"
)

type fakeRangeFetcher struct {
	calls []struct{ start, end time.Time }
	bars  []market.Bar
	err   error
}

func (f *fakeRangeFetcher) CandlesRange(ctx context.Context, start, end time.Time) ([]market.Bar, error) {
	f.calls = append(f.calls, struct{ start, end time.Time }{start, end})
	return f.bars, f.err
}

func mkBar(ts time.Time, close float64, source string) market.Bar {
	return market.Bar{Timestamp: ts, Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 1, Source: source}
}

var committerNow = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func newTestCommitter(t *testing.T, dir string, fetcher *fakeRangeFetcher) *Committer {
	t.Helper()
	c, err := New(Config{
		DataDir:       dir,
		DefaultStart:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		MaxDaysPerRun: 7,
	}, fetcher, nil)
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	c.now = func() time.Time { return committerNow }
	return c
}

func TestRunFreshStartCapsWindow(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeRangeFetcher{bars: []market.Bar{
		mkBar(start, 100, market.SourceCoinbase),
		mkBar(start.Add(5*time.Minute), 101, market.SourceCoinbase),
	}}
	c := newTestCommitter(t, dir, fetcher)

	report, err := c.Run(t.Context())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("应发起一次回补，实际 %d", len(fetcher.calls))
	}
	call := fetcher.calls[0]
	if !call.start.Equal(start) {
		t.Fatalf("无既有数据时应从 DefaultStart 开始: %v", call.start)
	}
	// 2025-06-01 + 7 天 = 06-08，早于 now，所以窗口被封顶。
	if !call.end.Equal(start.AddDate(0, 0, 7)) {
		t.Fatalf("窗口应按 MaxDaysPerRun 封顶: %v", call.end)
	}

	if report.UpToDate {
		t.Fatal("有缺口时不应报告已是最新")
	}
	if len(report.Files) != 2 {
		t.Fatalf("应产出 coinbase + combined 两个文件，实际 %d", len(report.Files))
	}
	for _, name := range []string{FileCoinbase, FileCombined} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("文件 %s 未写出: %v", name, err)
		}
	}
	if report.Files[0].Rows != 2 || report.Files[0].Added != 2 {
		t.Fatalf("行数统计错误: %+v", report.Files[0])
	}
}

func TestRunResumesAfterLastBarAndExistingWins(t *testing.T) {
	dir := t.TempDir()
	last := committerNow.Add(-time.Hour)
	existing := []market.Bar{
		mkBar(last.Add(-5*time.Minute), 100, market.SourceCoinbase),
		mkBar(last, 101, market.SourceCoinbase),
	}
	if err := snapshot.WriteFile(filepath.Join(dir, FileCoinbase), existing); err != nil {
		t.Fatalf("预写既有文件失败: %v", err)
	}

	// 拉回的数据故意与最后一根重叠且数值冲突。
	fetcher := &fakeRangeFetcher{bars: []market.Bar{
		mkBar(last, 999, market.SourceCoinbase),
		mkBar(last.Add(5*time.Minute), 102, market.SourceCoinbase),
	}}
	c := newTestCommitter(t, dir, fetcher)

	report, err := c.Run(t.Context())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	call := fetcher.calls[0]
	if !call.start.Equal(last.Add(5 * time.Minute)) {
		t.Fatalf("续传起点应为最后一根 + 一个周期: %v", call.start)
	}
	if !call.end.Equal(committerNow) {
		t.Fatalf("终点应为当前时间: %v", call.end)
	}

	f, err := os.Open(filepath.Join(dir, FileCoinbase))
	if err != nil {
		t.Fatalf("读回失败: %v", err)
	}
	defer f.Close()
	bars, err := snapshot.ParseCSV(f)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("合并后应 3 根，实际 %d", len(bars))
	}
	if bars[1].Close != 101 {
		t.Fatalf("重叠行应保留既有数值，实际 %v", bars[1].Close)
	}
	if report.Files[0].Added != 1 {
		t.Fatalf("新增数应为 1: %+v", report.Files[0])
	}
}

func TestRunUpToDate(t *testing.T) {
	dir := t.TempDir()
	existing := []market.Bar{mkBar(committerNow.Add(-market.BarPeriod), 100, market.SourceCoinbase)}
	if err := snapshot.WriteFile(filepath.Join(dir, FileCoinbase), existing); err != nil {
		t.Fatalf("预写既有文件失败: %v", err)
	}
	fetcher := &fakeRangeFetcher{}
	c := newTestCommitter(t, dir, fetcher)
	// 最后一根 + 5 分钟正好等于 now：起点不早于终点，无事可做。
	report, err := c.Run(t.Context())
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if !report.UpToDate {
		t.Fatal("应报告已是最新")
	}
	if len(fetcher.calls) != 0 {
		t.Fatal("已是最新时不应发请求")
	}
}

func TestScanGaps(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := []market.Bar{
		mkBar(base, 1, market.SourceCoinbase),
		mkBar(base.Add(5*time.Minute), 2, market.SourceCoinbase),
		// 缺 10m、15m 两根。
		mkBar(base.Add(20*time.Minute), 3, market.SourceCoinbase),
	}
	gaps := ScanGaps(bars)
	if len(gaps) != 1 {
		t.Fatalf("应发现 1 个缺口，实际 %d", len(gaps))
	}
	g := gaps[0]
	if g.Count != 2 || !g.From.Equal(base.Add(10*time.Minute)) || !g.To.Equal(base.Add(15*time.Minute)) {
		t.Fatalf("缺口定位错误: %+v", g)
	}

	if got := ScanGaps(bars[:2]); got != nil {
		t.Fatalf("连续序列不应有缺口: %+v", got)
	}
}
