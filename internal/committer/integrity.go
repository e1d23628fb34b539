package committer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"btcpulse/internal/market"
)

// Gap 表示序列里缺失的连续 5 分钟区间。
type Gap struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Count int       `json:"count"`
}

// ScanGaps 扫描升序序列中缺失的 5 分钟整点。输入假定已去重排序
// （Merge 的输出满足），返回为空表示区间完整。
func ScanGaps(bars []market.Bar) []Gap {
	if len(bars) < 2 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Timestamp
		next := bars[i].Timestamp
		missing := int(next.Sub(prev)/market.BarPeriod) - 1
		if missing <= 0 {
			continue
		}
		gaps = append(gaps, Gap{
			From:  prev.Add(market.BarPeriod),
			To:    next.Add(-market.BarPeriod),
			Count: missing,
		})
	}
	return gaps
}

// Table 把提交结果渲染成终端表格。
func (r Report) Table() string {
	if r.UpToDate {
		return "数据已是最新"
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Rows", "Added", "From", "To", "Gaps"})
	for _, f := range r.Files {
		t.AppendRow(table.Row{
			f.Path,
			f.Rows,
			f.Added,
			formatTS(f.From),
			formatTS(f.To),
			summarizeGaps(f.Gaps),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "duration", r.Duration.Truncate(time.Millisecond)})
	return t.Render()
}

func formatTS(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04")
}

func summarizeGaps(gaps []Gap) string {
	if len(gaps) == 0 {
		return "none"
	}
	total := 0
	parts := make([]string, 0, len(gaps))
	for _, g := range gaps {
		total += g.Count
		if len(parts) < 3 {
			parts = append(parts, g.From.Format("01-02 15:04"))
		}
	}
	return fmt.Sprintf("%d bars (%s)", total, strings.Join(parts, ", "))
}
