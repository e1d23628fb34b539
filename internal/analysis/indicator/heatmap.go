package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"btcpulse/internal/market"
)

// DayStat 是日历热力图的一格：一天的开收与涨跌幅。
type DayStat struct {
	Date      string  `json:"date"` // 2006-01-02
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	ReturnPct float64 `json:"return_pct"`
	Bars      int     `json:"bars"`
}

// DailyStats aggregates 5-minute bars into per-day open/close/return rows.
// Percentages go through decimal to keep the displayed values free of
// float accumulation noise. Days come out in ascending order.
func DailyStats(series market.Series, loc *time.Location) []DayStat {
	if loc == nil {
		loc = time.UTC
	}
	var out []DayStat
	var cur *DayStat
	for _, b := range series {
		day := b.Timestamp.In(loc).Format("2006-01-02")
		if cur == nil || cur.Date != day {
			if cur != nil {
				finishDay(cur)
				out = append(out, *cur)
			}
			cur = &DayStat{Date: day, Open: b.Open, High: b.High, Low: b.Low}
		}
		cur.Close = b.Close
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low || cur.Low == 0 {
			cur.Low = b.Low
		}
		cur.Bars++
	}
	if cur != nil {
		finishDay(cur)
		out = append(out, *cur)
	}
	return out
}

func finishDay(d *DayStat) {
	if d.Open == 0 {
		return
	}
	open := decimal.NewFromFloat(d.Open)
	diff := decimal.NewFromFloat(d.Close).Sub(open)
	pct := diff.Div(open).Mul(decimal.NewFromInt(100)).Round(2)
	d.ReturnPct, _ = pct.Float64()
}

// MaxDrawdown 返回区间内的最大回撤（负百分比）与峰值出现时间。
func MaxDrawdown(series market.Series) (float64, time.Time) {
	if len(series) == 0 {
		return 0, time.Time{}
	}
	peak := decimal.NewFromFloat(series[0].Close)
	peakAt := series[0].Timestamp
	worst := decimal.Zero
	worstPeakAt := peakAt
	for _, b := range series[1:] {
		c := decimal.NewFromFloat(b.Close)
		if c.GreaterThan(peak) {
			peak = c
			peakAt = b.Timestamp
			continue
		}
		if peak.IsZero() {
			continue
		}
		dd := c.Sub(peak).Div(peak).Mul(decimal.NewFromInt(100))
		if dd.LessThan(worst) {
			worst = dd
			worstPeakAt = peakAt
		}
	}
	out, _ := worst.Round(2).Float64()
	return out, worstPeakAt
}
