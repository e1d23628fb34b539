package http

import (
	"fmt"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"btcpulse/internal/analysis/indicator"
	"btcpulse/internal/market"
	"btcpulse/internal/syncer"
)

// 首页 K 线只画最近三天，整段序列走 /api/series 查询。
const klinePageBars = 3 * 24 * 12

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func dashboardPage(series market.Series, days []indicator.DayStat, st syncer.Status) *components.Page {
	page := components.NewPage()
	page.PageTitle = "BTC Pulse"
	page.AddCharts(klineChart(series, st), heatmapChart(days))
	return page
}

func klineChart(series market.Series, st syncer.Status) *charts.Kline {
	if len(series) > klinePageBars {
		series = series[len(series)-klinePageBars:]
	}
	x := make([]string, 0, len(series))
	data := make([]opts.KlineData, 0, len(series))
	for _, b := range series {
		x = append(x, b.Timestamp.UTC().Format("01-02 15:04"))
		// echarts K 线的取值顺序是 [open, close, low, high]。
		data = append(data, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "BTC-USD · 5m",
			Subtitle: fmt.Sprintf("%s · %s", st.State, st.Message),
		}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 60, End: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	kline.SetXAxis(x).AddSeries("BTC-USD", data)
	return kline
}

// heatmapChart 把日收益铺成 周 × 星期 的热力图。
func heatmapChart(days []indicator.DayStat) *charts.HeatMap {
	weeks := make([]string, 0)
	weekIdx := make(map[string]int)
	data := make([]opts.HeatMapData, 0, len(days))
	min, max := 0.0, 0.0
	for _, d := range days {
		ts, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			continue
		}
		wk := weekStart(ts).Format("01-02")
		xi, ok := weekIdx[wk]
		if !ok {
			xi = len(weeks)
			weekIdx[wk] = xi
			weeks = append(weeks, wk)
		}
		yi := (int(ts.Weekday()) + 6) % 7 // 周一为 0
		data = append(data, opts.HeatMapData{Value: [3]interface{}{xi, yi, d.ReturnPct}})
		if d.ReturnPct < min {
			min = d.ReturnPct
		}
		if d.ReturnPct > max {
			max = d.ReturnPct
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "日收益热力图（%）"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: weeks}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: weekdays}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        float32(min),
			Max:        float32(max),
			InRange:    &opts.VisualMapInRange{Color: []string{"#c23531", "#f4f4f4", "#3f8600"}},
		}),
	)
	hm.AddSeries("daily return", data)
	return hm
}

func weekStart(ts time.Time) time.Time {
	offset := (int(ts.Weekday()) + 6) % 7
	return ts.AddDate(0, 0, -offset)
}
