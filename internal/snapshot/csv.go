package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"btcpulse/internal/market"
)

// 快照列头。source 列可选，其余必填。
var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// 快照里时间戳的两种可接受写法：pandas 默认格式与 RFC3339。
var timestampLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

// ParseCSV 解析快照文本为 Bar 列表，按时间升序返回。
// 首行必须是包含全部必填列的列头；数据行里无法解析的时间戳视为整体失败，
// 脏数值列按 0 处理（与上游 to_numeric(errors=coerce) 的行为对齐）。
func ParseCSV(r io.Reader) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("读取快照列头失败: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("快照缺少必填列 %q", col)
		}
	}
	srcIdx, hasSource := idx["source"]

	var bars []market.Bar
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第 %d 行解析失败: %w", line, err)
		}
		ts, err := parseTimestamp(field(row, idx["timestamp"]))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行时间戳非法: %w", line, err)
		}
		b := market.Bar{
			Timestamp: ts,
			Open:      parseFloat(field(row, idx["open"])),
			High:      parseFloat(field(row, idx["high"])),
			Low:       parseFloat(field(row, idx["low"])),
			Close:     parseFloat(field(row, idx["close"])),
			Volume:    parseFloat(field(row, idx["volume"])),
			Source:    market.SourceSnapshot,
		}
		if hasSource {
			if s := strings.TrimSpace(field(row, srcIdx)); s != "" {
				b.Source = s
			}
		}
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法识别的时间格式 %q", raw)
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseFloat(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}

// formatTimestamp 输出与既有数据文件一致的 pandas 风格时间戳。
func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04:05+00:00")
}
