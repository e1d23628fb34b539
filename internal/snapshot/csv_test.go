package snapshot

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"btcpulse/internal/market"
)

const sampleCSV = `timestamp,open,high,low,close,volume
2025-06-01 00:05:00+00:00,101,103,100,102,5.5
2025-06-01T00:10:00Z,102,104,101,103,6.5
2025-06-01 00:00:00+00:00,100,102,99,101,4.5
`

func TestParseCSVMixedLayoutsSorted(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("期望 3 根，实际 %d", len(bars))
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range bars {
		if !b.Timestamp.Equal(want.Add(time.Duration(i) * 5 * time.Minute)) {
			t.Fatalf("第 %d 根时间戳乱序: %v", i, b.Timestamp)
		}
		if b.Source != market.SourceSnapshot {
			t.Fatalf("缺省 source 应为 %q，实际 %q", market.SourceSnapshot, b.Source)
		}
	}
	if bars[1].Close != 102 || bars[1].Volume != 5.5 {
		t.Fatalf("数值解析错误: %+v", bars[1])
	}
}

func TestParseCSVMissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("timestamp,open,high,low,volume\n"))
	if err == nil || !strings.Contains(err.Error(), "close") {
		t.Fatalf("缺列应报错并指明列名，实际: %v", err)
	}
}

func TestParseCSVBadTimestampFatalDirtyNumberCoerced(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("timestamp,open,high,low,close,volume\nnot-a-time,1,2,3,4,5\n")); err == nil {
		t.Fatal("非法时间戳应整体失败")
	}
	bars, err := ParseCSV(strings.NewReader("timestamp,open,high,low,close,volume\n2025-06-01 00:00:00+00:00,abc,2,1,1.5,\n"))
	if err != nil {
		t.Fatalf("脏数值不应整体失败: %v", err)
	}
	if bars[0].Open != 0 || bars[0].Volume != 0 {
		t.Fatalf("脏数值应按 0 处理: %+v", bars[0])
	}
}

func TestParseCSVSourceColumn(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader("timestamp,open,high,low,close,volume,source\n2025-06-01 00:00:00+00:00,1,2,1,1.5,3,coinbase\n"))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if bars[0].Source != "coinbase" {
		t.Fatalf("source 列未生效: %q", bars[0].Source)
	}
}

func TestWriteFileRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "snap.csv")
	in := []market.Bar{
		{Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3, Source: market.SourceCoinbase},
		{Timestamp: time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 4, Source: market.SourceCoinbase},
	}
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读回失败: %v", err)
	}
	out, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("解析写回文件失败: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("行数不符: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if !out[i].Timestamp.Equal(in[i].Timestamp) || out[i].Close != in[i].Close || out[i].Source != in[i].Source {
			t.Fatalf("第 %d 根回读不一致: %+v vs %+v", i, out[i], in[i])
		}
	}
}

func TestHTTPLoaderCacheBuster(t *testing.T) {
	var gotTS []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTS = append(gotTS, r.URL.Query().Get("_ts"))
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	l := NewHTTPLoader(srv.URL + "/data/bitcoin_5m_combined.csv")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	l.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	for i := 0; i < 2; i++ {
		bars, err := l.Load(t.Context())
		if err != nil {
			t.Fatalf("第 %d 次加载失败: %v", i+1, err)
		}
		if len(bars) != 3 {
			t.Fatalf("第 %d 次加载行数不符: %d", i+1, len(bars))
		}
	}
	if len(gotTS) != 2 || gotTS[0] == "" || gotTS[0] == gotTS[1] {
		t.Fatalf("破缓存参数应每次变化: %v", gotTS)
	}
}

func TestHTTPLoaderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewHTTPLoader(srv.URL)
	if _, err := l.Load(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("非 2xx 应返回 ErrUnavailable 包装错误，实际: %v", err)
	}
}

func TestNewLoaderDispatch(t *testing.T) {
	if _, ok := NewLoader("https://example.com/a.csv").(*HTTPLoader); !ok {
		t.Fatal("https 地址应选 HTTPLoader")
	}
	if _, ok := NewLoader("data/a.csv").(*FileLoader); !ok {
		t.Fatal("本地路径应选 FileLoader")
	}
}
