package market

import (
	"testing"
	"time"
)

func bar(minute int, close float64, source string) Bar {
	return Bar{
		Timestamp: time.Date(2025, 6, 1, 0, minute, 0, 0, time.UTC),
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    1,
		Source:    source,
	}
}

func TestMergeDedupHistoricalWins(t *testing.T) {
	hist := []Bar{bar(0, 100, SourceSnapshot), bar(5, 101, SourceSnapshot)}
	live := []Bar{bar(5, 999, SourceCoinbase), bar(10, 102, SourceCoinbase)}

	out := Merge(hist, live)
	if len(out) != 3 {
		t.Fatalf("期望 3 根，实际 %d", len(out))
	}
	// 重叠时间戳以历史集为准。
	if out[1].Close != 101 || out[1].Source != SourceSnapshot {
		t.Fatalf("重叠行未按历史优先: %+v", out[1])
	}
	if out[2].Close != 102 {
		t.Fatalf("新增行丢失: %+v", out[2])
	}
}

func TestMergeSortsAscending(t *testing.T) {
	hist := []Bar{bar(10, 3, SourceSnapshot), bar(0, 1, SourceSnapshot)}
	live := []Bar{bar(5, 2, SourceCoinbase)}

	out := Merge(hist, live)
	for i := 1; i < len(out); i++ {
		if !out[i-1].Timestamp.Before(out[i].Timestamp) {
			t.Fatalf("输出未按时间严格升序: %v >= %v", out[i-1].Timestamp, out[i].Timestamp)
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	hist := []Bar{bar(0, 1, SourceSnapshot), bar(5, 2, SourceSnapshot)}
	live := []Bar{bar(10, 3, SourceCoinbase)}

	once := Merge(hist, live)
	twice := Merge(once, live)
	if len(once) != len(twice) {
		t.Fatalf("重复合并改变了长度: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("第 %d 根不一致: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	hist := []Bar{bar(10, 3, SourceSnapshot), bar(0, 1, SourceSnapshot)}
	live := []Bar{bar(5, 2, SourceCoinbase)}
	h0, l0 := hist[0], live[0]

	_ = Merge(hist, live)
	if hist[0] != h0 || live[0] != l0 {
		t.Fatal("Merge 修改了输入切片")
	}
}

func TestMergeEmptySides(t *testing.T) {
	live := []Bar{bar(0, 1, SourceCoinbase)}
	if out := Merge(nil, live); len(out) != 1 {
		t.Fatalf("空历史集: 期望 1 根，实际 %d", len(out))
	}
	if out := Merge(live, nil); len(out) != 1 {
		t.Fatalf("空实时集: 期望 1 根，实际 %d", len(out))
	}
	if out := Merge(nil, nil); len(out) != 0 {
		t.Fatalf("双空: 期望 0 根，实际 %d", len(out))
	}
}
