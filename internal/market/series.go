package market

import (
	"fmt"
	"time"
)

// Series 是对外暴露的唯一数据形态：按时间严格升序、无重复时间戳的 Bar 序列。
type Series []Bar

// Validate 校验序列不变量：严格升序且无重复时间戳。
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("series 在第 %d 位违反升序: %s !> %s",
				i, s[i].Timestamp.Format(time.RFC3339), s[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Latest 返回最后一根 Bar；空序列时 ok 为 false。
func (s Series) Latest() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Clone 返回拷贝，避免调用方持有内部切片。
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// After 返回时间戳严格晚于 ts 的尾部子序列（拷贝）。
func (s Series) After(ts time.Time) Series {
	for i, b := range s {
		if b.Timestamp.After(ts) {
			return s[i:].Clone()
		}
	}
	return nil
}
