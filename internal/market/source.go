package market

import (
	"context"
	"errors"
	"time"
)

// 远端拉取的可区分失败种类。上层用 errors.Is 判断。
var (
	// ErrRateLimited 表示远端返回限流（429 一类），为将来的退避调优保留区分。
	ErrRateLimited = errors.New("candle source rate limited")
	// ErrFetchFailed 表示一般性拉取失败（传输错误或非 2xx 响应）。
	ErrFetchFailed = errors.New("candle fetch failed")
)

// Source 统一对接外部 K 线供应商。
type Source interface {
	// Candles 拉取 [start, end] 区间内的 5 分钟 K 线，按时间升序返回。
	// 区间内没有数据时返回空切片，不算错误。
	Candles(ctx context.Context, start, end time.Time) ([]Bar, error)
}
