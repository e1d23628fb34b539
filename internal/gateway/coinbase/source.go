package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/jpillora/backoff"

	"btcpulse/internal/logger"
	"btcpulse/internal/market"
)

// Source 实现 market.Source，走 Coinbase Exchange 的公共 REST 接口。
type Source struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	return &Source{
		cfg:        final,
		httpClient: &http.Client{Timeout: final.HTTPTimeout},
	}
}

// Candles 拉取 [start, end] 区间的 5 分钟 K 线。
// 响应行格式为 [epoch_seconds, low, high, open, close, volume]，
// 注意 low/high/open/close 的顺序与 Bar 字段不同，必须显式重排。
func (s *Source) Candles(ctx context.Context, start, end time.Time) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("granularity", strconv.Itoa(market.GranularitySeconds))
	target := fmt.Sprintf("%s/products/%s/candles?%s", s.cfg.BaseURL, s.cfg.ProductID, q.Encode())
	logger.Debugf("[coinbase] REST %s", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: http %s", market.ErrRateLimited, resp.Status)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %s", market.ErrFetchFailed, resp.Status)
	}

	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: 解码响应失败: %v", market.ErrFetchFailed, err)
	}
	out := make([]market.Bar, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		out = append(out, market.Bar{
			Timestamp: time.Unix(toInt64(row[0]), 0).UTC(),
			Low:       toFloat(row[1]),
			High:      toFloat(row[2]),
			Open:      toFloat(row[3]),
			Close:     toFloat(row[4]),
			Volume:    toFloat(row[5]),
			Source:    market.SourceCoinbase,
		})
	}
	// Coinbase 返回按时间倒序，这里统一转成升序。
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// CandlesRange 分段回补 [start, end] 区间，用于定时提交任务。
// 单请求只覆盖 ChunkHours 小时；429 按指数退避后重试同一段；
// 其他失败跳过该段继续推进（与定时任务尽量多拿数据的取向一致）。
func (s *Source) CandlesRange(ctx context.Context, start, end time.Time) ([]market.Bar, error) {
	chunk := time.Duration(s.cfg.ChunkHours) * time.Hour
	retry := &backoff.Backoff{Min: 2 * time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}

	var all []market.Bar
	requests := 0
	current := start
	for current.Before(end) && requests < s.cfg.MaxRequests {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		chunkEnd := current.Add(chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		bars, err := s.Candles(ctx, current, chunkEnd)
		requests++
		switch {
		case err == nil:
			all = append(all, bars...)
			retry.Reset()
			logger.Debugf("[coinbase] %s ~ %s 取得 %d 根",
				current.Format("2006-01-02 15:04"), chunkEnd.Format("2006-01-02 15:04"), len(bars))
		case isRateLimited(err):
			wait := retry.Duration()
			logger.Warnf("[coinbase] 被限流，%s 后重试当前分段", wait.Truncate(time.Millisecond))
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(wait):
			}
			continue // 重试同一分段
		default:
			logger.Warnf("[coinbase] 分段 %s 拉取失败，跳过: %v", current.Format("2006-01-02"), err)
		}
		current = chunkEnd
	}
	if requests >= s.cfg.MaxRequests {
		logger.Warnf("[coinbase] 达到请求上限 %d，提前结束回补", s.cfg.MaxRequests)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func isRateLimited(err error) bool {
	return errors.Is(err, market.ErrRateLimited)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return int64(f)
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
