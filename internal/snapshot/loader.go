package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"btcpulse/internal/logger"
	"btcpulse/internal/market"
)

// ErrUnavailable 表示快照本身取不到（文件缺失、HTTP 失败等）。
// 对 Start 是致命错误；对手动刷新不是——已持有的历史集可以继续用。
var ErrUnavailable = errors.New("snapshot unavailable")

// Loader 抽象快照来源，引擎只在启动与手动刷新时调用。
type Loader interface {
	Load(ctx context.Context) ([]market.Bar, error)
}

// FileLoader 从本地文件读取快照。
type FileLoader struct {
	Path string
}

func (l *FileLoader) Load(ctx context.Context) ([]market.Bar, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	bars, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Debugf("[snapshot] 读取 %s，共 %d 根", l.Path, len(bars))
	return bars, nil
}

// HTTPLoader 从静态托管地址读取快照，每次加破缓存参数强制取最新提交。
type HTTPLoader struct {
	URL    string
	Client *http.Client

	now func() time.Time
}

func NewHTTPLoader(rawURL string) *HTTPLoader {
	return &HTTPLoader{
		URL:    rawURL,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *HTTPLoader) Load(ctx context.Context) ([]market.Bar, error) {
	target, err := l.bustedURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %s", ErrUnavailable, resp.Status)
	}
	bars, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bars, nil
}

func (l *HTTPLoader) bustedURL() (string, error) {
	u, err := url.Parse(l.URL)
	if err != nil {
		return "", err
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	q := u.Query()
	q.Set("_ts", strconv.FormatInt(now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewLoader 根据地址形态选择实现：http(s) 走 HTTPLoader，其余按本地路径处理。
func NewLoader(location string) Loader {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPLoader(location)
	}
	return &FileLoader{Path: location}
}
