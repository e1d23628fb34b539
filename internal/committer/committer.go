package committer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"btcpulse/internal/logger"
	"btcpulse/internal/market"
	"btcpulse/internal/snapshot"
)

// 数据目录下的固定文件名，与既有数据集保持一致。
const (
	FileCoinbase = "bitcoin_5m_coinbase.csv"
	FileBinance  = "bitcoin_5m_binance.csv"
	FileCombined = "bitcoin_5m_combined.csv"
)

// RangeFetcher 支持分段回补一个时间区间。
type RangeFetcher interface {
	CandlesRange(ctx context.Context, start, end time.Time) ([]market.Bar, error)
}

// Config 控制一次提交任务的范围。
type Config struct {
	DataDir string
	// DefaultStart 数据文件尚不存在时的回补起点。
	DefaultStart time.Time
	// MaxDaysPerRun 单次任务最多回补的天数，防止在定时环境里超时。
	MaxDaysPerRun int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DataDir == "" {
		out.DataDir = "data"
	}
	if out.DefaultStart.IsZero() {
		out.DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if out.MaxDaysPerRun <= 0 {
		out.MaxDaysPerRun = 7
	}
	return out
}

// FileReport 单个数据文件的提交结果。
type FileReport struct {
	Path  string    `json:"path"`
	Rows  int       `json:"rows"`
	Added int       `json:"added"`
	From  time.Time `json:"from,omitempty"`
	To    time.Time `json:"to,omitempty"`
	Gaps  []Gap     `json:"gaps,omitempty"`
}

// Report 一次提交任务的汇总。
type Report struct {
	Files    []FileReport  `json:"files"`
	Duration time.Duration `json:"duration"`
	UpToDate bool          `json:"up_to_date"`
}

// Committer 把远端增量提交进数据目录：续传上次时间戳之后的缺口、
// 与既有数据合并去重（既有数据优先）、原子写回。
type Committer struct {
	cfg      Config
	coinbase RangeFetcher
	binance  market.Source // 可选的对照数据源

	now func() time.Time
}

func New(cfg Config, coinbase RangeFetcher, binance market.Source) (*Committer, error) {
	if coinbase == nil {
		return nil, errors.New("coinbase fetcher 不能为空")
	}
	return &Committer{
		cfg:      cfg.withDefaults(),
		coinbase: coinbase,
		binance:  binance,
		now:      time.Now,
	}, nil
}

// Run 执行一次提交任务。Coinbase 为主文件；配置了 Binance 时两路并发拉取。
func (c *Committer) Run(ctx context.Context) (Report, error) {
	started := c.now()
	report := Report{}

	existing, err := c.loadExisting(filepath.Join(c.cfg.DataDir, FileCoinbase))
	if err != nil {
		return report, err
	}

	start, end, ok := c.window(existing)
	if !ok {
		logger.Infof("[committer] 数据已是最新，无需提交")
		report.UpToDate = true
		report.Duration = c.now().Sub(started)
		return report, nil
	}
	logger.Infof("[committer] 回补 %s ~ %s", start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))

	var coinbaseBars, binanceBars []market.Bar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bars, err := c.coinbase.CandlesRange(gctx, start, end)
		if err != nil {
			return fmt.Errorf("coinbase 回补失败: %w", err)
		}
		coinbaseBars = bars
		return nil
	})
	if c.binance != nil {
		g.Go(func() error {
			bars, err := c.binance.Candles(gctx, start, end)
			if err != nil {
				// 对照源失败不阻断主文件提交。
				logger.Warnf("[committer] binance 对照源拉取失败: %v", err)
				return nil
			}
			binanceBars = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	main, merged, err := c.commitFile(FileCoinbase, existing, coinbaseBars)
	if err != nil {
		return report, err
	}
	report.Files = append(report.Files, main)

	// combined 目前与 coinbase 同内容，保留独立文件以兼容既有消费方。
	combined := main
	combined.Path = filepath.Join(c.cfg.DataDir, FileCombined)
	if err := snapshot.WriteFile(combined.Path, merged); err != nil {
		return report, fmt.Errorf("写 combined 文件失败: %w", err)
	}
	report.Files = append(report.Files, combined)

	if c.binance != nil && len(binanceBars) > 0 {
		existingAlt, err := c.loadExisting(filepath.Join(c.cfg.DataDir, FileBinance))
		if err != nil {
			return report, err
		}
		alt, _, err := c.commitFile(FileBinance, existingAlt, binanceBars)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, alt)
	}

	report.Duration = c.now().Sub(started)
	return report, nil
}

// window 算出本次任务的回补区间：从最后一根 K 线的下一个周期开始，
// 封顶 MaxDaysPerRun 天。
func (c *Committer) window(existing []market.Bar) (start, end time.Time, ok bool) {
	now := c.now().UTC()
	if len(existing) > 0 {
		start = existing[len(existing)-1].Timestamp.Add(market.BarPeriod)
	} else {
		start = c.cfg.DefaultStart
	}
	end = now
	if maxEnd := start.Add(time.Duration(c.cfg.MaxDaysPerRun) * 24 * time.Hour); end.After(maxEnd) {
		end = maxEnd
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (c *Committer) commitFile(name string, existing, fetched []market.Bar) (FileReport, market.Series, error) {
	path := filepath.Join(c.cfg.DataDir, name)
	merged := market.Merge(existing, fetched)
	if err := snapshot.WriteFile(path, merged); err != nil {
		return FileReport{}, nil, fmt.Errorf("写 %s 失败: %w", name, err)
	}
	rep := FileReport{
		Path:  path,
		Rows:  len(merged),
		Added: len(merged) - len(existing),
	}
	if len(merged) > 0 {
		rep.From = merged[0].Timestamp
		rep.To = merged[len(merged)-1].Timestamp
		rep.Gaps = ScanGaps(merged)
	}
	logger.Infof("[committer] %s 共 %d 行（新增 %d）", name, rep.Rows, rep.Added)
	return rep, merged, nil
}

func (c *Committer) loadExisting(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取既有数据失败: %w", err)
	}
	defer f.Close()
	bars, err := snapshot.ParseCSV(f)
	if err != nil {
		logger.Warnf("[committer] 既有文件 %s 解析失败，按空数据处理: %v", path, err)
		return nil, nil
	}
	return bars, nil
}
