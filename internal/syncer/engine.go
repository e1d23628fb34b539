package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"btcpulse/internal/logger"
	"btcpulse/internal/market"
	"btcpulse/internal/snapshot"
	"btcpulse/internal/store"
)

// Config 控制引擎的调度节奏与容错上限。零值字段由 withDefaults 填充。
type Config struct {
	// RefreshInterval 对账周期，默认 5 分钟。
	RefreshInterval time.Duration
	// StatusInterval 状态展示心跳周期，只刷新文案不碰数据，默认 30 秒。
	StatusInterval time.Duration
	// FreshnessBuffer 缺口小于该缓冲时跳过拉取，防止抓到远端尚未定稿的 K 线。默认 90 秒。
	FreshnessBuffer time.Duration
	// FailureCeiling 连续失败达到该值后暂停调度，默认 3。
	FailureCeiling int
	// Enabled 初始开关；持久化的偏好优先于此值。
	Enabled bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = 5 * time.Minute
	}
	if out.StatusInterval <= 0 {
		out.StatusInterval = 30 * time.Second
	}
	if out.FreshnessBuffer <= 0 {
		out.FreshnessBuffer = 90 * time.Second
	}
	if out.FailureCeiling <= 0 {
		out.FailureCeiling = 3
	}
	return out
}

// Listener 订阅引擎事件：每次成功对账后 OnData 恰好触发一次、
// 且收到的是完整合并后的序列；状态变化与展示心跳触发 OnStatus。
type Listener struct {
	OnData   func(market.Series)
	OnStatus func(Status)
}

type refreshReq struct {
	done chan error
}

// Engine 负责完整生命周期：读快照 → 算缺口 → 拉远端 → 合并去重 →
// 通知订阅者 → 安排下一轮，同时跟踪连续失败并对外暴露状态流。
type Engine struct {
	cfg   Config
	snap  snapshot.Loader
	src   market.Source
	kv    store.StateStore
	clock Clock

	// opMu 保证同一时刻至多一次在途对账（定时与手动互斥）。
	opMu sync.Mutex

	mu        sync.Mutex
	st        State
	message   string
	hist      []market.Bar
	live      []market.Bar
	series    market.Series
	lastGood  time.Time
	updatedAt time.Time
	failures  int
	paused    bool
	listeners map[string]Listener

	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	refreshCh chan refreshReq
	reconcile Timer
	statusTk  Timer
}

// New 组装引擎。clock 传 nil 时使用真实时钟。
func New(cfg Config, snap snapshot.Loader, src market.Source, kv store.StateStore, clock Clock) (*Engine, error) {
	if snap == nil {
		return nil, errors.New("snapshot loader 不能为空")
	}
	if src == nil {
		return nil, errors.New("candle source 不能为空")
	}
	if kv == nil {
		kv = store.NewMemoryStateStore()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		snap:      snap,
		src:       src,
		kv:        kv,
		clock:     clock,
		st:        StateLoading,
		listeners: make(map[string]Listener),
		refreshCh: make(chan refreshReq, 1),
	}, nil
}

// AddListener 注册订阅者，返回用于退订的 id。
func (e *Engine) AddListener(l Listener) string {
	id := uuid.NewString()
	e.mu.Lock()
	e.listeners[id] = l
	e.mu.Unlock()
	return id
}

// RemoveListener 退订。
func (e *Engine) RemoveListener(id string) {
	e.mu.Lock()
	delete(e.listeners, id)
	e.mu.Unlock()
}

// Series 返回最近一次成功合并的序列（拷贝）。
func (e *Engine) Series() market.Series {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.series.Clone()
}

// Status 返回当前状态快照。
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	return Status{
		State:           e.st,
		Message:         e.message,
		HistoricalBars:  len(e.hist),
		LiveBars:        len(e.live),
		LatestTimestamp: e.lastGood,
		Failures:        e.failures,
		UpdatedAt:       e.updatedAt,
	}
}

// Start 启动引擎：读取快照、按跨会话节流决定是否立即拉取、
// 然后进入调度循环。快照读取失败对 Start 是致命的。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine 已经在运行")
	}
	e.mu.Unlock()

	if !e.effectiveEnabled(ctx) {
		e.setStatus(StateDisabled, "已停用；调用 Enable 可恢复")
		return nil
	}

	e.setStatus(StateLoading, "正在读取快照……")
	bars, err := e.snap.Load(ctx)
	if err != nil {
		e.setStatus(StateError, fmt.Sprintf("快照读取失败: %v", err))
		return err
	}
	e.mu.Lock()
	e.hist = bars
	e.paused = false
	e.mu.Unlock()
	logger.Infof("[syncer] 快照载入 %d 根", len(bars))

	interval := e.cfg.RefreshInterval
	firstDelay := interval
	now := e.clock.Now()
	if last, ok := e.lastSyncAt(ctx); ok && now.Sub(last) < interval {
		// 距上次同步尚在周期内：跳过远端拉取，把下一轮对齐到共享节奏，
		// 避免连续刷新页面触发一串冗余请求。
		remaining := interval - now.Sub(last)
		e.publishMerged()
		e.setStatus(StateLive, fmt.Sprintf("距上次同步 %s，沿用快照数据", humanAge(now.Sub(last))))
		firstDelay = remaining
		logger.Infof("[syncer] 节流生效，%s 后对账", remaining.Truncate(time.Second))
	} else {
		e.opMu.Lock()
		cycleErr := e.runCycle(ctx)
		e.opMu.Unlock()
		e.afterCycle(ctx, cycleErr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	rec := e.clock.NewTimer(firstDelay)
	tk := e.clock.NewTimer(e.cfg.StatusInterval)
	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	if e.paused {
		rec.Stop()
	}
	e.reconcile = rec
	e.statusTk = tk
	e.mu.Unlock()
	go e.loop(runCtx)
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	e.mu.Lock()
	rec, tk := e.reconcile, e.statusTk
	e.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			rec.Stop()
			tk.Stop()
			return
		case <-rec.C():
			e.scheduledTick(ctx)
		case <-tk.C():
			e.emitStatusTick()
			tk.Reset(e.cfg.StatusInterval)
		case req := <-e.refreshCh:
			err := e.manualRefresh(ctx)
			if req.done != nil {
				req.done <- err
			}
		}
	}
}

func (e *Engine) scheduledTick(ctx context.Context) {
	e.setStatus(StateRefreshing, "定时对账中……")
	e.opMu.Lock()
	err := e.runCycle(ctx)
	e.opMu.Unlock()
	e.afterCycle(ctx, err)

	e.mu.Lock()
	paused := e.paused
	rec := e.reconcile
	e.mu.Unlock()
	if !paused && rec != nil {
		rec.Reset(e.cfg.RefreshInterval)
	}
}

// runCycle 执行一次 fetch-and-merge：算缺口、拉远端、并入实时集。
// 缺口小于缓冲时是刻意的空转，算成功。只返回错误，状态流转交给 afterCycle。
func (e *Engine) runCycle(ctx context.Context) error {
	start, end, ready := e.gapWindow()
	if !ready {
		logger.Debugf("[syncer] 缺口不足缓冲 %s，本轮空转", e.cfg.FreshnessBuffer)
		return nil
	}
	bars, err := e.src.Candles(ctx, start, end)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// 引擎已停止：在途结果直接丢弃。
		return ctx.Err()
	}
	e.mu.Lock()
	// 实时集做累积而不是整体替换：新拉取只覆盖缺口，
	// 替换会让快照重读后的序列短暂回缩。重叠由 Merge 去重兜底。
	e.live = market.Merge(e.live, bars)
	e.mu.Unlock()
	return nil
}

// gapWindow 计算待拉取的缺口窗口：起点为已知最新时间戳加一个周期，终点为当前时间。
func (e *Engine) gapWindow() (start, end time.Time, ready bool) {
	e.mu.Lock()
	latest := latestTimestamp(e.hist, e.live)
	e.mu.Unlock()
	now := e.clock.Now()
	if latest.IsZero() {
		// 快照为空时回补最近 24 小时，避免无界拉取。
		return now.Add(-24 * time.Hour), now, true
	}
	start = latest.Add(market.BarPeriod)
	if now.Sub(start) < e.cfg.FreshnessBuffer {
		return time.Time{}, time.Time{}, false
	}
	return start, now, true
}

func (e *Engine) afterCycle(ctx context.Context, err error) {
	if err == nil {
		e.mu.Lock()
		e.failures = 0
		e.mu.Unlock()
		e.persistLastSync(ctx)
		e.publishMerged()
		e.setStatus(StateLive, e.liveMessage())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	e.mu.Lock()
	e.failures++
	failures := e.failures
	e.mu.Unlock()

	kind := "同步失败"
	if errors.Is(err, market.ErrRateLimited) {
		kind = "远端限流"
	}
	if failures >= e.cfg.FailureCeiling {
		e.mu.Lock()
		e.paused = true
		rec := e.reconcile
		e.mu.Unlock()
		if rec != nil {
			rec.Stop()
		}
		e.setStatus(StatePaused, fmt.Sprintf("连续失败 %d 次已暂停自动同步；手动刷新可恢复（%s: %v）", failures, kind, err))
		logger.Errorf("[syncer] 连续失败 %d 次，调度暂停: %v", failures, err)
		return
	}
	e.setStatus(StateError, fmt.Sprintf("%s（第 %d/%d 次），沿用上一份数据: %v", kind, failures, e.cfg.FailureCeiling, err))
	logger.Warnf("[syncer] 对账失败（%d/%d）: %v", failures, e.cfg.FailureCeiling, err)
}

// manualRefresh 重读快照（失败时沿用已有历史集）并执行一次对账。
// 成功后恢复调度节奏，可把 paused 状态拉回来。
func (e *Engine) manualRefresh(ctx context.Context) error {
	e.setStatus(StateRefreshing, "手动刷新中……")
	if bars, err := e.snap.Load(ctx); err != nil {
		e.mu.Lock()
		have := len(e.hist) > 0
		e.mu.Unlock()
		if !have {
			e.setStatus(StateError, fmt.Sprintf("快照读取失败: %v", err))
			return err
		}
		logger.Warnf("[syncer] 快照重读失败，沿用已有历史集: %v", err)
	} else {
		e.mu.Lock()
		e.hist = bars
		e.mu.Unlock()
	}

	e.opMu.Lock()
	err := e.runCycle(ctx)
	e.opMu.Unlock()
	if err == nil {
		e.mu.Lock()
		wasPaused := e.paused
		e.paused = false
		running := e.running
		rec := e.reconcile
		e.mu.Unlock()
		if running && rec != nil {
			rec.Reset(e.cfg.RefreshInterval)
		}
		if wasPaused {
			logger.Infof("[syncer] 手动刷新成功，自动同步恢复")
		}
	}
	e.afterCycle(ctx, err)
	return err
}

// Refresh 手动刷新。引擎运行中时经由循环串行执行（与定时对账合并节奏）；
// 已有刷新在排队时本次请求被合并，直接返回。
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return e.manualRefresh(ctx)
	}
	req := refreshReq{done: make(chan error, 1)}
	select {
	case e.refreshCh <- req:
	default:
		return nil
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enable 持久化启用偏好。引擎未运行时顺带执行 Start；
// 运行中但因连续失败暂停时，清掉暂停标记并重排调度，让自动同步恢复。
func (e *Engine) Enable(ctx context.Context) error {
	if err := e.kv.Set(ctx, store.KeyEnabled, "true"); err != nil {
		logger.Warnf("[syncer] 写入启用偏好失败: %v", err)
	}
	e.mu.Lock()
	running := e.running
	wasPaused := e.paused
	var rec Timer
	if running && wasPaused {
		e.paused = false
		e.failures = 0
		rec = e.reconcile
	}
	e.mu.Unlock()
	if !running {
		return e.Start(ctx)
	}
	if wasPaused {
		if rec != nil {
			rec.Reset(e.cfg.RefreshInterval)
		}
		e.setStatus(StateLive, e.liveMessage())
		logger.Infof("[syncer] 重新启用，自动同步恢复")
	}
	return nil
}

// Disable 立即停掉两个定时器与调度循环，并持久化停用偏好。
func (e *Engine) Disable(ctx context.Context) error {
	if err := e.kv.Set(ctx, store.KeyEnabled, "false"); err != nil {
		logger.Warnf("[syncer] 写入停用偏好失败: %v", err)
	}
	e.stopLoop()
	e.setStatus(StateDisabled, "已停用；调用 Enable 可恢复")
	return nil
}

// Stop 停止引擎。两个定时器同步取消；在途请求的结果会被丢弃。
func (e *Engine) Stop() {
	e.stopLoop()
	e.setStatus(StateStopped, "已停止")
}

func (e *Engine) stopLoop() {
	e.mu.Lock()
	running := e.running
	cancel := e.cancel
	done := e.done
	e.running = false
	e.cancel = nil
	e.mu.Unlock()
	if !running {
		return
	}
	cancel()
	<-done
}

// ---- 内部工具 ----

func (e *Engine) publishMerged() {
	e.mu.Lock()
	merged := market.Merge(e.hist, e.live)
	e.series = merged
	if last, ok := merged.Latest(); ok {
		e.lastGood = last.Timestamp
	}
	e.updatedAt = e.clock.Now()
	ls := e.listenersSnapshot()
	e.mu.Unlock()
	for _, l := range ls {
		if l.OnData != nil {
			l.OnData(merged.Clone())
		}
	}
}

func (e *Engine) setStatus(st State, message string) {
	e.mu.Lock()
	e.st = st
	e.message = message
	status := e.statusLocked()
	ls := e.listenersSnapshot()
	e.mu.Unlock()
	for _, l := range ls {
		if l.OnStatus != nil {
			l.OnStatus(status)
		}
	}
}

// emitStatusTick 只刷新展示文案（比如"N 分钟前更新"），不改状态、不碰数据。
func (e *Engine) emitStatusTick() {
	e.mu.Lock()
	if e.st == StateLive {
		e.message = e.liveMessageLocked()
	}
	status := e.statusLocked()
	ls := e.listenersSnapshot()
	e.mu.Unlock()
	for _, l := range ls {
		if l.OnStatus != nil {
			l.OnStatus(status)
		}
	}
}

func (e *Engine) liveMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveMessageLocked()
}

func (e *Engine) liveMessageLocked() string {
	if e.updatedAt.IsZero() {
		return "实时"
	}
	return fmt.Sprintf("实时 · %s前更新", humanAge(e.clock.Now().Sub(e.updatedAt)))
}

func (e *Engine) listenersSnapshot() []Listener {
	out := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

func (e *Engine) effectiveEnabled(ctx context.Context) bool {
	if v, ok, err := e.kv.Get(ctx, store.KeyEnabled); err == nil && ok {
		return v == "true"
	}
	return e.cfg.Enabled
}

func (e *Engine) lastSyncAt(ctx context.Context) (time.Time, bool) {
	v, ok, err := e.kv.Get(ctx, store.KeyLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

func (e *Engine) persistLastSync(ctx context.Context) {
	v := strconv.FormatInt(e.clock.Now().Unix(), 10)
	if err := e.kv.Set(ctx, store.KeyLastSyncAt, v); err != nil {
		logger.Warnf("[syncer] 写入 last_sync_at 失败: %v", err)
	}
}

func latestTimestamp(sets ...[]market.Bar) time.Time {
	var latest time.Time
	for _, set := range sets {
		for _, b := range set {
			if b.Timestamp.After(latest) {
				latest = b.Timestamp
			}
		}
	}
	return latest
}
