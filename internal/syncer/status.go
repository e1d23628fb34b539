package syncer

import (
	"fmt"
	"time"
)

// State 是引擎对外报告的状态标签。
type State string

const (
	// StateLoading 初始状态：正在读取快照。
	StateLoading State = "loading"
	// StateLive 稳态：已有可用序列在对外提供。
	StateLive State = "live"
	// StateRefreshing 一次定时或手动对账在途；上一份序列仍然可用。
	StateRefreshing State = "refreshing"
	// StateError 最近一次拉取失败；上一份好序列继续生效。
	StateError State = "error"
	// StatePaused 连续失败达到上限，调度已自动暂停，等待手动刷新或重新启用。
	StatePaused State = "paused"
	// StateDisabled 调用方显式停用，无任何网络活动。
	StateDisabled State = "disabled"
	// StateStopped 引擎已停止。
	StateStopped State = "stopped"
)

// Status 是状态流的载荷：状态标签、展示文案以及当前数据概况。
type Status struct {
	State           State     `json:"state"`
	Message         string    `json:"message"`
	HistoricalBars  int       `json:"historical_bars"`
	LiveBars        int       `json:"live_bars"`
	LatestTimestamp time.Time `json:"latest_timestamp,omitempty"`
	Failures        int       `json:"failures"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

func humanAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d 秒", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d 分钟", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1f 小时", d.Hours())
	}
}
