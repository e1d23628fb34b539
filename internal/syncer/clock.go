package syncer

import "time"

// Clock 抽象时间与定时器，让测试可以推进虚拟时间而不是真等。
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer 是可取消、可重置的一次性定时器。
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop() bool
}

type realClock struct{}

// RealClock 返回基于 time 包的实现。
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct{ t *time.Timer }

func (rt *realTimer) C() <-chan time.Time   { return rt.t.C }
func (rt *realTimer) Reset(d time.Duration) { rt.t.Reset(d) }
func (rt *realTimer) Stop() bool            { return rt.t.Stop() }
