package lazyload

import "time"

// Timer 是可取消的定时回调。
type Timer interface {
	Stop() bool
}

// Scheduler 在 d 之后执行一次 fn。
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler 使用 runtime 的定时器。
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// task 是 Controller 跟踪的一个定时任务。
type task struct {
	name  string
	timer Timer
}
