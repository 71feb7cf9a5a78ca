package history

import (
	"context"
	"time"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/events"
	"chatlog-cli/internal/logger"
)

const (
	DefaultReadyPoll   = 100 * time.Millisecond
	DefaultConnectPoll = time.Second
	DefaultFirstFetch  = 2 * time.Second
)

// Dispatcher 是事件队列 fire-and-forget 的那一侧。
type Dispatcher interface {
	Dispatch(event events.Event)
}

type BootstrapOptions struct {
	// Ready 判断 transcript 是否可以接收历史，nil 表示始终就绪。
	Ready       func() bool
	Source      Source
	Dispatcher  Dispatcher
	SessionID   string
	ReadyPoll   time.Duration
	ConnectPoll time.Duration
	// FirstFetchDelay 是首次连接到首次拉取之间的间隔。
	FirstFetchDelay time.Duration
	Logger          *logger.LogEntry
}

// Bootstrapper 等待 transcript 和数据源就绪，然后插入拉取触发条并请求第一页，
// 之后持续报告连接状态的变化。
type Bootstrapper struct {
	opts BootstrapOptions
}

func NewBootstrapper(opts BootstrapOptions) *Bootstrapper {
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = DefaultReadyPoll
	}
	if opts.ConnectPoll <= 0 {
		opts.ConnectPoll = DefaultConnectPoll
	}
	if opts.FirstFetchDelay <= 0 {
		opts.FirstFetchDelay = DefaultFirstFetch
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("bootstrap")
	}
	return &Bootstrapper{opts: opts}
}

// Run 阻塞直到 ctx 结束。
func (b *Bootstrapper) Run(ctx context.Context) {
	if !b.waitReady(ctx) {
		return
	}
	b.opts.Logger.Debug("transcript ready")

	ticker := time.NewTicker(b.opts.ConnectPoll)
	defer ticker.Stop()

	var (
		connected  bool
		bootstrapC <-chan time.Time
		bootstrap  *time.Timer
		done       bool
	)
	defer func() {
		if bootstrap != nil {
			bootstrap.Stop()
		}
	}()

	check := func() {
		up := b.opts.Source != nil && b.opts.Source.Ping(ctx) == nil
		if up == connected {
			return
		}
		connected = up
		b.dispatch(events.Event{Type: events.EventConnectivity, Payload: up})
		if !up {
			b.opts.Logger.Warn("history source disconnected")
			return
		}
		b.opts.Logger.Info("history source connected")
		if !done && bootstrap == nil {
			bootstrap = time.NewTimer(b.opts.FirstFetchDelay)
			bootstrapC = bootstrap.C
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		case <-bootstrapC:
			bootstrapC = nil
			bootstrap = nil
			if !connected {
				continue
			}
			done = true
			b.dispatch(events.Event{Type: events.EventAddActivity, Payload: activity.PullTrigger()})
			b.dispatch(events.Event{Type: events.EventFetchHistory})
		}
	}
}

func (b *Bootstrapper) waitReady(ctx context.Context) bool {
	if b.opts.Ready == nil || b.opts.Ready() {
		return true
	}
	ticker := time.NewTicker(b.opts.ReadyPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if b.opts.Ready() {
				return true
			}
		}
	}
}

func (b *Bootstrapper) dispatch(ev events.Event) {
	if b.opts.Dispatcher == nil {
		return
	}
	ev.SessionID = b.opts.SessionID
	ev.Timestamp = time.Now()
	b.opts.Dispatcher.Dispatch(ev)
}
