// Package lazyload 负责聊天历史的向上分页：监听 transcript 顶部的 sentinel，
// 请求更早的页，并在新页插入顶部时保持视口锚定。
package lazyload

import (
	"context"
	"sync"
	"time"

	"chatlog-cli/internal/events"
	"chatlog-cli/internal/logger"
)

const (
	DefaultResetDelay         = time.Second
	DefaultReinitDelay        = 100 * time.Millisecond
	DefaultRetryDelay         = 100 * time.Millisecond
	DefaultMaxObserverRetries = 10
)

// Dispatcher 接收 fire-and-forget 的拉取请求。
type Dispatcher interface {
	Dispatch(event events.Event)
}

// publisher 由能报告事件丢失的 dispatcher 实现（如 events.EventQueue）。
// 拉取请求发送失败时释放拉取闸门。
type publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Options struct {
	Document   Document
	Dispatcher Dispatcher
	// Scheduler 默认是 RealScheduler。
	Scheduler Scheduler

	ResetDelay         time.Duration
	ReinitDelay        time.Duration
	RetryDelay         time.Duration
	MaxObserverRetries int

	// SessionID 写入发出的事件。
	SessionID string
	Logger    *logger.LogEntry
}

func (o Options) withDefaults() Options {
	if o.Scheduler == nil {
		o.Scheduler = RealScheduler{}
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = DefaultResetDelay
	}
	if o.ReinitDelay <= 0 {
		o.ReinitDelay = DefaultReinitDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxObserverRetries <= 0 {
		o.MaxObserverRetries = DefaultMaxObserverRetries
	}
	if o.Logger == nil {
		o.Logger = logger.Named("lazyload")
	}
	return o
}

// State 是分页状态的只读快照。
type State struct {
	Initialized             bool
	Paused                  bool
	IsReady                 bool
	InitialLoadComplete     bool
	HasMoreHistoryAvailable bool
	PendingScrollAction     bool
	ResetPending            bool
	ObserverActive          bool
	PreLoadScrollHeight     int
	PreLoadScrollTop        int
}

// Controller 是单个会话的分页状态机。
//
// pendingScrollAction 只在发出拉取请求到该批次完成锚定之间为 true。
// paused 在拉取进行中和历史耗尽后都会阻止新的请求。
// initialLoadComplete 在 Reset 后保留，只有 DirectReset 会清除。
type Controller struct {
	opts Options
	log  *logger.LogEntry

	mu                  sync.Mutex
	initialized         bool
	paused              bool
	isReady             bool
	initialLoadComplete bool
	hasMore             bool
	pendingScrollAction bool
	resetPending        bool
	lastVisible         bool
	preLoadScrollHeight int
	preLoadScrollTop    int
	observer            Observation
	observerTries       int
	// rebuildObserver 表示 Reset 丢弃了 observer，但重建还没能执行。
	rebuildObserver     bool
	tasks               map[*task]struct{}

	// generation 让已断开的 observation 回调失效。
	generation uint64
}

func New(opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		opts:    opts,
		log:     opts.Logger,
		hasMore: true,
		tasks:   map[*task]struct{}{},
	}
}

// InitObserver 开始监听 sentinel；已初始化或 paused 时不做任何事。
// sentinel 不存在时有限次重试。
func (c *Controller) InitObserver() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initObserverLocked()
}

func (c *Controller) initObserverLocked() {
	if c.initialized || c.paused {
		return
	}
	var sentinel Element
	if c.opts.Document != nil {
		sentinel = c.opts.Document.Sentinel()
	}
	if sentinel == nil {
		if c.hasTaskLocked("observer-retry") {
			return
		}
		if c.observerTries >= c.opts.MaxObserverRetries {
			c.log.WithField("tries", c.observerTries).Warn("sentinel not found, giving up on observer")
			return
		}
		c.observerTries++
		c.scheduleLocked("observer-retry", c.opts.RetryDelay, c.InitObserver)
		return
	}

	c.observerTries = 0
	c.rebuildObserver = false
	c.generation++
	gen := c.generation
	c.observer = c.opts.Document.Observe(sentinel, func(visible bool) {
		c.handleVisibility(gen, visible)
	})
	c.initialized = true
	c.isReady = false
	c.lastVisible = false
	c.log.WithField("generation", gen).Debug("observer created")
}

// handleVisibility 把首次回报当作挂载时的初始状态，之后只在不可见变为可见时触发。
func (c *Controller) handleVisibility(gen uint64, visible bool) {
	c.mu.Lock()
	if gen != c.generation || c.observer == nil {
		c.mu.Unlock()
		return
	}
	if !c.isReady {
		c.isReady = true
		c.lastVisible = visible
		c.mu.Unlock()
		return
	}
	becameVisible := visible && !c.lastVisible
	c.lastVisible = visible
	c.mu.Unlock()

	if becameVisible {
		c.OnTriggerVisible()
	}
}

// OnTriggerVisible 记录滚动位置并请求一页更早的历史。
func (c *Controller) OnTriggerVisible() {
	c.mu.Lock()
	if !c.hasMore || c.paused {
		c.mu.Unlock()
		return
	}
	c.preLoadScrollHeight, c.preLoadScrollTop = 0, 0
	if res := FindScrollContainer(c.opts.Document); res.Container != nil {
		c.preLoadScrollHeight = res.Container.ScrollHeight()
		c.preLoadScrollTop = res.Container.ScrollTop()
	}
	c.pendingScrollAction = true
	c.paused = true
	entry := c.log.WithFields(logger.Fields{
		"scroll_height": c.preLoadScrollHeight,
		"scroll_top":    c.preLoadScrollTop,
	})
	sessionID := c.opts.SessionID
	c.mu.Unlock()

	entry.Debug("requesting older history")
	if c.opts.Dispatcher == nil {
		return
	}
	ev := events.Event{
		Type:      events.EventFetchHistory,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
	p, ok := c.opts.Dispatcher.(publisher)
	if !ok {
		c.opts.Dispatcher.Dispatch(ev)
		return
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		entry.Warnf("fetch request lost, releasing fetch gate: %v", err)
		c.mu.Lock()
		if c.pendingScrollAction {
			c.finishScrollActionLocked()
		}
		c.mu.Unlock()
	}
}

// ApplyScrollAnchor 在批次插入顶部后调用：按内容高度的增量平移滚动位置，
// 视口不跳动，然后释放拉取闸门。
func (c *Controller) ApplyScrollAnchor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := FindScrollContainer(c.opts.Document)
	if res.IsScrollable {
		delta := res.Container.ScrollHeight() - c.preLoadScrollHeight
		if delta != 0 {
			res.Container.SetScrollTop(c.preLoadScrollTop + delta)
		}
		c.log.WithField("delta", delta).Debug("scroll anchored")
	}
	c.finishScrollActionLocked()
	if c.rebuildObserver && !c.initialized && !c.paused {
		c.initObserverLocked()
	}
}

// MoveScrollDown 是 ApplyScrollAnchor 的别名。
func (c *Controller) MoveScrollDown() {
	c.ApplyScrollAnchor()
}

func (c *Controller) finishScrollActionLocked() {
	c.pendingScrollAction = false
	c.paused = !c.hasMore
}

// HandleNoMoreHistoryAvailable 是传输层报告历史耗尽后的终态转换。
func (c *Controller) HandleNoMoreHistoryAvailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasMore = false
	c.paused = true
	c.pendingScrollAction = false
	c.initialLoadComplete = true
	c.disconnectLocked()
	c.cancelAllLocked()
	c.log.Debug("history exhausted")
}

func (c *Controller) SetHasMoreHistoryAvailable(more bool) {
	c.mu.Lock()
	c.hasMore = more
	c.mu.Unlock()
}

// ScheduleReset 在 ResetDelay 后调用 Reset，等待期间的重复调用会合并。
func (c *Controller) ScheduleReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetPending {
		return
	}
	c.resetPending = true
	c.scheduleLocked("reset", c.opts.ResetDelay, func() {
		c.mu.Lock()
		c.resetPending = false
		c.mu.Unlock()
		c.Reset()
	})
}

// Reset 丢弃当前 observer，并在 ReinitDelay 后重建。用于同一会话内 transcript
// 重新渲染的情况，因此保留 initialLoadComplete 和 hasMoreHistoryAvailable。
// 拉取进行中时，observer 在该批次锚定后重建。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	c.initialized = false
	c.isReady = false
	c.rebuildObserver = true
	c.scheduleLocked("reinit", c.opts.ReinitDelay, c.InitObserver)
}

// DirectReset 为新会话把 controller 恢复到初始状态。
func (c *Controller) DirectReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.disconnectLocked()
	c.initialized = false
	c.paused = false
	c.isReady = false
	c.initialLoadComplete = false
	c.hasMore = true
	c.pendingScrollAction = false
	c.resetPending = false
	c.preLoadScrollHeight = 0
	c.preLoadScrollTop = 0
	c.observerTries = 0
	c.rebuildObserver = false
}

// Unmount 清理挂载相关的状态，会话级标志（hasMoreHistoryAvailable、
// initialLoadComplete）保持不变。
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.disconnectLocked()
	c.initialized = false
	c.paused = false
	c.pendingScrollAction = false
	c.isReady = false
	c.resetPending = false
	c.preLoadScrollHeight = 0
	c.preLoadScrollTop = 0
	c.observerTries = 0
	c.rebuildObserver = false
}

// SetSessionID 修改之后拉取请求携带的会话 id。
func (c *Controller) SetSessionID(id string) {
	c.mu.Lock()
	c.opts.SessionID = id
	c.mu.Unlock()
}

// FindScrollContainer 查找当前 document 的滚动容器。
func (c *Controller) FindScrollContainer() ScrollResult {
	return FindScrollContainer(c.opts.Document)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Initialized:             c.initialized,
		Paused:                  c.paused,
		IsReady:                 c.isReady,
		InitialLoadComplete:     c.initialLoadComplete,
		HasMoreHistoryAvailable: c.hasMore,
		PendingScrollAction:     c.pendingScrollAction,
		ResetPending:            c.resetPending,
		ObserverActive:          c.observer != nil,
		PreLoadScrollHeight:     c.preLoadScrollHeight,
		PreLoadScrollTop:        c.preLoadScrollTop,
	}
}

// PendingTimers 返回尚未执行或取消的定时任务数。
func (c *Controller) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *Controller) disconnectLocked() {
	if c.observer != nil {
		c.observer.Disconnect()
		c.observer = nil
	}
	c.generation++
	c.lastVisible = false
}

// scheduleLocked 跟踪任务直到执行或取消；已取消的任务即使定时器已触发也不会执行。
func (c *Controller) scheduleLocked(name string, d time.Duration, fn func()) {
	t := &task{name: name}
	c.tasks[t] = struct{}{}
	t.timer = c.opts.Scheduler.AfterFunc(d, func() {
		c.mu.Lock()
		if _, ok := c.tasks[t]; !ok {
			c.mu.Unlock()
			return
		}
		delete(c.tasks, t)
		c.mu.Unlock()
		fn()
	})
}

func (c *Controller) hasTaskLocked(name string) bool {
	for t := range c.tasks {
		if t.name == name {
			return true
		}
	}
	return false
}

func (c *Controller) cancelAllLocked() {
	for t := range c.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(c.tasks, t)
	}
}
