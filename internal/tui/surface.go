package tui

import (
	"sync"

	"chatlog-cli/internal/lazyload"
)

// surface 把 transcript 视口以文档树的形式暴露给分页 controller：
// body > viewport（可滚动）> history list > sentinel。
//
// 真正的视口归 model 所有，通过 sync 写入尺寸。controller 可能在定时器 goroutine
// 中读取和监听，所以这里的状态都由 mu 保护，observer 回调在锁外执行。
type surface struct {
	mu          sync.Mutex
	lines       int
	height      int
	offset      int
	mounted     bool
	hasSentinel bool

	// requested 是 controller 写入但尚未应用的偏移。
	requested    int
	hasRequested bool

	observers map[*observation]struct{}
	// wake 通知 UI 循环投递待处理的 observer 回报。
	wake func()

	body, viewport, list, sentinel *element
}

type elementKind int

const (
	kindBody elementKind = iota
	kindViewport
	kindList
	kindSentinel
)

func newSurface(wake func()) *surface {
	s := &surface{observers: map[*observation]struct{}{}, wake: wake}
	s.body = &element{s: s, kind: kindBody}
	s.viewport = &element{s: s, kind: kindViewport}
	s.list = &element{s: s, kind: kindList}
	s.sentinel = &element{s: s, kind: kindSentinel}
	return s
}

// sync 记录当前视口状态。
func (s *surface) sync(lines, height, offset int, mounted, hasSentinel bool) {
	s.mu.Lock()
	s.lines, s.height, s.offset = lines, height, offset
	s.mounted, s.hasSentinel = mounted, hasSentinel
	s.mu.Unlock()
}

// takeScroll 返回自上次调用以来 controller 请求的偏移。
func (s *surface) takeScroll() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	top, ok := s.requested, s.hasRequested
	s.hasRequested = false
	return top, ok
}

func (s *surface) sentinelVisibleLocked() bool {
	return s.mounted && s.hasSentinel && s.offset == 0
}

// notify 向尚未收到回报或上次回报不同的 observer 报告 sentinel 可见性。
func (s *surface) notify() {
	s.mu.Lock()
	visible := s.sentinelVisibleLocked()
	var calls []func(bool)
	for o := range s.observers {
		if o.reported && o.last == visible {
			continue
		}
		o.reported, o.last = true, visible
		calls = append(calls, o.cb)
	}
	s.mu.Unlock()
	for _, cb := range calls {
		cb(visible)
	}
}

// pulse 报告 sentinel 先离开再回到视野，用来表示视口已到顶时继续上滚。
func (s *surface) pulse() {
	s.mu.Lock()
	if !s.sentinelVisibleLocked() {
		s.mu.Unlock()
		return
	}
	var calls []func(bool)
	for o := range s.observers {
		if !o.reported {
			continue
		}
		o.last = true
		calls = append(calls, o.cb)
	}
	s.mu.Unlock()
	for _, cb := range calls {
		cb(false)
		cb(true)
	}
}

func (s *surface) observerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

func (s *surface) HistoryList() lazyload.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return nil
	}
	return s.list
}

func (s *surface) Sentinel() lazyload.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || !s.hasSentinel {
		return nil
	}
	return s.sentinel
}

func (s *surface) Body() lazyload.Element { return s.body }

// Observe 注册 cb，首次回报在下一轮 UI 更新时投递。
func (s *surface) Observe(_ lazyload.Element, cb func(bool)) lazyload.Observation {
	o := &observation{s: s, cb: cb}
	s.mu.Lock()
	s.observers[o] = struct{}{}
	wake := s.wake
	s.mu.Unlock()
	if wake != nil {
		go wake()
	}
	return o
}

type observation struct {
	s        *surface
	cb       func(bool)
	reported bool
	last     bool
}

func (o *observation) Disconnect() {
	o.s.mu.Lock()
	delete(o.s.observers, o)
	o.s.mu.Unlock()
}

type element struct {
	s    *surface
	kind elementKind
}

func (e *element) Parent() lazyload.Element {
	switch e.kind {
	case kindViewport:
		return e.s.body
	case kindList:
		return e.s.viewport
	case kindSentinel:
		return e.s.list
	}
	return nil
}

func (e *element) Overflow() lazyload.Overflow {
	if e.kind == kindViewport {
		return lazyload.OverflowAuto
	}
	return lazyload.OverflowVisible
}

func (e *element) ScrollHeight() int {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	switch e.kind {
	case kindViewport, kindList:
		return e.s.lines
	case kindSentinel:
		return 1
	}
	return e.s.height
}

func (e *element) ClientHeight() int {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	switch e.kind {
	case kindList:
		return e.s.lines
	case kindSentinel:
		return 1
	}
	return e.s.height
}

func (e *element) ScrollTop() int {
	if e.kind != kindViewport {
		return 0
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.s.offset
}

func (e *element) SetScrollTop(top int) {
	if e.kind != kindViewport {
		return
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	maxTop := e.s.lines - e.s.height
	if maxTop < 0 {
		maxTop = 0
	}
	if top > maxTop {
		top = maxTop
	}
	if top < 0 {
		top = 0
	}
	e.s.offset = top
	e.s.requested, e.s.hasRequested = top, true
}
