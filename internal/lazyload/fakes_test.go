package lazyload

import (
	"sync"
	"time"

	"chatlog-cli/internal/events"
)

type fakeElement struct {
	parent       *fakeElement
	overflow     Overflow
	scrollHeight int
	clientHeight int
	scrollTop    int
}

func (e *fakeElement) Parent() Element {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *fakeElement) Overflow() Overflow   { return e.overflow }
func (e *fakeElement) ScrollHeight() int    { return e.scrollHeight }
func (e *fakeElement) ClientHeight() int    { return e.clientHeight }
func (e *fakeElement) ScrollTop() int       { return e.scrollTop }
func (e *fakeElement) SetScrollTop(top int) { e.scrollTop = top }

type fakeObservation struct {
	cb           func(bool)
	disconnected bool
}

func (o *fakeObservation) Disconnect() { o.disconnected = true }

type fakeDocument struct {
	mu           sync.Mutex
	list         *fakeElement
	sentinel     *fakeElement
	body         *fakeElement
	observations []*fakeObservation
}

// newFakeDocument builds body > scroller(1000/400, top 200) > list.
func newFakeDocument() (*fakeDocument, *fakeElement) {
	body := &fakeElement{overflow: OverflowVisible, scrollHeight: 400, clientHeight: 400}
	scroller := &fakeElement{parent: body, overflow: OverflowAuto, scrollHeight: 1000, clientHeight: 400, scrollTop: 200}
	list := &fakeElement{parent: scroller, overflow: OverflowVisible, scrollHeight: 1000, clientHeight: 1000}
	return &fakeDocument{list: list, sentinel: &fakeElement{}, body: body}, scroller
}

func (d *fakeDocument) HistoryList() Element {
	if d.list == nil {
		return nil
	}
	return d.list
}

func (d *fakeDocument) Sentinel() Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sentinel == nil {
		return nil
	}
	return d.sentinel
}

func (d *fakeDocument) Body() Element {
	if d.body == nil {
		return nil
	}
	return d.body
}

func (d *fakeDocument) Observe(_ Element, cb func(bool)) Observation {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := &fakeObservation{cb: cb}
	d.observations = append(d.observations, o)
	return o
}

func (d *fakeDocument) setSentinel(el *fakeElement) {
	d.mu.Lock()
	d.sentinel = el
	d.mu.Unlock()
}

func (d *fakeDocument) last() *fakeObservation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.observations) == 0 {
		return nil
	}
	return d.observations[len(d.observations)-1]
}

func (d *fakeDocument) observationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observations)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingDispatcher) Dispatch(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeScheduler runs timers only when Advance moves its clock past them.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var next *fakeTimer
		for _, t := range s.timers {
			if t.fired || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()
		next.fn()
	}
}

// fireStopped runs the callbacks of stopped timers, as if Stop lost a race
// with the runtime.
func (s *fakeScheduler) fireStopped() {
	s.mu.Lock()
	var fns []func()
	for _, t := range s.timers {
		if t.stopped {
			fns = append(fns, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
