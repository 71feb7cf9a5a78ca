package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/events"
	"chatlog-cli/internal/lazyload"
	"chatlog-cli/internal/logger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleScheduler never fires; tests drive the controller through the UI.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) lazyload.Timer { return idleTimer{} }

type resetCounter struct{ n int }

func (r *resetCounter) Reset() { r.n++ }

type harness struct {
	m      *Model
	q      *events.EventQueue
	sub    <-chan events.Event
	loader *resetCounter
	copied string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	q := events.NewEventQueue(256)
	q.SetLogger(logger.Discard())
	t.Cleanup(q.Close)
	h := &harness{q: q, sub: q.Subscribe(), loader: &resetCounter{}}
	h.m = New(Options{
		Queue:     q,
		SessionID: "s1",
		Loader:    h.loader,
		Scheduler: idleScheduler{},
		Logger:    logger.Discard(),
		Copy: func(s string) error {
			h.copied = s
			return nil
		},
	})
	h.m.Update(tea.WindowSizeMsg{Width: 80, Height: 15})
	return h
}

func (h *harness) send(ev events.Event) {
	h.m.Update(queueEventMsg{Event: ev})
}

func (h *harness) key(k string) {
	switch k {
	case "home":
		h.m.Update(tea.KeyMsg{Type: tea.KeyHome})
	case "up":
		h.m.Update(tea.KeyMsg{Type: tea.KeyUp})
	case "enter":
		h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	default:
		h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	}
}

// fetches drains the test subscription and counts fetch requests.
func (h *harness) fetches() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-h.sub:
			if ev.Type == events.EventFetchHistory {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func batch(from, n int) events.HistoryBatch {
	acts := make([]activity.Activity, 0, n)
	for i := 0; i < n; i++ {
		seq := int64(from + i)
		ts := time.UnixMilli(seq * 1000).UTC()
		acts = append(acts, activity.Activity{
			Type:        "message",
			Text:        "message " + strings.Repeat("x", i%3) + time.UnixMilli(seq).UTC().Format("05.000"),
			From:        activity.Account{Role: activity.RoleBot, Name: "Agent"},
			Timestamp:   &ts,
			ChannelData: activity.ChannelData{Tags: []string{activity.HistoryTag}, SequenceID: seq},
		})
	}
	return events.HistoryBatch{Activities: acts, Received: n, More: true}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.send(events.Event{Type: events.EventAddActivity, Payload: activity.PullTrigger()})
	require.Equal(t, 1, h.m.surface.observerCount())
	require.True(t, h.m.ctrl.State().IsReady)
}

func TestInitialBatchLandsAtBottom(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 20)})

	assert.True(t, h.m.viewport.AtBottom())
	assert.Empty(t, h.fetches(), "landing at the bottom must not request more")
	assert.Equal(t, 21, h.m.transcript.Len())
}

func TestScrollToTopLoadsAndAnchors(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 20)})
	h.fetches()

	h.key("home")
	got := h.fetches()
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
	st := h.m.ctrl.State()
	require.True(t, st.PendingScrollAction)
	before := h.m.viewport.LineCount()
	assert.Equal(t, before, st.PreLoadScrollHeight)

	h.key("home")
	assert.Empty(t, h.fetches(), "one request at a time")

	h.send(events.Event{Type: events.EventHistoryBatchLoaded, SessionID: "s1", Payload: batch(10, 10)})

	after := h.m.viewport.LineCount()
	require.Greater(t, after, before)
	assert.Equal(t, after-before, h.m.viewport.YOffset, "first visible line stays put")
	assert.False(t, h.m.ctrl.State().PendingScrollAction)
	assert.Equal(t, 31, h.m.transcript.Len())
}

func TestScrollPastTopPulsesSentinel(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 1)})
	require.True(t, h.m.viewport.AtTop())
	h.fetches()

	h.key("up")
	assert.Len(t, h.fetches(), 1)
}

func TestNoMoreHistory(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 2)})
	h.send(events.Event{Type: events.EventNoMoreHistory})

	st := h.m.ctrl.State()
	assert.False(t, st.HasMoreHistoryAvailable)
	assert.False(t, st.ObserverActive)
	assert.Zero(t, h.m.surface.observerCount())
	assert.Zero(t, h.m.ctrl.PendingTimers())
	assert.Contains(t, h.m.viewport.View(), "start of conversation")

	h.fetches()
	h.key("up")
	assert.Empty(t, h.fetches())
}

func TestLoadErrorReleasesGate(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 1)})
	h.key("up")
	require.True(t, h.m.ctrl.State().PendingScrollAction)

	h.send(events.Event{Type: events.EventHistoryLoadError, Payload: "boom"})
	require.Error(t, h.m.err)
	assert.Contains(t, h.m.err.Error(), "boom")
	assert.False(t, h.m.ctrl.State().PendingScrollAction)
	assert.False(t, h.m.ctrl.State().Paused)
}

func TestStaleSessionEventsDropped(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, SessionID: "other", Payload: batch(100, 3)})
	assert.Equal(t, 1, h.m.transcript.Len())
}

func TestNewSession(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 3)})
	h.send(events.Event{Type: events.EventNoMoreHistory})
	h.fetches()

	h.key("n")

	assert.NotEqual(t, "s1", h.m.SessionID())
	assert.Equal(t, 1, h.loader.n)
	assert.Equal(t, 1, h.m.transcript.Len())
	assert.True(t, h.m.transcript.HasPullTrigger())
	st := h.m.ctrl.State()
	assert.True(t, st.HasMoreHistoryAvailable)
	assert.False(t, st.InitialLoadComplete)
	assert.True(t, st.Initialized)

	got := h.fetches()
	require.Len(t, got, 1)
	assert.Equal(t, h.m.SessionID(), got[0].SessionID)
}

func TestCopyTranscript(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 2)})

	h.key("y")
	assert.Contains(t, h.copied, "Agent")
	assert.Contains(t, h.copied, "message")
	assert.NotContains(t, h.copied, "\x1b")
	assert.Contains(t, h.m.status, "copied")

	h.m.copyText = func(string) error { return errors.New("no clipboard") }
	h.key("y")
	require.Error(t, h.m.err)
}

func TestSearchJumpsToMatch(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	b := batch(100, 20)
	b.Activities[3].Text = "the needle is here"
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: b})

	h.key("/")
	require.True(t, h.m.searching)
	h.key("needle")
	h.key("enter")

	assert.False(t, h.m.searching)
	require.NotEmpty(t, h.m.matches)
	idx := h.m.matches[0]
	assert.Equal(t, "the needle is here", h.m.transcript.Activities()[idx].Text)
	assert.Equal(t, h.m.starts[idx], h.m.viewport.YOffset)
	assert.Contains(t, h.m.searchStatus, "match 1/")

	h.m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, h.m.matches)
}

func TestMinimizeKeepsTranscriptMounted(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.send(events.Event{Type: events.EventHistoryBatchLoaded, Payload: batch(100, 2)})

	h.key("m")
	assert.True(t, h.m.ui.Minimized)
	assert.Contains(t, h.m.View(), "m to open")
	assert.NotNil(t, h.m.surface.HistoryList(), "persistent history stays mounted")

	assert.False(t, h.m.ctrl.State().ResetPending)

	h.key("m")
	assert.False(t, h.m.ui.Minimized)
	assert.True(t, h.m.ctrl.State().ResetPending, "restore rebuilds the observer")
}

func TestResizeSchedulesObserverReset(t *testing.T) {
	h := newHarness(t)
	h.m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	assert.False(t, h.m.ctrl.State().ResetPending, "nothing to rebuild before the transcript is active")

	h.connect(t)
	h.m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	assert.False(t, h.m.ctrl.State().ResetPending, "same size is not a relayout")

	h.m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.True(t, h.m.ctrl.State().ResetPending)
	assert.Equal(t, 1, h.m.ctrl.PendingTimers())

	h.m.Update(tea.WindowSizeMsg{Width: 70, Height: 20})
	assert.Equal(t, 1, h.m.ctrl.PendingTimers(), "resets coalesce")
}

func TestQuitUnmounts(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.False(t, h.m.ctrl.State().Initialized)
	assert.Zero(t, h.m.surface.observerCount())
	assert.Empty(t, h.m.View())
}
