package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/events"
	"chatlog-cli/internal/lazyload"
	"chatlog-cli/internal/logger"
	"chatlog-cli/internal/tui/render"
	"chatlog-cli/internal/uistate"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

type Options struct {
	Queue     *events.EventQueue
	SessionID string
	Title     string

	// Loader is rewound when a new session starts.
	Loader interface{ Reset() }

	ResetDelay  time.Duration
	ReinitDelay time.Duration
	RetryDelay  time.Duration
	// Scheduler overrides the controller's timers.
	Scheduler lazyload.Scheduler

	// Copy defaults to the system clipboard.
	Copy   func(string) error
	Logger *logger.LogEntry
}

// queueEventMsg 包装 EQ 中的事件。
type queueEventMsg struct {
	Event events.Event
}

// observeMsg 触发一次 sentinel 可见性检查。
type observeMsg struct{}

type Model struct {
	queue    *events.EventQueue
	eqSub    <-chan events.Event
	loader   interface{ Reset() }
	copyText func(string) error
	log      *logger.LogEntry

	ctrl       *lazyload.Controller
	surface    *surface
	viewport   render.Viewport
	transcript *render.Transcript
	starts     []int
	spin       spinner.Model

	search       textinput.Model
	searching    bool
	matches      []int
	matchCursor  int
	searchStatus string

	ui        uistate.State
	sessionID string
	title     string
	status    string
	err       error
	active    bool
	width     int
	height    int

	transcriptDirty bool
	quitting        bool
}

func New(opts Options) *Model {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	title := opts.Title
	if title == "" {
		title = "chatlog"
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("tui")
	}
	copyText := opts.Copy
	if copyText == nil {
		copyText = clipboard.WriteAll
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search transcript"

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := &Model{
		queue:      opts.Queue,
		loader:     opts.Loader,
		copyText:   copyText,
		log:        log,
		viewport:   render.NewViewport(80, 20),
		transcript: render.NewTranscript(),
		spin:       spin,
		search:     search,
		sessionID:  sessionID,
		title:      title,
		ui: uistate.State{
			Conversation:      uistate.Loading,
			PersistentHistory: true,
		},
		transcriptDirty: true,
	}
	if m.queue != nil {
		m.eqSub = m.queue.Subscribe()
	}
	m.surface = newSurface(nil)

	ctrlOpts := lazyload.Options{
		Document:    m.surface,
		Scheduler:   opts.Scheduler,
		ResetDelay:  opts.ResetDelay,
		ReinitDelay: opts.ReinitDelay,
		RetryDelay:  opts.RetryDelay,
		SessionID:   sessionID,
		Logger:      log.WithField("component", "lazyload"),
	}
	if m.queue != nil {
		ctrlOpts.Dispatcher = m.queue
	}
	m.ctrl = lazyload.New(ctrlOpts)
	return m
}

// Attach 设置 observer 首次回报时唤醒 UI 的方式，通常是 program.Send。
func (m *Model) Attach(send func(tea.Msg)) {
	if send == nil {
		return
	}
	m.surface.mu.Lock()
	m.surface.wake = func() { send(observeMsg{}) }
	m.surface.mu.Unlock()
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick}
	if cmd := m.listenQueue(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m.finish(cmds...)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
		return m.finish(cmds...)
	case observeMsg:
		return m.finish(cmds...)
	case queueEventMsg:
		m.handleEvent(msg.Event)
		cmds = append(cmds, m.listenQueue())
		return m.finish(cmds...)
	case tea.KeyMsg:
		if m.searching {
			cmds = append(cmds, m.updateSearch(msg))
			return m.finish(cmds...)
		}
		cmds = append(cmds, m.handleKey(msg))
		return m.finish(cmds...)
	case tea.MouseMsg:
		atTop := m.viewport.AtTop()
		cmds = append(cmds, m.viewport.HandleUpdate(msg))
		if atTop && msg.Button == tea.MouseButtonWheelUp {
			m.syncSurface()
			m.surface.pulse()
		}
		return m.finish(cmds...)
	}
	return m.finish(cmds...)
}

// finish 在每次 Update 结束时刷新 transcript 并把 sentinel 状态报告给 observer。
func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	if m.transcriptDirty {
		m.flushTranscript()
	}
	m.syncSurface()
	m.surface.notify()
	if m.quitting {
		cmds = append(cmds, tea.Quit)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) listenQueue() tea.Cmd {
	if m.eqSub == nil {
		return nil
	}
	sub := m.eqSub
	return func() tea.Msg {
		evt, ok := <-sub
		if !ok {
			return nil
		}
		return queueEventMsg{Event: evt}
	}
}

func (m *Model) handleEvent(ev events.Event) {
	if ev.SessionID != "" && ev.SessionID != m.sessionID {
		m.log.WithFields(logger.Fields{"type": ev.Type, "session": ev.SessionID}).Debug("drop event from previous session")
		return
	}
	switch ev.Type {
	case events.EventAddActivity:
		act, ok := ev.Payload.(activity.Activity)
		if !ok {
			return
		}
		if m.transcript.Add(act) == 0 {
			return
		}
		m.refreshTranscript()
		if act.ChannelData.HasTag(activity.PullTriggerTag) {
			// 拉取触发条到达即表示已连接，transcript 挂载后才能观察 sentinel。
			m.markActive()
			m.flushTranscript()
			m.syncSurface()
			m.ctrl.InitObserver()
		}
	case events.EventFetchHistory:
		m.transcript.SetLoading(true)
		m.refreshTranscript()
	case events.EventHistoryBatchLoaded:
		batch, ok := ev.Payload.(events.HistoryBatch)
		if !ok {
			return
		}
		m.applyBatch(batch)
	case events.EventNoMoreHistory:
		m.ctrl.HandleNoMoreHistoryAvailable()
		m.transcript.SetLoading(false)
		m.transcript.SetExhausted(true)
		m.markActive()
		m.refreshTranscript()
	case events.EventHistoryLoadError:
		m.err = fmt.Errorf("load history: %v", ev.Payload)
		m.transcript.SetLoading(false)
		m.refreshTranscript()
		m.flushTranscript()
		m.syncSurface()
		// 高度没有变化，锚定只会释放分页闸门，之后可以再次上滚重试。
		m.ctrl.ApplyScrollAnchor()
		m.applyRequestedScroll()
	case events.EventConnectivity:
		if up, ok := ev.Payload.(bool); ok {
			if up {
				m.status = "connected"
			} else {
				m.status = "offline"
			}
		}
	}
}

// applyBatch 合并一页历史，重绘后让 controller 按高度差恢复滚动位置。
func (m *Model) applyBatch(batch events.HistoryBatch) {
	m.viewport.Hold()
	defer m.viewport.Release()

	m.transcript.Add(batch.Activities...)
	m.transcript.SetLoading(false)
	m.err = nil
	m.markActive()
	m.refreshTranscript()
	m.flushTranscript()
	m.syncSurface()

	m.ctrl.ApplyScrollAnchor()
	m.applyRequestedScroll()
	m.log.WithFields(logger.Fields{
		"rendered": len(batch.Activities),
		"dropped":  batch.Dropped,
		"more":     batch.More,
	}).Debug("history batch applied")
}

func (m *Model) applyRequestedScroll() {
	if top, ok := m.surface.takeScroll(); ok {
		m.viewport.SetYOffset(top)
	}
}

func (m *Model) markActive() {
	if m.active {
		return
	}
	m.active = true
	m.ui.Conversation = uistate.Active
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.ctrl.Unmount()
		m.quitting = true
		return nil
	case "m":
		m.ui.Minimized = !m.ui.Minimized
		m.refreshTranscript()
		if !m.ui.Minimized {
			m.remountObserver()
		}
		return nil
	}
	if m.ui.Minimized {
		return nil
	}

	switch msg.String() {
	case "/":
		m.searching = true
		m.search.SetValue("")
		m.searchStatus = ""
		return m.search.Focus()
	case "tab":
		m.nextMatch()
		return nil
	case "esc":
		m.clearSearch()
		return nil
	case "y":
		m.copyTranscript()
		return nil
	case "n":
		m.newSession()
		return nil
	case "up", "k":
		m.scrollUp(func() { m.viewport.ScrollUp(1) })
	case "pgup":
		m.scrollUp(func() { m.viewport.PageUp() })
	case "home", "g":
		m.scrollUp(func() { m.viewport.GotoTop() })
	case "down", "j":
		m.viewport.ScrollDown(1)
	case "pgdown":
		m.viewport.PageDown()
	case "end", "G":
		m.viewport.GotoBottom()
	}
	return nil
}

// scrollUp 滚动视口；已经在顶部时视为一次越过顶部的滚动，触发加载。
func (m *Model) scrollUp(scroll func()) {
	atTop := m.viewport.AtTop()
	scroll()
	if atTop {
		m.syncSurface()
		m.surface.pulse()
	}
}

func (m *Model) copyTranscript() {
	lines, _ := m.transcript.Lines(m.contentWidth())
	text := strings.Join(render.LinesToPlainStrings(lines), "\n")
	if err := m.copyText(text); err != nil {
		m.err = fmt.Errorf("copy transcript: %w", err)
		return
	}
	m.status = fmt.Sprintf("copied %d messages", m.transcript.Len())
}

// newSession 开启新会话：controller 直接复位，transcript 清空后重新插入拉取触发条并请求第一页。
func (m *Model) newSession() {
	m.sessionID = uuid.NewString()
	m.ctrl.DirectReset()
	m.ctrl.SetSessionID(m.sessionID)
	if m.loader != nil {
		m.loader.Reset()
	}
	m.transcript.Reset()
	m.clearSearch()
	m.active = false
	m.err = nil
	m.ui.Conversation = uistate.Loading
	m.status = "new session"
	m.log.WithField("session", m.sessionID).Info("new session")

	m.transcript.Add(activity.PullTrigger())
	m.markActive()
	m.refreshTranscript()
	m.flushTranscript()
	m.syncSurface()
	m.ctrl.InitObserver()
	if m.queue != nil {
		m.queue.Dispatch(events.Event{
			Type:      events.EventFetchHistory,
			SessionID: m.sessionID,
			Timestamp: time.Now(),
		})
	}
}

func (m *Model) resize(width, height int) {
	changed := m.width != 0 && (m.width != width || m.height != height)
	m.width = width
	m.height = height
	viewHeight := height - m.chromeHeight()
	if viewHeight < 1 {
		viewHeight = 1
	}
	m.viewport.Resize(m.contentWidth(), viewHeight)
	m.search.Width = maxInt(10, width-4)
	m.refreshTranscript()
	if changed {
		m.remountObserver()
	}
}

// remountObserver 在 transcript 重新排版后重建 sentinel observer，连续调用会合并。
func (m *Model) remountObserver() {
	if !m.active {
		return
	}
	m.ctrl.ScheduleReset()
}

func (m *Model) contentWidth() int {
	w := m.width - 4 // border + padding
	if w < 10 {
		w = 10
	}
	return w
}

// chromeHeight 是视口以外的行数：header、状态栏、提示行和边框。
func (m *Model) chromeHeight() int {
	return 1 + 1 + 1 + 2
}

func (m *Model) refreshTranscript() {
	m.transcriptDirty = true
}

func (m *Model) flushTranscript() {
	lines, starts := m.transcript.Lines(m.contentWidth())
	m.starts = starts
	m.transcriptDirty = false
	if len(lines) == 0 {
		m.viewport.SetLines([]string{"Waiting for history…"})
		return
	}
	m.viewport.SetLines(render.LinesToStrings(lines))
}

func (m *Model) transcriptMounted() bool {
	return uistate.ShouldShowWebChatContainer(m.ui)
}

func (m *Model) syncSurface() {
	lines := 0
	if m.transcript.Len() > 0 {
		lines = m.viewport.LineCount()
	}
	m.surface.sync(lines, m.viewport.Height, m.viewport.YOffset, m.transcriptMounted(), m.transcript.HasPullTrigger())
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var parts []string
	for _, pane := range uistate.Visible(m.ui) {
		switch pane {
		case uistate.PaneChatButton:
			parts = append(parts, chatButtonStyle.Render(fmt.Sprintf("💬 %s (%d) · m to open", m.title, m.transcript.Len())))
		case uistate.PaneHeader:
			parts = append(parts, m.renderHeader())
		case uistate.PaneLoading:
			parts = append(parts, renderPane(m.spin.View()+" loading history…", m.width, m.viewport.Height))
		case uistate.PaneTranscript:
			if m.ui.Minimized {
				continue
			}
			parts = append(parts, renderPane(m.viewport.View(), m.width, m.viewport.Height))
		case uistate.PaneFooter:
			parts = append(parts, m.renderStatus(), renderHints(m.width))
		}
	}
	if m.searching {
		parts = append(parts, modalStyle.Render(m.search.View()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderHeader() string {
	left := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Render(m.title)
	right := lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).
		Render(fmt.Sprintf("session %s • %s", shortID(m.sessionID), m.ui.Conversation))
	return lipgloss.NewStyle().Padding(0, 1).Width(maxInt(20, m.width)).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().PaddingLeft(2).Render(right)))
}

func (m *Model) renderStatus() string {
	st := m.ctrl.State()
	parts := []string{fmt.Sprintf("%d messages", m.transcript.Len())}
	switch {
	case st.PendingScrollAction:
		parts = append(parts, m.spin.View()+" loading")
	case !st.HasMoreHistoryAvailable:
		parts = append(parts, "all history loaded")
	}
	percent := int(math.Round(m.viewport.ScrollPercent() * 100))
	parts = append(parts, fmt.Sprintf("%3d%%", percent))
	if m.searchStatus != "" {
		parts = append(parts, m.searchStatus)
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if m.err != nil {
		parts = append(parts, fmt.Sprintf("Error: %v", m.err))
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Padding(0, 1).
		Width(maxInt(20, m.width)).
		Render(render.Truncate(strings.Join(parts, " • "), maxInt(10, m.width-2)))
}

func renderPane(body string, width, height int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#5E6472")).
		Padding(0, 1)
	if width > 2 {
		style = style.Width(width - 2)
	}
	if height > 0 {
		style = style.Height(height)
	}
	return style.Render(body)
}

func renderHints(width int) string {
	hint := "↑/↓ 滚动 • / 搜索 • tab 下一个 • y 复制 • m 最小化 • n 新会话 • q 退出"
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D7A85")).
		Padding(0, 1).
		Width(maxInt(20, width)).
		Render(render.Truncate(hint, maxInt(10, width-2)))
}

var (
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.Color("#FFB454"))
	chatButtonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.Color("#7D56F4"))
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SessionID returns the active session id.
func (m *Model) SessionID() string {
	return m.sessionID
}

// Activities returns a copy of the loaded transcript.
func (m *Model) Activities() []activity.Activity {
	return m.transcript.Activities()
}
