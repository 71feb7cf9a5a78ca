// Package uistate 根据会话状态决定聊天客户端显示哪些面板。
package uistate

type ConversationState int

const (
	Closed ConversationState = iota
	Loading
	Active
	InActive
	Postchat
	PostchatLoading
	Prechat
	ProactiveChat
	ReconnectChat
	OutOfOffice
	Error
)

var stateNames = [...]string{
	Closed:          "closed",
	Loading:         "loading",
	Active:          "active",
	InActive:        "inactive",
	Postchat:        "postchat",
	PostchatLoading: "postchat-loading",
	Prechat:         "prechat",
	ProactiveChat:   "proactive",
	ReconnectChat:   "reconnect",
	OutOfOffice:     "out-of-office",
	Error:           "error",
}

func (s ConversationState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// State 是客户端对 widget 状态的视图。
type State struct {
	Conversation ConversationState

	Minimized             bool
	HideStartChatButton   bool
	OutsideOperatingHours bool
	ConversationalSurvey  bool
	// ConversationalSurveyEnabled 控制 transcript 内的问卷。
	ConversationalSurveyEnabled bool
	E2VVEnabled                 bool

	ShowEmailTranscriptPane bool
	ShowConfirmationPane    bool

	// PersistentHistory 让 transcript 在最小化时保持挂载，滚动位置得以保留。
	PersistentHistory bool
}

func (s State) is(states ...ConversationState) bool {
	for _, c := range states {
		if s.Conversation == c {
			return true
		}
	}
	return false
}

func ShouldShowChatButton(s State) bool {
	return (s.Minimized || s.is(Closed)) && !s.HideStartChatButton
}

func ShouldShowProactiveChatPane(s State) bool {
	return !s.Minimized && s.is(ProactiveChat)
}

func ShouldShowHeader(s State) bool {
	return !s.Minimized && !s.is(Closed, ProactiveChat)
}

func ShouldShowFooter(s State) bool {
	return !s.Minimized && s.is(Active, InActive, Postchat)
}

func ShouldShowEmailTranscriptPane(s State) bool {
	return s.ShowEmailTranscriptPane
}

// ShouldShowWebChatContainer 判断 transcript 是否挂载；开启持久化历史时最小化也保持挂载。
func ShouldShowWebChatContainer(s State) bool {
	live := s.is(Active, InActive) ||
		(s.is(Postchat) && s.ConversationalSurveyEnabled && s.ConversationalSurvey)
	if s.PersistentHistory {
		return live
	}
	return !s.Minimized && live
}

func ShouldShowLoadingPane(s State) bool {
	return !s.Minimized && s.is(Loading)
}

func ShouldShowStartChatErrorPane(s State) bool {
	return !s.Minimized && s.is(Error)
}

func ShouldShowReconnectChatPane(s State) bool {
	return !s.Minimized && s.is(ReconnectChat)
}

func ShouldShowPostChatLoadingPane(s State) bool {
	return !s.Minimized && s.is(PostchatLoading)
}

func ShouldShowOutOfOfficeHoursPane(s State) bool {
	return !s.Minimized && s.OutsideOperatingHours && s.is(OutOfOffice)
}

func ShouldShowPreChatSurveyPane(s State) bool {
	return s.is(Prechat)
}

func ShouldShowConfirmationPane(s State) bool {
	return s.ShowConfirmationPane
}

func ShouldShowPostChatSurveyPane(s State) bool {
	return s.is(Postchat) && !s.ConversationalSurvey
}

func ShouldShowCallingContainer(s State) bool {
	return s.is(Active) && s.E2VVEnabled
}

// Visible 按从上到下的顺序列出要绘制的面板。
func Visible(s State) []Pane {
	var out []Pane
	for _, p := range panes {
		if p.show(s) {
			out = append(out, p.Pane)
		}
	}
	return out
}

type Pane string

const (
	PaneChatButton      Pane = "chat-button"
	PaneProactive       Pane = "proactive"
	PaneHeader          Pane = "header"
	PaneLoading         Pane = "loading"
	PaneStartChatError  Pane = "start-chat-error"
	PaneReconnect       Pane = "reconnect"
	PaneOutOfOffice     Pane = "out-of-office"
	PanePreChatSurvey   Pane = "prechat-survey"
	PaneCalling         Pane = "calling"
	PaneTranscript      Pane = "transcript"
	PanePostChatLoading Pane = "postchat-loading"
	PanePostChatSurvey  Pane = "postchat-survey"
	PaneEmailTranscript Pane = "email-transcript"
	PaneConfirmation    Pane = "confirmation"
	PaneFooter          Pane = "footer"
)

var panes = []struct {
	Pane
	show func(State) bool
}{
	{PaneChatButton, ShouldShowChatButton},
	{PaneProactive, ShouldShowProactiveChatPane},
	{PaneHeader, ShouldShowHeader},
	{PaneLoading, ShouldShowLoadingPane},
	{PaneStartChatError, ShouldShowStartChatErrorPane},
	{PaneReconnect, ShouldShowReconnectChatPane},
	{PaneOutOfOffice, ShouldShowOutOfOfficeHoursPane},
	{PanePreChatSurvey, ShouldShowPreChatSurveyPane},
	{PaneCalling, ShouldShowCallingContainer},
	{PaneTranscript, ShouldShowWebChatContainer},
	{PanePostChatLoading, ShouldShowPostChatLoadingPane},
	{PanePostChatSurvey, ShouldShowPostChatSurveyPane},
	{PaneEmailTranscript, ShouldShowEmailTranscriptPane},
	{PaneConfirmation, ShouldShowConfirmationPane},
	{PaneFooter, ShouldShowFooter},
}
