package render

import (
	"strconv"
	"strings"

	"chatlog-cli/internal/activity"

	"github.com/charmbracelet/lipgloss"
)

var (
	userPrefixStyle = lipgloss.NewStyle().Faint(true).Bold(true)
	userIndentStyle = lipgloss.NewStyle().Faint(true)
	botPrefixStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	botIndentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	metaStyle       = lipgloss.NewStyle().Faint(true)
	bannerStyle     = lipgloss.NewStyle().Faint(true).Italic(true)
	actionStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0ea5e9"))
	matchStyle      = lipgloss.NewStyle().Reverse(true)
)

// Banner 文案，对应拉取触发条的三种状态。
const (
	BannerIdle      = "↑ scroll up for earlier messages"
	BannerLoading   = "↑ loading earlier messages…"
	BannerExhausted = "── start of conversation ──"
)

// Transcript 持有已加载的 activity（按 sequence-id 排序、去重）并渲染为行。
type Transcript struct {
	acts      []activity.Activity
	keys      map[string]struct{}
	loading   bool
	exhausted bool
	highlight int
}

func NewTranscript() *Transcript {
	return &Transcript{keys: map[string]struct{}{}, highlight: -1}
}

// Add 合并 activity，返回实际新增的条数。
func (t *Transcript) Add(acts ...activity.Activity) int {
	added := 0
	for _, a := range acts {
		k := activityKey(a)
		if _, dup := t.keys[k]; dup {
			continue
		}
		t.keys[k] = struct{}{}
		t.acts = append(t.acts, a)
		added++
	}
	if added > 0 {
		activity.SortBySequence(t.acts)
	}
	return added
}

// Reset 清空所有内容，用于新会话。
func (t *Transcript) Reset() {
	t.acts = nil
	t.keys = map[string]struct{}{}
	t.loading = false
	t.exhausted = false
	t.highlight = -1
}

func (t *Transcript) SetLoading(v bool)   { t.loading = v }
func (t *Transcript) SetExhausted(v bool) { t.exhausted = v }

// SetHighlight 高亮第 i 条 activity，-1 取消。
func (t *Transcript) SetHighlight(i int) { t.highlight = i }

func (t *Transcript) Len() int { return len(t.acts) }

func (t *Transcript) Activities() []activity.Activity {
	return append([]activity.Activity{}, t.acts...)
}

// HasPullTrigger 报告拉取触发条是否已插入。
func (t *Transcript) HasPullTrigger() bool {
	for _, a := range t.acts {
		if a.ChannelData.HasTag(activity.PullTriggerTag) {
			return true
		}
	}
	return false
}

// Lines 渲染全部 activity。starts[i] 是第 i 条 activity 的首行下标。
func (t *Transcript) Lines(width int) (lines []Line, starts []int) {
	buf := Buffer{}
	starts = make([]int, len(t.acts))
	for i, a := range t.acts {
		starts[i] = len(buf.Lines)
		if a.ChannelData.HasTag(activity.PullTriggerTag) {
			buf.WriteLines(t.banner(width))
			continue
		}
		block := RenderActivity(a, width)
		if i == t.highlight {
			for j := range block {
				block[j].Style = matchStyle
			}
		}
		buf.WriteLines(block...)
	}
	return buf.Lines, starts
}

func (t *Transcript) banner(width int) Line {
	text := BannerIdle
	switch {
	case t.exhausted:
		text = BannerExhausted
	case t.loading:
		text = BannerLoading
	}
	return Line{Spans: []Span{{Text: Truncate(text, width), Style: bannerStyle}}}
}

// RenderActivity 渲染单条 activity：元信息行、正文、附件和建议操作，末尾留一空行。
func RenderActivity(a activity.Activity, width int) []Line {
	wrapWidth := width - 2
	if wrapWidth < 1 {
		wrapWidth = width
	}
	prefix, indent := Span{Text: "• ", Style: botPrefixStyle}, Span{Text: "  ", Style: botIndentStyle}
	if a.From.Role == activity.RoleUser {
		prefix, indent = Span{Text: "› ", Style: userPrefixStyle}, Span{Text: "  ", Style: userIndentStyle}
	}

	var body []Line
	if meta := metaLine(a); meta != "" {
		body = append(body, Line{Spans: []Span{{Text: Truncate(meta, wrapWidth), Style: metaStyle}}})
	}
	if text := strings.TrimRight(a.Text, "\n"); text != "" {
		for _, l := range wrapText(text, wrapWidth) {
			body = append(body, Line{Spans: []Span{{Text: l}}})
		}
	}
	for _, att := range a.Attachments {
		body = append(body, Line{Spans: []Span{{Text: Truncate(attachmentLabel(att), wrapWidth), Style: metaStyle}}})
	}
	if a.SuggestedActions != nil && len(a.SuggestedActions.Actions) > 0 {
		titles := make([]string, 0, len(a.SuggestedActions.Actions))
		for _, act := range a.SuggestedActions.Actions {
			title := act.Title
			if title == "" {
				title = act.Type
			}
			titles = append(titles, "["+title+"]")
		}
		for _, l := range wrapText(strings.Join(titles, " "), wrapWidth) {
			body = append(body, Line{Spans: []Span{{Text: l, Style: actionStyle}}})
		}
	}
	if len(body) == 0 {
		body = []Line{{}}
	}
	out := PrefixLines(body, prefix, indent)
	return append(out, Line{})
}

func metaLine(a activity.Activity) string {
	parts := []string{}
	if a.From.Name != "" {
		parts = append(parts, a.From.Name)
	}
	if a.Timestamp != nil {
		parts = append(parts, a.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	return strings.Join(parts, " · ")
}

func attachmentLabel(att activity.Attachment) string {
	switch {
	case att.ContentType == activity.ContentTypeAdaptiveCard:
		return "[card]"
	case att.Name != "":
		return "[attachment] " + att.Name
	case att.ContentType != "":
		return "[" + att.ContentType + "]"
	}
	return "[attachment]"
}

func activityKey(a activity.Activity) string {
	if a.ChannelData.HasTag(activity.PullTriggerTag) {
		return activity.PullTriggerTag
	}
	ts := ""
	if a.Timestamp != nil {
		ts = strconv.FormatInt(a.Timestamp.UnixMilli(), 10)
	}
	return strconv.FormatInt(a.ChannelData.SequenceID, 10) + "\x00" + ts + "\x00" + a.From.Role + "\x00" + a.Text
}
