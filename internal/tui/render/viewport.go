package render

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Viewport 包装 bubbles viewport，记录上一帧的行用于 diff。
//
// 内容追加时若原本停在底部则继续贴底；Hold 期间不贴底，滚动位置由调用方
// （分页锚定）负责。
type Viewport struct {
	viewport.Model
	lastLines []string
	hold      bool
}

// NewViewport 创建视口。
func NewViewport(width, height int) Viewport {
	return Viewport{Model: viewport.New(width, height)}
}

// Resize 更新宽高，宽度变化时丢弃 diff 缓存。
func (v *Viewport) Resize(width, height int) {
	if v == nil {
		return
	}
	if v.Width != width {
		v.Invalidate()
	}
	v.Width = width
	v.Height = height
	v.SetYOffset(v.YOffset)
}

// HandleUpdate 代理 bubbles 的 Update。
func (v *Viewport) HandleUpdate(msg tea.Msg) tea.Cmd {
	if v == nil {
		return nil
	}
	var cmd tea.Cmd
	v.Model, cmd = v.Model.Update(msg)
	return cmd
}

// SetLines 更新内容；返回内容是否发生变化。
func (v *Viewport) SetLines(lines []string) bool {
	if v == nil {
		return false
	}
	if v.lastLines != nil && slices.Equal(lines, v.lastLines) {
		return false
	}
	stickToBottom := !v.hold && v.AtBottom()
	v.lastLines = append([]string{}, lines...)
	v.SetContent(strings.Join(lines, "\n"))
	if stickToBottom {
		v.GotoBottom()
	}
	return true
}

// Hold 暂停贴底，直到 Release。
func (v *Viewport) Hold() {
	if v != nil {
		v.hold = true
	}
}

func (v *Viewport) Release() {
	if v != nil {
		v.hold = false
	}
}

func (v *Viewport) Holding() bool {
	return v != nil && v.hold
}

// LineCount 返回内容总行数。
func (v *Viewport) LineCount() int {
	if v == nil {
		return 0
	}
	return v.TotalLineCount()
}

// Invalidate 清空已缓存的行，强制下次 SetLines 重新设置内容。
func (v *Viewport) Invalidate() {
	if v == nil {
		return
	}
	v.lastLines = nil
}
