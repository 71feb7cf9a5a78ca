package tui

import (
	"fmt"
	"strings"

	"chatlog-cli/internal/activity"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// activitySource 把 transcript 适配为 fuzzy.Source。
type activitySource []activity.Activity

func (s activitySource) String(i int) string {
	a := s[i]
	if a.From.Name == "" {
		return a.Text
	}
	return a.From.Name + ": " + a.Text
}

func (s activitySource) Len() int { return len(s) }

func (m *Model) updateSearch(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.clearSearch()
		return nil
	case tea.KeyEnter:
		m.runSearch(m.search.Value())
		m.searching = false
		m.search.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return cmd
}

// runSearch 做模糊匹配并跳到得分最高的一条。
func (m *Model) runSearch(query string) {
	query = strings.TrimSpace(query)
	m.matches = nil
	m.matchCursor = 0
	if query == "" {
		m.clearSearch()
		return
	}
	found := fuzzy.FindFrom(query, activitySource(m.transcript.Activities()))
	for _, f := range found {
		m.matches = append(m.matches, f.Index)
	}
	if len(m.matches) == 0 {
		m.searchStatus = fmt.Sprintf("no match for %q", query)
		m.transcript.SetHighlight(-1)
		m.refreshTranscript()
		return
	}
	m.jumpToMatch()
}

func (m *Model) nextMatch() {
	if len(m.matches) == 0 {
		return
	}
	m.matchCursor = (m.matchCursor + 1) % len(m.matches)
	m.jumpToMatch()
}

func (m *Model) jumpToMatch() {
	idx := m.matches[m.matchCursor]
	m.transcript.SetHighlight(idx)
	m.flushTranscript()
	if idx < len(m.starts) {
		m.viewport.SetYOffset(m.starts[idx])
	}
	m.searchStatus = fmt.Sprintf("match %d/%d", m.matchCursor+1, len(m.matches))
}

func (m *Model) clearSearch() {
	m.searching = false
	m.search.Blur()
	m.search.SetValue("")
	m.matches = nil
	m.matchCursor = 0
	m.searchStatus = ""
	m.transcript.SetHighlight(-1)
	m.refreshTranscript()
}
