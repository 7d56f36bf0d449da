package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/termchat/internal/domain"
)

type threadSelectedMsg struct {
	threadID   string
	collection domain.Collection
}

// threadListModel displays the threads of the active collection.
type threadListModel struct {
	threads    []domain.Thread
	collection domain.Collection
	openID     string
	cursor     int
	offset     int
	width      int
	height     int
	focused    bool
}

func newThreadList() threadListModel {
	return threadListModel{collection: domain.CollectionDirect}
}

func (m threadListModel) Update(msg tea.Msg) (threadListModel, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustScroll()
			}

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.threads)-1 {
				m.cursor++
				m.adjustScroll()
			}

		case key.Matches(msg, keys.Enter):
			id := m.SelectedThreadID()
			if id == "" {
				return m, nil
			}
			c := m.collection
			return m, func() tea.Msg {
				return threadSelectedMsg{threadID: id, collection: c}
			}
		}
	}

	return m, nil
}

func (m threadListModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if len(m.threads) == 0 {
		return mutedTextStyle.Render("No conversations")
	}

	var b strings.Builder
	end := min(m.offset+m.visibleRows(), len(m.threads))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		line := m.renderRow(i)
		if i == m.cursor && m.focused {
			line = selectedStyle.Width(m.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// SetThreads replaces the list. The cursor stays on the same thread when it
// is still listed.
func (m *threadListModel) SetThreads(c domain.Collection, threads []domain.Thread, openID string) {
	prev := m.SelectedThreadID()
	if c != m.collection {
		prev = ""
		m.cursor = 0
		m.offset = 0
	}
	m.collection = c
	m.threads = threads
	m.openID = openID

	for i, t := range threads {
		if t.ID == prev {
			m.cursor = i
			break
		}
	}
	m.clampCursor()
}

func (m *threadListModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.adjustScroll()
}

// SelectedThreadID returns the key of the thread under the cursor, or "".
func (m threadListModel) SelectedThreadID() string {
	if len(m.threads) == 0 || m.cursor >= len(m.threads) {
		return ""
	}
	return m.threads[m.cursor].ID
}

func (m threadListModel) visibleRows() int {
	return max(m.height, 1)
}

func (m *threadListModel) adjustScroll() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m *threadListModel) clampCursor() {
	if len(m.threads) == 0 {
		m.cursor = 0
		m.offset = 0
		return
	}
	if m.cursor >= len(m.threads) {
		m.cursor = len(m.threads) - 1
	}
	m.adjustScroll()
}

func (m threadListModel) renderRow(idx int) string {
	t := m.threads[idx]

	marker := "  "
	switch {
	case t.ID == m.openID:
		marker = "▶ "
	case t.Collection == domain.CollectionDirect && t.IsOnline:
		marker = onlineStyle.Render("● ")
	}

	badge := ""
	if t.IsUnread() {
		badge = " " + badgeStyle.Render(fmt.Sprintf("(%d)", t.UnreadCount))
	}
	if t.Collection == domain.CollectionGroup && t.MemberCount > 0 {
		badge += mutedTextStyle.Render(fmt.Sprintf(" [%d]", t.MemberCount))
	}

	date := relativeDate(t.LastActivityAt)

	nameWidth := 18
	dateWidth := len(date)
	previewWidth := max(m.width-nameWidth-lipgloss.Width(badge)-dateWidth-6, 10)

	name := lipgloss.NewStyle().Width(nameWidth).Render(truncate(t.Name, nameWidth))
	preview := lipgloss.NewStyle().Width(previewWidth).Render(truncate(t.LastMessagePreview, previewWidth))
	dateCol := mutedTextStyle.Width(dateWidth).Render(date)

	line := marker + name + badge + "  " + preview + "  " + dateCol
	if t.IsUnread() {
		line = unreadStyle.Render(line)
	}
	return line
}

// --- utility functions ---

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func relativeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
