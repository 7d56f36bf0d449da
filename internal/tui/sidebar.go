package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/termchat/internal/domain"
)

// collectionSelectedMsg is sent when the user picks a collection via Enter.
type collectionSelectedMsg struct {
	collection domain.Collection
}

var collectionOrder = []domain.Collection{
	domain.CollectionDirect,
	domain.CollectionGroup,
}

var collectionNames = map[domain.Collection]string{
	domain.CollectionDirect: "Direct",
	domain.CollectionGroup:  "Groups",
}

// sidebarModel shows the account and the two thread collections with their
// unread totals.
type sidebarModel struct {
	cursor   int
	active   domain.Collection
	unread   map[domain.Collection]int
	account  string
	accounts int
	width    int
	height   int
	focused  bool
}

func newSidebar() sidebarModel {
	return sidebarModel{
		active: domain.CollectionDirect,
		unread: make(map[domain.Collection]int),
	}
}

func (s *sidebarModel) SetSize(w, h int) {
	s.width = w
	s.height = h
}

// SetCollections records the active collection and per-collection unread
// totals.
func (s *sidebarModel) SetCollections(active domain.Collection, direct, group []domain.Thread) {
	s.active = active
	s.unread[domain.CollectionDirect] = unreadTotal(direct)
	s.unread[domain.CollectionGroup] = unreadTotal(group)
}

func (s sidebarModel) Update(msg tea.Msg) (sidebarModel, tea.Cmd) {
	if !s.focused {
		return s, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			s.cursor--
			if s.cursor < 0 {
				s.cursor = len(collectionOrder) - 1
			}
		case key.Matches(msg, keys.Down):
			s.cursor = (s.cursor + 1) % len(collectionOrder)
		case key.Matches(msg, keys.Enter):
			c := collectionOrder[s.cursor]
			return s, func() tea.Msg {
				return collectionSelectedMsg{collection: c}
			}
		}
	}

	return s, nil
}

func (s sidebarModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("termchat"))
	b.WriteString("\n")
	if s.account != "" {
		b.WriteString(mutedTextStyle.Render(truncate(s.account, max(s.width, 10))))
	}
	b.WriteString("\n\n")

	for i, c := range collectionOrder {
		b.WriteString(s.renderLine(c, i))
		b.WriteString("\n")
	}

	if s.accounts > 1 {
		b.WriteString("\n")
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("%d accounts", s.accounts)))
	}
	return b.String()
}

func (s sidebarModel) renderLine(c domain.Collection, idx int) string {
	prefix := "  "
	if c == s.active {
		prefix = "▶ "
	}

	line := prefix + collectionNames[c]
	if n := s.unread[c]; n > 0 {
		line += " " + badgeStyle.Render(fmt.Sprintf("(%d)", n))
	}

	padded := lipgloss.NewStyle().Width(max(s.width, 10)).Render(line)
	if s.focused && idx == s.cursor {
		return selectedStyle.Render(padded)
	}
	return padded
}

func unreadTotal(threads []domain.Thread) int {
	n := 0
	for _, t := range threads {
		n += t.UnreadCount
	}
	return n
}
