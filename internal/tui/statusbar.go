package tui

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

type statusBar struct {
	message      string
	width        int
	isError      bool
	multiAccount bool
	pane         pane
	composing    bool

	// expiresAt is set for notices that clear themselves.
	expiresAt time.Time
}

func newStatusBar() statusBar {
	return statusBar{message: "Ready"}
}

func (s *statusBar) setMessage(msg string) {
	s.message = msg
	s.isError = false
	s.expiresAt = time.Time{}
}

func (s *statusBar) setError(msg string) {
	s.message = msg
	s.isError = true
	s.expiresAt = time.Time{}
}

// setNotice shows an error that clearExpired removes once expiresAt passes.
func (s *statusBar) setNotice(msg string, expiresAt time.Time) {
	s.setError(msg)
	s.expiresAt = expiresAt
}

func (s *statusBar) clearExpired(now time.Time) {
	if !s.expiresAt.IsZero() && !now.Before(s.expiresAt) {
		s.setMessage("")
	}
}

func (s statusBar) View() string {
	msgStyle := statusBarStyle
	if s.isError {
		msgStyle = msgStyle.Foreground(errorColor)
	}

	left := s.message
	shortcuts := s.shortcuts()

	gap := max(s.width-lipgloss.Width(left)-lipgloss.Width(shortcuts)-2, 0)

	content := left + lipgloss.NewStyle().Width(gap).Render("") + mutedTextStyle.Render(shortcuts)
	return msgStyle.Width(s.width).Render(content)
}

func (s statusBar) shortcuts() string {
	var base string
	switch {
	case s.composing:
		return "enter:send  ctrl+j:newline  esc:done"
	case s.pane == paneConversation:
		base = "j/k:scroll  i:write  esc:close  r:refresh"
	default:
		base = "j/k:nav  enter:open  1/2:direct/groups  /:search  r:refresh"
	}
	if s.multiAccount {
		return base + "  @:account"
	}
	return base
}
