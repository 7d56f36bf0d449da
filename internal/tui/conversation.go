package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/termchat/internal/domain"
)

// Messages emitted by conversationModel.

type closeConversationMsg struct{}

type focusComposerMsg struct{}

// conversationModel shows the open thread's messages in a scrollable view
// that follows the newest message unless the user scrolled up.
type conversationModel struct {
	thread       domain.Thread
	messages     []domain.Message
	content      string
	scrollOffset int
	maxScroll    int
	width        int
	height       int
	focused      bool
	visible      bool
}

func newConversation() conversationModel {
	return conversationModel{}
}

func (c conversationModel) Update(msg tea.Msg) (conversationModel, tea.Cmd) {
	if !c.focused || !c.visible {
		return c, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if c.scrollOffset > 0 {
				c.scrollOffset--
			}

		case key.Matches(msg, keys.Down):
			if c.scrollOffset < c.maxScroll {
				c.scrollOffset++
			}

		case key.Matches(msg, keys.Back):
			return c, func() tea.Msg { return closeConversationMsg{} }

		case key.Matches(msg, keys.Compose), key.Matches(msg, keys.Enter):
			return c, func() tea.Msg { return focusComposerMsg{} }
		}
	}

	return c, nil
}

func (c conversationModel) View() string {
	if !c.visible || c.width == 0 || c.height == 0 {
		return ""
	}

	header := titleStyle.Render(truncate(c.thread.Name, c.width))
	if c.thread.Collection == domain.CollectionGroup && c.thread.MemberCount > 0 {
		header += mutedTextStyle.Render("  " + pluralMembers(c.thread.MemberCount))
	}

	if len(c.messages) == 0 {
		return header + "\n" + mutedTextStyle.Render("No messages yet")
	}

	lines := strings.Split(c.content, "\n")
	start := min(c.scrollOffset, len(lines))
	end := min(start+c.bodyHeight(), len(lines))
	return header + "\n" + strings.Join(lines[start:end], "\n")
}

// Show displays thread with messages. The view stays pinned to the bottom if
// it was there before.
func (c *conversationModel) Show(thread domain.Thread, messages []domain.Message) {
	pinned := !c.visible || c.thread.ID != thread.ID || c.scrollOffset >= c.maxScroll
	if c.thread.ID != thread.ID {
		c.scrollOffset = 0
	}

	c.thread = thread
	c.messages = messages
	c.visible = true
	c.content = renderMessages(thread, messages, c.width)
	c.recalcMaxScroll()
	if pinned {
		c.scrollOffset = c.maxScroll
	}
}

// Close hides the pane and drops the thread it showed.
func (c *conversationModel) Close() {
	c.visible = false
	c.thread = domain.Thread{}
	c.messages = nil
	c.content = ""
	c.scrollOffset = 0
	c.maxScroll = 0
}

// SetSize rewraps the messages for the new width. A view scrolled to the
// newest message stays there.
func (c *conversationModel) SetSize(w, h int) {
	pinned := c.scrollOffset >= c.maxScroll
	c.width = w
	c.height = h
	if c.visible {
		c.content = renderMessages(c.thread, c.messages, c.width)
	}
	c.recalcMaxScroll()
	if pinned {
		c.scrollOffset = c.maxScroll
	}
}

func (c conversationModel) IsVisible() bool {
	return c.visible
}

// --- internal helpers ---

// bodyHeight is the number of message lines below the header.
func (c conversationModel) bodyHeight() int {
	return max(c.height-1, 1)
}

func (c *conversationModel) recalcMaxScroll() {
	if c.content == "" {
		c.maxScroll = 0
		c.scrollOffset = 0
		return
	}
	lines := strings.Count(c.content, "\n") + 1
	c.maxScroll = max(lines-c.bodyHeight(), 0)
	if c.scrollOffset > c.maxScroll {
		c.scrollOffset = c.maxScroll
	}
}

func renderMessages(thread domain.Thread, messages []domain.Message, width int) string {
	parts := make([]string, 0, len(messages))
	for i := range messages {
		parts = append(parts, renderMessage(thread, &messages[i], width))
	}
	return strings.Join(parts, "\n")
}

func renderMessage(thread domain.Thread, m *domain.Message, width int) string {
	var b strings.Builder

	b.WriteString(senderLabel(thread, m))
	b.WriteString(mutedTextStyle.Render("  " + m.Time().Format("Jan 2 15:04")))
	switch m.DeliveryState {
	case domain.DeliveryPending:
		b.WriteString(mutedTextStyle.Render("  sending…"))
	case domain.DeliveryFailed:
		reason := "not sent"
		if m.Error != "" {
			reason += ": " + m.Error
		}
		b.WriteString(failedStyle.Render("  " + reason))
	}
	b.WriteByte('\n')

	body := lipgloss.NewStyle().Width(max(width-2, 10)).Render(m.Text)
	if m.DeliveryState == domain.DeliveryFailed {
		body = failedStyle.Render(body)
	}
	b.WriteString(indent(body, "  "))
	return b.String()
}

func senderLabel(thread domain.Thread, m *domain.Message) string {
	if m.Direction == domain.DirectionSent {
		return sentNameStyle.Render("You")
	}
	if thread.Collection == domain.CollectionDirect && thread.Name != "" {
		return receivedNameStyle.Render(thread.Name)
	}
	if m.SenderID != "" {
		return receivedNameStyle.Render("user " + m.SenderID)
	}
	return receivedNameStyle.Render("unknown")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

func pluralMembers(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}
