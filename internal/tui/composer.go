package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages emitted by composerModel.

type sendMsg struct {
	threadID string
	text     string
}

type blurComposerMsg struct{}

// composerHeight is the number of rows the composer takes under the
// conversation, border included.
const composerHeight = 5

// composerModel is the message input under the open conversation. Enter sends;
// ctrl+j inserts a newline.
type composerModel struct {
	input     textarea.Model
	threadID  string
	maxLength int
	width     int
	focused   bool
}

func newComposer(maxLength int) composerModel {
	ta := textarea.New()
	ta.Placeholder = "Write a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(composerHeight - 2)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j", "alt+enter"))
	return composerModel{input: ta, maxLength: maxLength}
}

func (c composerModel) Update(msg tea.Msg) (composerModel, tea.Cmd) {
	if !c.focused {
		return c, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return c, func() tea.Msg { return blurComposerMsg{} }

		case "enter", "ctrl+s":
			text := c.input.Value()
			threadID := c.threadID
			return c, func() tea.Msg { return sendMsg{threadID: threadID, text: text} }
		}
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c composerModel) View() string {
	border := mutedColor
	if c.focused {
		border = primaryColor
	}

	counter := ""
	if n := len(c.input.Value()); c.maxLength > 0 && n > c.maxLength*9/10 {
		style := mutedTextStyle
		if n > c.maxLength {
			style = failedStyle
		}
		counter = "\n" + style.Render(fmt.Sprintf("%d/%d bytes", n, c.maxLength))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(max(c.width-2, 10)).
		Render(c.input.View() + counter)
}

// Attach points the composer at threadID, keeping any draft when the thread
// does not change.
func (c *composerModel) Attach(threadID string) {
	if c.threadID != threadID {
		c.input.Reset()
	}
	c.threadID = threadID
}

func (c *composerModel) Focus() tea.Cmd {
	c.focused = true
	return c.input.Focus()
}

func (c *composerModel) Blur() {
	c.focused = false
	c.input.Blur()
}

// Clear empties the input after a message was handed to the dispatcher.
func (c *composerModel) Clear() {
	c.input.Reset()
}

func (c *composerModel) SetSize(w int) {
	c.width = w
	c.input.SetWidth(max(w-6, 10))
}

func (c composerModel) IsFocused() bool {
	return c.focused
}
