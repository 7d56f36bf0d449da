package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store/sqlite"
)

// Messages emitted by searchModel.

type searchQueryMsg struct {
	query string
}

type closeSearchMsg struct{}

// searchModel searches the cached message text of the current account.
type searchModel struct {
	input     textinput.Model
	results   []sqlite.SearchHit
	cursor    int
	searching bool
	inputMode bool
	width     int
	height    int
}

func newSearch() searchModel {
	ti := textinput.New()
	ti.Placeholder = "Search messages..."
	ti.Prompt = "/ "
	ti.CharLimit = 256
	return searchModel{
		input:     ti,
		inputMode: true,
	}
}

func (s searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	if !s.searching {
		return s, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Back):
			if !s.inputMode {
				s.inputMode = true
				return s, s.input.Focus()
			}
			return s, func() tea.Msg { return closeSearchMsg{} }

		case key.Matches(msg, keys.Enter):
			if s.inputMode {
				q := strings.TrimSpace(s.input.Value())
				if q == "" {
					return s, nil
				}
				s.inputMode = false
				s.input.Blur()
				s.cursor = 0
				return s, func() tea.Msg { return searchQueryMsg{query: q} }
			}
			if s.cursor >= len(s.results) {
				return s, nil
			}
			hit := s.results[s.cursor]
			return s, func() tea.Msg {
				return threadSelectedMsg{threadID: hit.Message.ThreadID, collection: hit.Collection}
			}

		case !s.inputMode && key.Matches(msg, keys.Up):
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil

		case !s.inputMode && key.Matches(msg, keys.Down):
			if s.cursor < len(s.results)-1 {
				s.cursor++
			}
			return s, nil
		}
	}

	if s.inputMode {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s searchModel) View() string {
	if !s.searching || s.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(s.input.View())
	b.WriteByte('\n')

	if len(s.results) == 0 {
		if !s.inputMode {
			b.WriteByte('\n')
			b.WriteString(mutedTextStyle.Render("No results"))
		}
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(titleStyle.Render(fmt.Sprintf("Results (%d):", len(s.results))))
	b.WriteByte('\n')

	end := min(len(s.results), max(s.height-4, 1))
	for i := 0; i < end; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		line := s.renderResultRow(i)
		if !s.inputMode && i == s.cursor {
			line = selectedStyle.Width(s.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// Open shows the search overlay with the query input focused.
func (s *searchModel) Open() tea.Cmd {
	s.searching = true
	s.inputMode = true
	return s.input.Focus()
}

// Close hides the overlay and forgets the query and its results.
func (s *searchModel) Close() {
	s.searching = false
	s.inputMode = true
	s.input.SetValue("")
	s.input.Blur()
	s.results = nil
	s.cursor = 0
}

// SetResults replaces the result list and moves the cursor to the first hit.
func (s *searchModel) SetResults(results []sqlite.SearchHit) {
	s.results = results
	s.cursor = 0
}

// SetSize resizes the overlay. The input leaves room for its border.
func (s *searchModel) SetSize(w, h int) {
	s.width = w
	s.height = h
	s.input.Width = w - 4
}

// IsActive reports whether the overlay is shown and owns key input.
func (s searchModel) IsActive() bool {
	return s.searching
}

func (s searchModel) renderResultRow(idx int) string {
	hit := s.results[idx]

	name := hit.ThreadName
	if name == "" {
		name = hit.Message.ThreadID
	}
	kind := "dm"
	if hit.Collection == domain.CollectionGroup {
		kind = "group"
	}
	date := relativeDate(hit.Message.Time())

	nameWidth := 18
	kindCol := mutedTextStyle.Render(fmt.Sprintf("%-6s", kind))
	textWidth := max(s.width-nameWidth-len(date)-12, 10)

	nameCol := lipgloss.NewStyle().Width(nameWidth).Render(truncate(name, nameWidth))
	textCol := lipgloss.NewStyle().Width(textWidth).Render(truncate(domain.Preview(hit.Message.Text), textWidth))
	dateCol := mutedTextStyle.Render(date)

	return kindCol + nameCol + "  " + textCol + "  " + dateCol
}
