package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up            key.Binding
	Down          key.Binding
	Enter         key.Binding
	Back          key.Binding
	Compose       key.Binding
	Direct        key.Binding
	Groups        key.Binding
	Refresh       key.Binding
	Search        key.Binding
	Tab           key.Binding
	SwitchAccount key.Binding
	Quit          key.Binding
}

var keys = keyMap{
	Up:            key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:          key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Enter:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:          key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Compose:       key.NewBinding(key.WithKeys("i", "c"), key.WithHelp("i", "write")),
	Direct:        key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "direct")),
	Groups:        key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "groups")),
	Refresh:       key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "refresh")),
	Search:        key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Tab:           key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	SwitchAccount: key.NewBinding(key.WithKeys("@"), key.WithHelp("@", "account")),
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
