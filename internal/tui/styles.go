package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#0EA5E9")
	secondaryColor = lipgloss.Color("#14B8A6")
	mutedColor     = lipgloss.Color("#64748B")
	accentColor    = lipgloss.Color("#F97316")
	errorColor     = lipgloss.Color("#DC2626")
	successColor   = lipgloss.Color("#22C55E")

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 1)

	listStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	conversationStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(mutedColor).
				Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#0F172A")).
			Foreground(lipgloss.Color("#CBD5E1")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFFFFF"))

	unreadStyle = lipgloss.NewStyle().
			Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	sentNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	receivedNameStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)
