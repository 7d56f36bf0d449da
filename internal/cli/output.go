package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
)

// printJSON encodes v as indented JSON to stdout.
func printJSON(v any) error {
	return fprintJSON(os.Stdout, v)
}

// fprintJSON encodes v as indented JSON to w.
func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeThreads prints threads as a table.
func writeThreads(out io.Writer, threads []domain.Thread) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNREAD\tNAME\tLAST MESSAGE\tDATE\tTHREAD_ID")
	for _, t := range threads {
		unread := " "
		if t.IsUnread() {
			unread = fmt.Sprintf("%d", t.UnreadCount)
		}
		name := t.Name
		if t.Collection == domain.CollectionDirect && t.IsOnline {
			name += " ●"
		}
		date := ""
		if !t.LastActivityAt.IsZero() {
			date = t.LastActivityAt.Format("Jan 2, 2006")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			unread, clip(name, 30), clip(t.LastMessagePreview, 50), date, t.ID,
		)
	}
	return w.Flush()
}

// formatMessage renders one message as a single transcript line.
func formatMessage(m *domain.Message) string {
	who := "user " + m.SenderID
	if m.Direction == domain.DirectionSent {
		who = "you"
	}
	line := fmt.Sprintf("[%s] %s: %s", m.Time().Format("Jan 2 15:04"), who, m.Text)
	switch m.DeliveryState {
	case domain.DeliveryPending:
		line += " (sending)"
	case domain.DeliveryFailed:
		line += " (not sent"
		if m.Error != "" {
			line += ": " + m.Error
		}
		line += ")"
	}
	return line
}

// formatEvent renders a store event for the watch command.
func formatEvent(ev store.Event) string {
	switch ev.Kind {
	case store.ThreadsChanged:
		return fmt.Sprintf("%s: %s", ev.Kind, ev.Collection)
	case store.MessagesChanged:
		return fmt.Sprintf("%s: thread %s", ev.Kind, ev.ThreadID)
	case store.NoticeRaised:
		if ev.Notice != nil {
			return fmt.Sprintf("%s: %s", ev.Kind, ev.Notice.Text)
		}
	}
	if ev.ThreadID != "" {
		return fmt.Sprintf("%s: %s %s", ev.Kind, ev.Collection, ev.ThreadID)
	}
	return fmt.Sprintf("%s: %s", ev.Kind, ev.Collection)
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
