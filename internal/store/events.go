package store

import (
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
)

type EventKind int

const (
	// ThreadsChanged fires when a collection's thread list or a thread's
	// metadata changed.
	ThreadsChanged EventKind = iota + 1
	// MessagesChanged fires when a thread's message list changed.
	MessagesChanged
	// SelectionChanged fires when the active collection or thread changed.
	SelectionChanged
	// NoticeRaised carries an inline, auto-dismissing message for the UI.
	NoticeRaised
)

func (k EventKind) String() string {
	switch k {
	case ThreadsChanged:
		return "threads_changed"
	case MessagesChanged:
		return "messages_changed"
	case SelectionChanged:
		return "selection_changed"
	case NoticeRaised:
		return "notice"
	}
	return "unknown"
}

// Event tells subscribers what to re-read from the Store. It never carries
// state itself, so a dropped event only delays a re-render.
type Event struct {
	Kind       EventKind
	Collection domain.Collection
	ThreadID   string
	Notice     *Notice
}

// Notice is a user-visible error attributed to a thread or a single message.
// The UI should hide it once ExpiresAt has passed.
type Notice struct {
	ThreadID  string
	MessageID string
	Text      string
	ExpiresAt time.Time
}

func (n *Notice) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && !now.Before(n.ExpiresAt)
}

// Subscribe registers a listener. Sends are non-blocking; once the buffer is
// full further events are dropped for that subscriber. The returned cancel
// func closes the channel and is safe to call more than once.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Notify publishes a notice to all subscribers.
func (s *Store) Notify(n Notice) {
	s.emit(Event{Kind: NoticeRaised, ThreadID: n.ThreadID, Notice: &n})
}

func (s *Store) emit(events ...Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ev := range events {
		for _, ch := range s.subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
