package store

import (
	"context"
	"slices"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
)

// Snapshot is the persisted form of the Store: both collections, every
// cached message list and the selection. Session identity is not part of it.
type Snapshot struct {
	Direct    []domain.Thread
	Group     []domain.Thread
	Messages  map[string][]domain.Message
	Selection domain.Selection
	SavedAt   time.Time
}

// Threads returns the partition for c.
func (s *Snapshot) Threads(c domain.Collection) []domain.Thread {
	if c == domain.CollectionGroup {
		return s.Group
	}
	return s.Direct
}

// Persister stores whole snapshots. SaveSnapshot must be atomic: after a
// failure the previously saved snapshot is still the one LoadSnapshot returns.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	// LoadSnapshot returns nil, nil when nothing has been saved yet.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	ClearSnapshot(ctx context.Context) error
}

func cloneMessages(m map[string][]domain.Message) map[string][]domain.Message {
	out := make(map[string][]domain.Message, len(m))
	for id, msgs := range m {
		out[id] = slices.Clone(msgs)
	}
	return out
}
