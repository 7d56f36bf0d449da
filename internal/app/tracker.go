package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
)

// OpenResult describes a thread after Open.
type OpenResult struct {
	Thread   domain.Thread
	Messages []domain.Message
	// Refreshed is false when the cached history was fresh enough or the
	// refresh failed. RefreshErr holds the failure.
	Refreshed  bool
	RefreshErr error
}

// Tracker owns the selection and the unread counters.
type Tracker struct {
	store    *store.Store
	sync     *SyncEngine
	freshFor time.Duration
	log      zerolog.Logger
}

// NewTracker creates a Tracker. Histories fetched less than freshFor ago are
// served from the cache when a thread is reopened.
func NewTracker(s *store.Store, e *SyncEngine, freshFor time.Duration, log zerolog.Logger) *Tracker {
	return &Tracker{store: s, sync: e, freshFor: freshFor, log: log}
}

// Open selects threadID in collection c, zeroes its unread count and loads its
// history. Only an unknown thread is an error; a failed history load leaves
// the cached messages in place and is reported in the result.
func (t *Tracker) Open(ctx context.Context, threadID string, c domain.Collection) (*OpenResult, error) {
	if err := t.store.SetActive(ctx, threadID, c); err != nil {
		return nil, fmt.Errorf("failed to open thread: %w", err)
	}
	if _, err := t.store.MarkRead(ctx, threadID); err != nil {
		return nil, fmt.Errorf("failed to open thread: %w", err)
	}

	res := &OpenResult{}
	if !t.store.HasMessages(threadID) || !t.sync.IsFresh(threadID, t.freshFor) {
		err := t.sync.RefreshMessages(ctx, threadID)
		switch {
		case err == nil:
			res.Refreshed = true
		case IsStale(err):
			// A newer refresh of the same thread owns the result.
		default:
			res.RefreshErr = err
		}
	}

	res.Thread, _ = t.store.Thread(threadID)
	res.Messages = t.store.Messages(threadID)
	return res, nil
}

// StartDirect opens the direct conversation with userID, starting a draft
// thread if no conversation with that user is listed yet. The draft is kept
// while it is open and replaced by the server's copy once the server lists
// the conversation. name labels the draft; it defaults to "User <id>".
func (t *Tracker) StartDirect(ctx context.Context, userID, name string) (*OpenResult, error) {
	userID = strings.TrimSpace(userID)
	if c, raw, ok := domain.SplitThreadKey(userID); ok {
		if c != domain.CollectionDirect {
			return nil, fmt.Errorf("failed to start conversation: %s is not a direct thread", userID)
		}
		userID = raw
	}
	if userID == "" || strings.Contains(userID, ":") {
		return nil, fmt.Errorf("failed to start conversation: invalid user id %q", userID)
	}
	if me := t.store.Identity(); !me.IsZero() && me.UserID == userID {
		return nil, fmt.Errorf("failed to start conversation: %s is the signed-in user", userID)
	}

	key := domain.ThreadKey(domain.CollectionDirect, userID)
	if _, ok := t.store.Thread(key); !ok {
		if name = strings.TrimSpace(name); name == "" {
			name = "User " + userID
		}
		draft := domain.Thread{ID: key, Name: name, LastActivityAt: time.Now(), Draft: true}
		if err := t.store.UpsertThread(ctx, domain.CollectionDirect, draft); err != nil {
			return nil, fmt.Errorf("failed to start conversation: %w", err)
		}
		t.log.Debug().Str("thread", key).Msg("started draft conversation")
	}
	return t.Open(ctx, key, domain.CollectionDirect)
}

// SwitchCollection makes c the active collection and refreshes it. The other
// collection is left as it is. The returned error is the refresh failure,
// after which the cached list of c is still shown.
func (t *Tracker) SwitchCollection(ctx context.Context, c domain.Collection) error {
	if err := t.store.SetCollection(ctx, c); err != nil {
		return fmt.Errorf("failed to switch collection: %w", err)
	}
	if err := t.sync.RefreshCollection(ctx, c); err != nil && !IsStale(err) {
		return err
	}
	return nil
}

// Close clears the open thread but keeps the active collection.
func (t *Tracker) Close(ctx context.Context) error {
	return t.store.SetActive(ctx, "", t.store.Selection().Collection)
}
