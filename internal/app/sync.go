package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
)

// SyncOptions tunes a SyncEngine.
type SyncOptions struct {
	// HistoryLimit is the number of messages fetched per thread (1..100).
	HistoryLimit int
	// MatchWindow bounds how far apart a local unsent message and a server
	// message may be in time and still be treated as the same send.
	MatchWindow time.Duration
}

// SyncEngine pulls authoritative snapshots from the server and merges them
// into the Store without losing local writes the server has not seen yet.
//
// Every refresh takes a generation number for its target before the request
// goes out. A response is applied only if no newer refresh of the same target
// was started in the meantime; otherwise it is dropped with ErrStaleRefresh.
type SyncEngine struct {
	provider provider.ChatProvider
	store    *store.Store
	identity *IdentityResolver
	opts     SyncOptions
	log      zerolog.Logger
	now      func() time.Time

	genMu   sync.Mutex
	gens    map[string]uint64
	fetched map[string]time.Time

	// applyMu makes the generation check and the Store write one step.
	applyMu sync.Mutex
}

// NewSyncEngine returns an engine that refreshes s from p. Zero options take
// a history limit of 50 and a five second match window.
func NewSyncEngine(p provider.ChatProvider, s *store.Store, id *IdentityResolver, opts SyncOptions, log zerolog.Logger) *SyncEngine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = 5 * time.Second
	}
	return &SyncEngine{
		provider: p,
		store:    s,
		identity: id,
		opts:     opts,
		log:      log,
		now:      time.Now,
		gens:     make(map[string]uint64),
		fetched:  make(map[string]time.Time),
	}
}

// RefreshCollection replaces collection c with the server's list. On failure
// the Store is left untouched and the error is returned.
func (e *SyncEngine) RefreshCollection(ctx context.Context, c domain.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("failed to refresh collection: %w", store.ErrInvalidCollection)
	}
	key := "collection:" + string(c)
	gen := e.nextGeneration(key)

	threads, err := e.provider.ListThreads(ctx, c)
	if err != nil {
		logFailure(e.log, err).Str("collection", string(c)).Msg("collection refresh failed, keeping cache")
		return fmt.Errorf("failed to refresh %s threads: %w", c, err)
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if !e.isCurrent(key, gen) {
		e.log.Debug().Str("collection", string(c)).Uint64("generation", gen).Msg("discarding stale collection refresh")
		return ErrStaleRefresh
	}

	// The open thread is on screen, so whatever the server counts is read.
	if sel := e.store.Selection(); sel.Collection == c && !sel.IsEmpty() {
		listed := false
		for i := range threads {
			if threads[i].ID == sel.ThreadID {
				threads[i].UnreadCount = 0
				listed = true
			}
		}
		// A conversation started here stays until the server lists it.
		if draft, ok := e.store.Thread(sel.ThreadID); ok && draft.Draft && !listed {
			threads = append([]domain.Thread{draft}, threads...)
		}
	}

	if err := e.store.ReplaceCollection(ctx, c, threads); err != nil {
		return fmt.Errorf("failed to replace %s threads: %w", c, err)
	}
	e.log.Debug().Str("collection", string(c)).Int("threads", len(threads)).Msg("collection refreshed")
	return nil
}

// RefreshMessages replaces a thread's message list with the server history.
// Local messages the server has not acknowledged are kept after the fetched
// history unless a server message matches them; see mergeHistory.
func (e *SyncEngine) RefreshMessages(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("failed to refresh messages: empty thread id")
	}
	key := "messages:" + threadID
	gen := e.nextGeneration(key)

	mark := e.store.ConfirmationMark()

	me, err := e.identity.Resolve(ctx)
	if err != nil {
		logFailure(e.log, err).Str("thread", threadID).Msg("message refresh failed, keeping cache")
		return err
	}

	fetched, err := e.provider.ListMessages(ctx, provider.HistoryOptions{ThreadID: threadID, Limit: e.opts.HistoryLimit})
	if err != nil {
		logFailure(e.log, err).Str("thread", threadID).Msg("message refresh failed, keeping cache")
		return fmt.Errorf("failed to refresh messages for %s: %w", threadID, err)
	}
	for i := range fetched {
		fetched[i].ThreadID = threadID
		fetched[i].Direction = me.Classify(fetched[i].SenderID)
		fetched[i].DeliveryState = domain.DeliveryConfirmed
		fetched[i].Error = ""
	}
	// The server returns newest first.
	slices.SortStableFunc(fetched, func(a, b domain.Message) int {
		return cmp.Compare(a.SentAt, b.SentAt)
	})

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if !e.isCurrent(key, gen) {
		e.log.Debug().Str("thread", threadID).Uint64("generation", gen).Msg("discarding stale message refresh")
		return ErrStaleRefresh
	}

	window := e.opts.MatchWindow.Milliseconds()
	e.store.UpdateMessages(ctx, threadID, mark, func(local []domain.Message, confirmed map[string]bool) []domain.Message {
		return mergeHistory(local, fetched, confirmed, window)
	})

	e.genMu.Lock()
	e.fetched[threadID] = e.now()
	e.genMu.Unlock()

	e.log.Debug().Str("thread", threadID).Int("messages", len(fetched)).Msg("messages refreshed")
	return nil
}

// IsFresh reports whether threadID's history was fetched within maxAge.
func (e *SyncEngine) IsFresh(threadID string, maxAge time.Duration) bool {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	at, ok := e.fetched[threadID]
	return ok && maxAge > 0 && e.now().Sub(at) < maxAge
}

func (e *SyncEngine) nextGeneration(key string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	e.gens[key]++
	return e.gens[key]
}

func (e *SyncEngine) isCurrent(key string, gen uint64) bool {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.gens[key] == gen
}

// mergeHistory builds a thread's new message list from the server history
// (sorted by SentAt) and the current local list. confirmedSince holds the ids
// of sends confirmed after the request went out. windowMs is the backstop
// match window in milliseconds.
//
// A local message survives when the server copy is not in fetched and it is
// either unsent (pending or failed) with no fetched message sent by this user
// with the same text within windowMs of it, or in confirmedSince.
//
// Survivors follow the fetched history in their local order with SentAt
// raised where needed to keep the list ordered.
func mergeHistory(local, fetched []domain.Message, confirmedSince map[string]bool, windowMs int64) []domain.Message {
	out := make([]domain.Message, 0, len(fetched)+len(local))
	out = append(out, fetched...)

	fetchedIDs := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		fetchedIDs[m.ID] = true
	}
	localIDs := make(map[string]bool, len(local))
	for _, m := range local {
		localIDs[m.ID] = true
	}
	claimed := make([]bool, len(fetched))

	for _, m := range local {
		switch {
		case fetchedIDs[m.ID]:
			continue
		case m.IsUnsent():
			if i := backstopMatch(m, fetched, claimed, localIDs, windowMs); i >= 0 {
				claimed[i] = true
				continue
			}
		case confirmedSince[m.ID]:
		default:
			continue
		}

		if n := len(out); n > 0 && m.SentAt < out[n-1].SentAt {
			m.SentAt = out[n-1].SentAt
		}
		out = append(out, m)
	}
	return out
}

// backstopMatch finds the server copy of an unsent local message whose
// confirmation never reached the dispatcher. Server messages already known
// locally under their own id cannot be claimed.
func backstopMatch(m domain.Message, fetched []domain.Message, claimed []bool, localIDs map[string]bool, windowMs int64) int {
	text := strings.TrimSpace(m.Text)
	for i, f := range fetched {
		if claimed[i] || localIDs[f.ID] || f.Direction != domain.DirectionSent {
			continue
		}
		if strings.TrimSpace(f.Text) != text {
			continue
		}
		if abs64(f.SentAt-m.SentAt) <= windowMs {
			return i
		}
	}
	return -1
}

// IsStale reports whether err only means a newer refresh superseded this one.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleRefresh)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
