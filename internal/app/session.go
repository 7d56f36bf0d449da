package app

import (
	"context"
	"errors"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configures a Session.
type Options struct {
	Sync     SyncOptions
	Dispatch DispatchOptions

	// HistoryFreshFor is passed to the Tracker.
	HistoryFreshFor time.Duration
	// PollInterval is the period of Run's refresh loop.
	PollInterval time.Duration
	// PurgeOnExit drops the cached collections and messages on Close.
	PurgeOnExit bool
}

// Session wires the components of one logged-in account around a shared
// Store.
type Session struct {
	Store      *store.Store
	Identity   *IdentityResolver
	Sync       *SyncEngine
	Dispatcher *Dispatcher
	Tracker    *Tracker

	opts Options
	log  zerolog.Logger
}

// NewSession builds the components of a session over p and s. Zero options
// poll every thirty seconds; the rest are defaulted by each component.
func NewSession(p provider.ChatProvider, s *store.Store, opts Options, log zerolog.Logger) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	id := NewIdentityResolver(p, s)
	engine := NewSyncEngine(p, s, id, opts.Sync, log.With().Str("component", "sync").Logger())
	return &Session{
		Store:      s,
		Identity:   id,
		Sync:       engine,
		Dispatcher: NewDispatcher(p, s, engine, opts.Dispatch, log.With().Str("component", "dispatch").Logger()),
		Tracker:    NewTracker(s, engine, opts.HistoryFreshFor, log.With().Str("component", "tracker").Logger()),
		opts:       opts,
		log:        log.With().Str("component", "session").Logger(),
	}
}

// Boot restores the persisted snapshot, resolves the session identity and
// refreshes both collections concurrently, then the open thread if any.
// Nothing the server does is fatal: a storage error leaves an empty cache,
// a failed refresh leaves the restored one and an unresolved identity is
// retried by the next refresh that needs it. Boot only fails when ctx ends.
func (s *Session) Boot(ctx context.Context) error {
	if err := s.Store.Restore(ctx); err != nil {
		s.log.Error().Err(err).Msg("could not restore cache, starting empty")
	}

	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.Identity.Resolve(ctx); err != nil {
			logFailure(s.log, err).Msg("boot: identity not resolved, will retry")
		}
		return nil
	})
	for _, c := range []domain.Collection{domain.CollectionDirect, domain.CollectionGroup} {
		g.Go(func() error {
			if err := s.Sync.RefreshCollection(ctx, c); err != nil && !IsStale(err) {
				s.log.Debug().Str("collection", string(c)).Msg("boot refresh failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	if sel := s.Store.Selection(); !sel.IsEmpty() {
		if err := s.Sync.RefreshMessages(ctx, sel.ThreadID); err != nil && !IsStale(err) {
			s.log.Debug().Str("thread", sel.ThreadID).Msg("boot refresh of open thread failed")
		}
	}
	return ctx.Err()
}

// Run refreshes the active collection and the open thread every poll
// interval until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll performs one round of Run's refresh loop. Failures are logged.
func (s *Session) Poll(ctx context.Context) {
	sel := s.Store.Selection()
	if err := s.Sync.RefreshCollection(ctx, sel.Collection); err != nil && !IsStale(err) && ctx.Err() == nil {
		s.log.Debug().Str("error", redactErr(err)).Msg("poll: collection refresh failed")
	}
	if sel.IsEmpty() {
		return
	}
	if err := s.Sync.RefreshMessages(ctx, sel.ThreadID); err != nil && !IsStale(err) && ctx.Err() == nil {
		s.log.Debug().Str("error", redactErr(err)).Msg("poll: message refresh failed")
	}
}

// Close stops background work and, if configured, purges the cache.
func (s *Session) Close(ctx context.Context) {
	s.Dispatcher.Close()
	if s.opts.PurgeOnExit {
		s.Store.ClearEphemeral(ctx)
		s.log.Debug().Msg("purged cache on exit")
	}
}
