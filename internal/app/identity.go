package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
)

// IdentityResolver fetches the acting user once per session and records it
// in the Store. Failed lookups are retried on the next call.
type IdentityResolver struct {
	provider provider.ChatProvider
	store    *store.Store

	mu       sync.Mutex
	resolved bool
}

// NewIdentityResolver returns a resolver that has not fetched anything yet.
func NewIdentityResolver(p provider.ChatProvider, s *store.Store) *IdentityResolver {
	return &IdentityResolver{provider: p, store: s}
}

// Resolve returns the session identity, fetching it on first use.
// Concurrent callers share a single request.
func (r *IdentityResolver) Resolve(ctx context.Context) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.store.Identity(), nil
	}
	id, err := r.provider.Profile(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to resolve identity: %w", err)
	}
	r.store.SetIdentity(*id)
	r.resolved = true
	return *id, nil
}
