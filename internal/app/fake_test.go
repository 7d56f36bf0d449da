package app

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errOffline error = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

// fakeProvider is a scriptable ChatProvider. Hooks left nil fall back to the
// static fields. Every call is recorded.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	identity   domain.Identity
	profileErr error

	threads map[domain.Collection][]domain.Thread
	history map[string][]domain.Message

	listThreadsFn  func(ctx context.Context, c domain.Collection) ([]domain.Thread, error)
	listMessagesFn func(ctx context.Context, opts provider.HistoryOptions) ([]domain.Message, error)
	sendFn         func(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error)

	nextID int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		identity: domain.Identity{UserID: "7", Username: "me"},
		threads:  map[domain.Collection][]domain.Thread{},
		history:  map[string][]domain.Message{},
		nextID:   100,
	}
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeProvider) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeProvider) Login(context.Context, string, string) (*provider.LoginResult, error) {
	f.record("login")
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Profile(context.Context) (*domain.Identity, error) {
	f.record("profile")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	id := f.identity
	return &id, nil
}

func (f *fakeProvider) ListThreads(ctx context.Context, c domain.Collection) ([]domain.Thread, error) {
	f.record("threads:" + string(c))
	if f.listThreadsFn != nil {
		return f.listThreadsFn(ctx, c)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Thread{}, f.threads[c]...), nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, opts provider.HistoryOptions) ([]domain.Message, error) {
	f.record("messages:" + opts.ThreadID)
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, opts)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message{}, f.history[opts.ThreadID]...), nil
}

func (f *fakeProvider) SendMessage(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	f.record("send:" + req.ThreadID)
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &provider.SendResult{MessageID: strconv.Itoa(f.nextID), SentAt: time.Now().UnixMilli()}, nil
}

// memPersister keeps the last snapshot in memory.
type memPersister struct {
	mu   sync.Mutex
	snap *store.Snapshot
}

func (p *memPersister) SaveSnapshot(_ context.Context, snap *store.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
	return nil
}

func (p *memPersister) LoadSnapshot(context.Context) (*store.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, nil
}

func (p *memPersister) ClearSnapshot(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = nil
	return nil
}

type harness struct {
	provider *fakeProvider
	persist  *memPersister
	store    *store.Store
	session  *Session
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newLoggedHarness(t, opts, zerolog.Nop())
}

func newLoggedHarness(t *testing.T, opts Options, log zerolog.Logger) *harness {
	t.Helper()
	fp := newFakeProvider()
	mp := &memPersister{}
	s := store.New(mp, zerolog.Nop())
	sess := NewSession(fp, s, opts, log)
	t.Cleanup(func() { sess.Dispatcher.Close() })
	return &harness{provider: fp, persist: mp, store: s, session: sess}
}

// seedThread puts a thread into the store and resolves the identity so sends
// carry a sender id.
func (h *harness) seedThread(t *testing.T, c domain.Collection, id string, unread int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.UpsertThread(ctx, c, domain.Thread{ID: id, Name: "Thread " + id, UnreadCount: unread}))
	_, err := h.session.Identity.Resolve(ctx)
	require.NoError(t, err)
}

func serverMsg(thread, id, sender, text string, at int64) domain.Message {
	return domain.Message{ID: id, ThreadID: thread, SenderID: sender, Text: text, SentAt: at, DeliveryState: domain.DeliveryConfirmed}
}

func messageIDs(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msgAndArgs...)
}

func noticeFrom(t *testing.T, events <-chan store.Event) *store.Notice {
	t.Helper()
	for {
		select {
		case ev := <-events:
			if ev.Kind == store.NoticeRaised {
				return ev.Notice
			}
		default:
			return nil
		}
	}
}

func gate() chan struct{} { return make(chan struct{}) }
