// Package store holds the canonical client-side state: both thread
// collections, the cached message list of every thread, the selection and
// the session identity.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrThreadNotFound     = errors.New("thread not found")
	ErrInvalidCollection  = errors.New("invalid collection")
	ErrCollectionConflict = errors.New("thread id already belongs to the other collection")
)

// InterruptedError is recorded on messages that were still pending when a
// previous process persisted them.
const InterruptedError = "not confirmed before the client exited"

// MessagePatch describes the confirmation or failure of one message.
// Zero fields leave the current value untouched.
type MessagePatch struct {
	SentAt        int64
	DeliveryState domain.DeliveryState
	Error         string
}

// Store is safe for concurrent use. Every mutation is applied under one lock
// and, when a Persister is configured, followed by a full snapshot write.
// Snapshot writes are serialized and never let an older snapshot overwrite a
// newer one. Write failures are logged and the Store keeps working in memory.
type Store struct {
	mu        sync.Mutex
	threads   map[domain.Collection][]domain.Thread
	messages  map[string][]domain.Message
	selection domain.Selection
	identity  domain.Identity
	seq       uint64

	// confirmed records, per thread, the position in the confirmation log at
	// which each message was confirmed. See ConfirmationMark.
	confirmed  map[string]map[string]uint64
	confirmSeq uint64

	persister Persister
	persistMu sync.Mutex
	savedSeq  uint64

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	log zerolog.Logger
	now func() time.Time
}

// New creates an empty Store. p may be nil for a memory-only store.
func New(p Persister, log zerolog.Logger) *Store {
	return &Store{
		threads: map[domain.Collection][]domain.Thread{
			domain.CollectionDirect: {},
			domain.CollectionGroup:  {},
		},
		messages:  make(map[string][]domain.Message),
		confirmed: make(map[string]map[string]uint64),
		selection: domain.Selection{Collection: domain.CollectionDirect},
		persister: p,
		subs:      make(map[int]chan Event),
		log:       log,
		now:       time.Now,
	}
}

// UpsertThread inserts t into collection c or replaces the thread with the
// same id. Message lists are not touched.
func (s *Store) UpsertThread(ctx context.Context, c domain.Collection, t domain.Thread) error {
	if !c.Valid() {
		return fmt.Errorf("failed to upsert thread %s: %w", t.ID, ErrInvalidCollection)
	}
	if t.ID == "" {
		return fmt.Errorf("failed to upsert thread: empty id")
	}
	t.Collection = c
	t.UnreadCount = max(t.UnreadCount, 0)

	s.mu.Lock()
	if indexOfThread(s.threads[c.Other()], t.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("failed to upsert thread %s: %w", t.ID, ErrCollectionConflict)
	}
	list := s.threads[c]
	if i := indexOfThread(list, t.ID); i >= 0 {
		list[i] = t
	} else {
		s.threads[c] = append(list, t)
	}
	s.release(ctx, Event{Kind: ThreadsChanged, Collection: c, ThreadID: t.ID})
	return nil
}

// ReplaceCollection swaps collection c for threads wholesale. Records without
// an id, repeated ids and ids owned by the other collection are dropped. If
// the selected thread is gone the selection falls back to the bare collection.
func (s *Store) ReplaceCollection(ctx context.Context, c domain.Collection, threads []domain.Thread) error {
	if !c.Valid() {
		return fmt.Errorf("failed to replace collection: %w", ErrInvalidCollection)
	}

	s.mu.Lock()
	other := s.threads[c.Other()]
	next := make([]domain.Thread, 0, len(threads))
	for _, t := range threads {
		switch {
		case t.ID == "", indexOfThread(next, t.ID) >= 0:
			continue
		case indexOfThread(other, t.ID) >= 0:
			s.log.Warn().Str("thread", t.ID).Str("collection", string(c)).
				Msg("dropping thread whose id belongs to the other collection")
			continue
		}
		t.Collection = c
		t.UnreadCount = max(t.UnreadCount, 0)
		next = append(next, t)
	}
	s.threads[c] = next

	events := []Event{{Kind: ThreadsChanged, Collection: c}}
	if sel := s.selection; sel.Collection == c && !sel.IsEmpty() && indexOfThread(next, sel.ThreadID) < 0 {
		s.selection.ThreadID = ""
		events = append(events, Event{Kind: SelectionChanged, Collection: c})
	}
	s.release(ctx, events...)
	return nil
}

// TouchThread updates the preview and activity time of a thread after a new
// message. It reports whether the thread exists.
func (s *Store) TouchThread(ctx context.Context, threadID, text string, at time.Time) bool {
	s.mu.Lock()
	t := s.findThread(threadID)
	if t == nil {
		s.mu.Unlock()
		return false
	}
	t.Touch(text, at)
	s.release(ctx, Event{Kind: ThreadsChanged, Collection: t.Collection, ThreadID: threadID})
	return true
}

// AppendMessage pushes m onto its thread's list, creating the list if needed.
// A message whose id is already present is ignored. SentAt is raised to the
// last entry's so the list stays ordered.
func (s *Store) AppendMessage(ctx context.Context, m domain.Message) error {
	if m.ThreadID == "" || m.ID == "" {
		return fmt.Errorf("failed to append message: thread id and message id are required")
	}

	s.mu.Lock()
	list := s.messages[m.ThreadID]
	if indexOfMessage(list, m.ID) >= 0 {
		s.mu.Unlock()
		s.log.Debug().Str("thread", m.ThreadID).Str("message", m.ID).Msg("message already present")
		return nil
	}
	if n := len(list); n > 0 && m.SentAt < list[n-1].SentAt {
		m.SentAt = list[n-1].SentAt
	}
	s.messages[m.ThreadID] = append(list, m)
	s.release(ctx, Event{Kind: MessagesChanged, ThreadID: m.ThreadID})
	return nil
}

// ReplaceMessageID remaps oldID to newID and applies patch. It returns false
// and leaves the Store untouched when oldID is no longer in the list, which
// happens when a refresh already replaced it. If newID is already present
// the entry for oldID is dropped instead so the message is never listed twice.
func (s *Store) ReplaceMessageID(ctx context.Context, threadID, oldID, newID string, patch MessagePatch) bool {
	if newID == "" {
		newID = oldID
	}

	s.mu.Lock()
	list := s.messages[threadID]
	i := indexOfMessage(list, oldID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug().Str("thread", threadID).Str("message", oldID).Msg("message to reconcile is gone")
		return false
	}

	if newID != oldID && indexOfMessage(list, newID) >= 0 {
		s.messages[threadID] = slices.Delete(list, i, i+1)
		s.release(ctx, Event{Kind: MessagesChanged, ThreadID: threadID})
		return true
	}

	before := list[i]
	m := &list[i]
	m.ID = newID
	if patch.DeliveryState != "" {
		m.DeliveryState = patch.DeliveryState
		m.Error = patch.Error
	}
	if patch.DeliveryState == domain.DeliveryConfirmed {
		s.noteConfirmedLocked(threadID, newID)
	}
	if patch.SentAt > 0 {
		m.SentAt = clampSentAt(list, i, patch.SentAt)
	}
	if *m == before {
		s.mu.Unlock()
		return true
	}
	s.release(ctx, Event{Kind: MessagesChanged, ThreadID: threadID})
	return true
}

// ConfirmationMark returns the current position in the confirmation log.
// A refresh takes a mark before its request goes out; messages confirmed
// after the mark may be missing from the response.
func (s *Store) ConfirmationMark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmSeq
}

// UpdateMessages replaces a thread's list with fn's result in one atomic
// step. fn receives a copy of the list and the ids of the messages confirmed
// after mark, and must not call back into the Store. Confirmation records of
// the thread at or before mark are dropped.
func (s *Store) UpdateMessages(ctx context.Context, threadID string, mark uint64, fn func(local []domain.Message, confirmedSince map[string]bool) []domain.Message) {
	s.mu.Lock()
	recent := make(map[string]bool)
	for id, at := range s.confirmed[threadID] {
		if at > mark {
			recent[id] = true
		} else {
			delete(s.confirmed[threadID], id)
		}
	}
	if len(s.confirmed[threadID]) == 0 {
		delete(s.confirmed, threadID)
	}

	next := fn(slices.Clone(s.messages[threadID]), recent)
	if next == nil {
		next = []domain.Message{}
	}
	s.messages[threadID] = next
	s.release(ctx, Event{Kind: MessagesChanged, ThreadID: threadID})
}

// MarkRead zeroes a thread's unread count. It reports whether anything changed.
func (s *Store) MarkRead(ctx context.Context, threadID string) (bool, error) {
	s.mu.Lock()
	t := s.findThread(threadID)
	if t == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("failed to mark %s read: %w", threadID, ErrThreadNotFound)
	}
	if t.UnreadCount == 0 {
		s.mu.Unlock()
		return false, nil
	}
	t.UnreadCount = 0
	s.release(ctx, Event{Kind: ThreadsChanged, Collection: t.Collection, ThreadID: threadID})
	return true, nil
}

// SetActive selects threadID within collection c. An empty threadID selects
// the collection alone.
func (s *Store) SetActive(ctx context.Context, threadID string, c domain.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("failed to select thread: %w", ErrInvalidCollection)
	}

	s.mu.Lock()
	if threadID != "" && indexOfThread(s.threads[c], threadID) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("failed to select %s in %s: %w", threadID, c, ErrThreadNotFound)
	}
	next := domain.Selection{ThreadID: threadID, Collection: c}
	if next == s.selection {
		s.mu.Unlock()
		return nil
	}
	s.selection = next
	s.release(ctx, Event{Kind: SelectionChanged, Collection: c, ThreadID: threadID})
	return nil
}

// SetCollection switches the active collection and clears the open thread,
// which always belongs to the previous collection.
func (s *Store) SetCollection(ctx context.Context, c domain.Collection) error {
	return s.SetActive(ctx, "", c)
}

// Thread looks up a thread by id in either collection.
func (s *Store) Thread(id string) (domain.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findThread(id); t != nil {
		return *t, true
	}
	return domain.Thread{}, false
}

// Threads returns a copy of collection c in server order.
func (s *Store) Threads(c domain.Collection) []domain.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.threads[c])
	if out == nil {
		out = []domain.Thread{}
	}
	return out
}

// Messages returns a copy of a thread's message list.
func (s *Store) Messages(threadID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.messages[threadID])
	if out == nil {
		out = []domain.Message{}
	}
	return out
}

// HasMessages reports whether a message list has been cached for threadID.
func (s *Store) HasMessages(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.messages[threadID]
	return ok
}

// Message returns one message of a thread by id.
func (s *Store) Message(threadID, id string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[threadID]
	if i := indexOfMessage(list, id); i >= 0 {
		return list[i], true
	}
	return domain.Message{}, false
}

// Selection returns the active collection and the open thread, if any.
func (s *Store) Selection() domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Identity returns the session identity. It is zero until resolved.
func (s *Store) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity records the session identity. It is kept in memory only.
func (s *Store) SetIdentity(id domain.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the persisted part of the Store.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Restore loads the last saved snapshot into memory. Messages that were
// still pending are marked failed because no dispatcher in this process can
// confirm them. A missing snapshot leaves the Store empty.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	direct := sanitizeThreads(snap.Direct, domain.CollectionDirect, nil)
	group := sanitizeThreads(snap.Group, domain.CollectionGroup, direct)

	messages := cloneMessages(snap.Messages)
	interrupted := 0
	for _, list := range messages {
		for i := range list {
			if list[i].DeliveryState == domain.DeliveryPending {
				list[i].DeliveryState = domain.DeliveryFailed
				list[i].Error = InterruptedError
				interrupted++
			}
		}
	}

	sel := snap.Selection
	if !sel.Collection.Valid() {
		sel = domain.Selection{Collection: domain.CollectionDirect}
	}

	s.mu.Lock()
	s.threads[domain.CollectionDirect] = direct
	s.threads[domain.CollectionGroup] = group
	s.messages = messages
	clear(s.confirmed)
	if sel.ThreadID != "" && indexOfThread(s.threads[sel.Collection], sel.ThreadID) < 0 {
		sel.ThreadID = ""
	}
	s.selection = sel
	s.mu.Unlock()

	s.log.Info().
		Int("direct", len(direct)).
		Int("group", len(group)).
		Int("threads_with_messages", len(messages)).
		Int("interrupted", interrupted).
		Msg("restored snapshot")

	s.emit(
		Event{Kind: ThreadsChanged, Collection: domain.CollectionDirect},
		Event{Kind: ThreadsChanged, Collection: domain.CollectionGroup},
		Event{Kind: MessagesChanged},
		Event{Kind: SelectionChanged, Collection: sel.Collection, ThreadID: sel.ThreadID},
	)
	return nil
}

// ClearEphemeral drops both collections, all message lists and the open
// thread, in memory and on disk. The session identity and active collection
// survive.
func (s *Store) ClearEphemeral(ctx context.Context) {
	s.mu.Lock()
	s.threads[domain.CollectionDirect] = []domain.Thread{}
	s.threads[domain.CollectionGroup] = []domain.Thread{}
	s.messages = make(map[string][]domain.Message)
	clear(s.confirmed)
	s.selection.ThreadID = ""
	s.seq++
	seq := s.seq
	col := s.selection.Collection
	s.mu.Unlock()

	s.persistMu.Lock()
	if s.persister != nil {
		if err := s.persister.ClearSnapshot(context.WithoutCancel(ctx)); err != nil {
			s.log.Error().Err(err).Msg("failed to clear persisted snapshot")
		}
	}
	s.savedSeq = max(s.savedSeq, seq)
	s.persistMu.Unlock()

	s.emit(
		Event{Kind: ThreadsChanged, Collection: domain.CollectionDirect},
		Event{Kind: ThreadsChanged, Collection: domain.CollectionGroup},
		Event{Kind: MessagesChanged},
		Event{Kind: SelectionChanged, Collection: col},
	)
}

// release must be called with s.mu held. It captures a snapshot, unlocks,
// writes the snapshot and notifies subscribers.
func (s *Store) release(ctx context.Context, events ...Event) {
	s.seq++
	seq := s.seq
	var snap *Snapshot
	if s.persister != nil {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if snap != nil {
		s.persist(context.WithoutCancel(ctx), seq, snap)
	}
	s.emit(events...)
}

func (s *Store) persist(ctx context.Context, seq uint64, snap *Snapshot) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.savedSeq {
		return
	}
	snap.SavedAt = s.now()
	if err := s.persister.SaveSnapshot(ctx, snap); err != nil {
		s.log.Error().Err(err).Uint64("seq", seq).Msg("snapshot write failed, continuing in memory")
		return
	}
	s.savedSeq = seq
}

func (s *Store) snapshotLocked() *Snapshot {
	return &Snapshot{
		Direct:    slices.Clone(s.threads[domain.CollectionDirect]),
		Group:     slices.Clone(s.threads[domain.CollectionGroup]),
		Messages:  cloneMessages(s.messages),
		Selection: s.selection,
	}
}

func (s *Store) noteConfirmedLocked(threadID, id string) {
	s.confirmSeq++
	if s.confirmed[threadID] == nil {
		s.confirmed[threadID] = make(map[string]uint64)
	}
	s.confirmed[threadID][id] = s.confirmSeq
}

func (s *Store) findThread(id string) *domain.Thread {
	for _, c := range []domain.Collection{domain.CollectionDirect, domain.CollectionGroup} {
		list := s.threads[c]
		if i := indexOfThread(list, id); i >= 0 {
			return &list[i]
		}
	}
	return nil
}

func sanitizeThreads(in []domain.Thread, c domain.Collection, taken []domain.Thread) []domain.Thread {
	out := make([]domain.Thread, 0, len(in))
	for _, t := range in {
		if t.ID == "" || indexOfThread(out, t.ID) >= 0 || indexOfThread(taken, t.ID) >= 0 {
			continue
		}
		t.Collection = c
		out = append(out, t)
	}
	return out
}

func indexOfThread(list []domain.Thread, id string) int {
	return slices.IndexFunc(list, func(t domain.Thread) bool { return t.ID == id })
}

func indexOfMessage(list []domain.Message, id string) int {
	return slices.IndexFunc(list, func(m domain.Message) bool { return m.ID == id })
}

// clampSentAt keeps list[i] between its neighbours.
func clampSentAt(list []domain.Message, i int, at int64) int64 {
	if i > 0 && at < list[i-1].SentAt {
		at = list[i-1].SentAt
	}
	if i+1 < len(list) && at > list[i+1].SentAt {
		at = list[i+1].SentAt
	}
	return at
}
