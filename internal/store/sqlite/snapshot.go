package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/store"
)

// SnapshotStore implements store.Persister for one account.
type SnapshotStore struct {
	db        *DB
	accountID string
}

var _ store.Persister = (*SnapshotStore)(nil)

// Snapshots returns the persister for accountID.
func (s *DB) Snapshots(accountID string) *SnapshotStore {
	return &SnapshotStore{db: s, accountID: accountID}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveSnapshot replaces all three partitions and the selection in a single
// transaction.
func (p *SnapshotStore) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	tx, err := p.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearSnapshot(ctx, tx, p.accountID); err != nil {
		return err
	}

	for _, c := range []domain.Collection{domain.CollectionDirect, domain.CollectionGroup} {
		for i, t := range snap.Threads(c) {
			if err := insertThread(ctx, tx, p.accountID, c, i, t); err != nil {
				return err
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO thread_messages (account_id, thread_id, position, id, sender_id, text,
			sent_at, direction, delivery_state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	threadIDs := make([]string, 0, len(snap.Messages))
	for id := range snap.Messages {
		threadIDs = append(threadIDs, id)
	}
	slices.Sort(threadIDs)
	for _, threadID := range threadIDs {
		for i, m := range snap.Messages[threadID] {
			if _, err := stmt.ExecContext(ctx,
				p.accountID, threadID, i, m.ID, m.SenderID, m.Text,
				m.SentAt, string(m.Direction), string(m.DeliveryState), m.Error,
			); err != nil {
				return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
			}
		}
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (account_id, active_thread_id, active_collection, saved_at)
		VALUES (?, ?, ?, ?)`,
		p.accountID, snap.Selection.ThreadID, string(snap.Selection.Collection), savedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns nil, nil if this account has never saved a snapshot.
func (p *SnapshotStore) LoadSnapshot(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{Messages: make(map[string][]domain.Message)}

	var activeThread, activeCollection sql.NullString
	var savedAt int64
	err := p.db.db.QueryRowContext(ctx,
		`SELECT active_thread_id, active_collection, saved_at FROM snapshot_meta WHERE account_id = ?`,
		p.accountID,
	).Scan(&activeThread, &activeCollection, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	snap.Selection = domain.Selection{
		ThreadID:   activeThread.String,
		Collection: domain.Collection(activeCollection.String),
	}
	snap.SavedAt = time.UnixMilli(savedAt)

	if snap.Direct, err = p.loadThreads(ctx, domain.CollectionDirect); err != nil {
		return nil, err
	}
	if snap.Group, err = p.loadThreads(ctx, domain.CollectionGroup); err != nil {
		return nil, err
	}

	rows, err := p.db.db.QueryContext(ctx, `
		SELECT thread_id, id, sender_id, text, sent_at, direction, delivery_state, error
		FROM thread_messages WHERE account_id = ?
		ORDER BY thread_id, position`, p.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		var senderID, errText sql.NullString
		var direction, state string
		if err := rows.Scan(&m.ThreadID, &m.ID, &senderID, &m.Text, &m.SentAt, &direction, &state, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderID = senderID.String
		m.Direction = domain.Direction(direction)
		m.DeliveryState = domain.DeliveryState(state)
		m.Error = errText.String
		snap.Messages[m.ThreadID] = append(snap.Messages[m.ThreadID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return snap, nil
}

// ClearSnapshot deletes every partition of this account's snapshot.
func (p *SnapshotStore) ClearSnapshot(ctx context.Context) error {
	tx, err := p.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearSnapshot(ctx, tx, p.accountID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot clear: %w", err)
	}
	return nil
}

func insertThread(ctx context.Context, tx execer, accountID string, c domain.Collection, position int, t domain.Thread) error {
	var err error
	if c == domain.CollectionGroup {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_threads (account_id, id, position, name, last_message_preview,
				last_activity_at, unread_count, member_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			accountID, t.ID, position, t.Name, t.LastMessagePreview,
			toMillis(t.LastActivityAt), t.UnreadCount, t.MemberCount,
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO direct_threads (account_id, id, position, name, last_message_preview,
				last_activity_at, unread_count, is_online, draft)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			accountID, t.ID, position, t.Name, t.LastMessagePreview,
			toMillis(t.LastActivityAt), t.UnreadCount, t.IsOnline, t.Draft,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s thread %s: %w", c, t.ID, err)
	}
	return nil
}

func (p *SnapshotStore) loadThreads(ctx context.Context, c domain.Collection) ([]domain.Thread, error) {
	query := `SELECT id, name, last_message_preview, last_activity_at, unread_count, is_online, 0, draft
		FROM direct_threads WHERE account_id = ? ORDER BY position`
	if c == domain.CollectionGroup {
		query = `SELECT id, name, last_message_preview, last_activity_at, unread_count, FALSE, member_count, FALSE
			FROM group_threads WHERE account_id = ? ORDER BY position`
	}

	rows, err := p.db.db.QueryContext(ctx, query, p.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s threads: %w", c, err)
	}
	defer rows.Close()

	threads := []domain.Thread{}
	for rows.Next() {
		t := domain.Thread{Collection: c}
		var preview sql.NullString
		var activity sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &preview, &activity, &t.UnreadCount, &t.IsOnline, &t.MemberCount, &t.Draft); err != nil {
			return nil, fmt.Errorf("failed to scan %s thread: %w", c, err)
		}
		t.LastMessagePreview = preview.String
		t.LastActivityAt = fromMillis(activity.Int64)
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s threads: %w", c, err)
	}
	return threads, nil
}

func clearSnapshot(ctx context.Context, tx execer, accountID string) error {
	for _, table := range []string{"direct_threads", "group_threads", "thread_messages", "snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
