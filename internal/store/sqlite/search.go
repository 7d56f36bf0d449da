package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/lu-zhengda/termchat/internal/domain"
)

// SearchHit is one cached message matching a search, with its thread.
type SearchHit struct {
	Message    domain.Message
	ThreadName string
	Collection domain.Collection
}

// SearchMessages runs a full-text search over the cached messages of one
// account. Every whitespace-separated term must match.
func (s *DB) SearchMessages(ctx context.Context, accountID, query string, limit int) ([]SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.thread_id, m.id, m.sender_id, m.text, m.sent_at, m.direction, m.delivery_state,
			COALESCE(d.name, g.name, ''),
			CASE WHEN g.id IS NOT NULL THEN 'group' ELSE 'direct' END
		FROM thread_messages m
		JOIN messages_fts fts ON fts.rowid = m.rowid
		LEFT JOIN direct_threads d ON d.account_id = m.account_id AND d.id = m.thread_id
		LEFT JOIN group_threads g ON g.account_id = m.account_id AND g.id = m.thread_id
		WHERE messages_fts MATCH ? AND m.account_id = ?
		ORDER BY rank
		LIMIT ?`, match, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var direction, state, collection string
		var senderID *string
		if err := rows.Scan(
			&h.Message.ThreadID, &h.Message.ID, &senderID, &h.Message.Text, &h.Message.SentAt,
			&direction, &state, &h.ThreadName, &collection,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if senderID != nil {
			h.Message.SenderID = *senderID
		}
		h.Message.Direction = domain.Direction(direction)
		h.Message.DeliveryState = domain.DeliveryState(state)
		h.Collection = domain.Collection(collection)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return hits, nil
}

// ftsQuery quotes each term so user input cannot inject FTS5 operators.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
