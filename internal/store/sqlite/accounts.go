package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lu-zhengda/termchat/internal/domain"
)

var ErrAccountNotFound = errors.New("account not found")

// SaveAccount inserts an account or refreshes the one with the same id, which
// happens when the user logs in again.
func (s *DB) SaveAccount(ctx context.Context, acct *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, user_id, base_url) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			user_id  = excluded.user_id,
			base_url = excluded.base_url`,
		acct.ID, acct.Username, acct.UserID, acct.BaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount returns ErrAccountNotFound if id was never saved.
func (s *DB) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, user_id, base_url, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Username, &userID, &a.BaseURL, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	a.UserID = userID.String
	return &a, nil
}

// ListAccounts returns every saved account, oldest first.
func (s *DB) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, user_id, base_url, created_at FROM accounts ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var userID sql.NullString
		if err := rows.Scan(&a.ID, &a.Username, &userID, &a.BaseURL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.UserID = userID.String
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes the account together with its cached snapshot.
func (s *DB) DeleteAccount(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearSnapshot(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account delete: %w", err)
	}
	return nil
}
