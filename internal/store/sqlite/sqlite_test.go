package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"slices"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	rows, err := db.db.QueryContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query sqlite_master error: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan error: %v", err)
		}
		tables = append(tables, name)
	}

	expected := []string{"accounts", "direct_threads", "group_threads", "messages_fts", "snapshot_meta", "thread_messages"}
	for _, exp := range expected {
		if !slices.Contains(tables, exp) {
			t.Errorf("expected table %q not found in %v", exp, tables)
		}
	}
}

func TestNew_FileIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termchat.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	db.Close()

	db, err = New(path)
	if err != nil {
		t.Fatalf("New() on existing file error: %v", err)
	}
	db.Close()
}

func TestNew_DiscardsOlderSnapshotLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termchat.db")

	// A database from before thread ids were collection-qualified.
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE accounts (id TEXT PRIMARY KEY, username TEXT NOT NULL, user_id TEXT, base_url TEXT NOT NULL, created_at DATETIME DEFAULT CURRENT_TIMESTAMP)`,
		`INSERT INTO accounts (id, username, user_id, base_url) VALUES ('alice@host', 'alice', '7', 'http://host')`,
		`CREATE TABLE direct_threads (account_id TEXT NOT NULL, id TEXT NOT NULL, position INTEGER NOT NULL, name TEXT NOT NULL, last_message_preview TEXT, last_activity_at INTEGER, unread_count INTEGER NOT NULL DEFAULT 0, is_online BOOLEAN DEFAULT FALSE, PRIMARY KEY (account_id, id))`,
		`INSERT INTO direct_threads (account_id, id, position, name) VALUES ('alice@host', '3', 0, 'Bob')`,
		`CREATE TABLE snapshot_meta (account_id TEXT PRIMARY KEY, active_thread_id TEXT, active_collection TEXT, saved_at INTEGER NOT NULL)`,
		`INSERT INTO snapshot_meta (account_id, active_thread_id, active_collection, saved_at) VALUES ('alice@host', '3', 'direct', 1)`,
	} {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("seed %q error: %v", stmt, err)
		}
	}
	raw.Close()

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	snap, err := db.Snapshots("alice@host").LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if snap != nil {
		t.Errorf("LoadSnapshot() = %+v, want nil after upgrade", snap)
	}

	acct, err := db.GetAccount(ctx, "alice@host")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if acct.Username != "alice" {
		t.Errorf("account username = %q, want alice", acct.Username)
	}

	var version int
	if err := db.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("user_version = %d, want %d", version, schemaVersion)
	}
}

func TestNew_CurrentVersionKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termchat.db")
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := db.db.Exec(`INSERT INTO snapshot_meta (account_id, saved_at) VALUES ('a', 1)`); err != nil {
		t.Fatalf("insert meta: %v", err)
	}
	db.Close()

	db, err = New(path)
	if err != nil {
		t.Fatalf("New() reopen error: %v", err)
	}
	defer db.Close()
	snap, err := db.Snapshots("a").LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if snap == nil {
		t.Fatal("LoadSnapshot() = nil, want the snapshot saved before reopening")
	}
}
