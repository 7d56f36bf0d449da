package sqlite

// schemaVersion is kept in PRAGMA user_version. Opening a database written
// with an older version drops the snapshot tables before the schema is
// applied: they only hold a cache, and version 2 changed thread ids to
// collection-qualified keys. Accounts are kept.
const schemaVersion = 2

const dropSnapshotSchema = `
DROP TRIGGER IF EXISTS thread_messages_ai;
DROP TRIGGER IF EXISTS thread_messages_ad;
DROP TRIGGER IF EXISTS thread_messages_au;
DROP TABLE IF EXISTS messages_fts;
DROP TABLE IF EXISTS thread_messages;
DROP TABLE IF EXISTS direct_threads;
DROP TABLE IF EXISTS group_threads;
DROP TABLE IF EXISTS snapshot_meta;
`

// Snapshot partitions are keyed by account so several logins can share one
// database file. position preserves list order exactly as it was saved.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id          TEXT PRIMARY KEY,
    username    TEXT NOT NULL,
    user_id     TEXT,
    base_url    TEXT NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS direct_threads (
    account_id           TEXT NOT NULL,
    id                   TEXT NOT NULL,
    position             INTEGER NOT NULL,
    name                 TEXT NOT NULL,
    last_message_preview TEXT,
    last_activity_at     INTEGER,
    unread_count         INTEGER NOT NULL DEFAULT 0,
    is_online            BOOLEAN DEFAULT FALSE,
    draft                BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (account_id, id)
);

CREATE TABLE IF NOT EXISTS group_threads (
    account_id           TEXT NOT NULL,
    id                   TEXT NOT NULL,
    position             INTEGER NOT NULL,
    name                 TEXT NOT NULL,
    last_message_preview TEXT,
    last_activity_at     INTEGER,
    unread_count         INTEGER NOT NULL DEFAULT 0,
    member_count         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, id)
);

CREATE TABLE IF NOT EXISTS thread_messages (
    account_id     TEXT NOT NULL,
    thread_id      TEXT NOT NULL,
    position       INTEGER NOT NULL,
    id             TEXT NOT NULL,
    sender_id      TEXT,
    text           TEXT NOT NULL,
    sent_at        INTEGER NOT NULL,
    direction      TEXT NOT NULL,
    delivery_state TEXT NOT NULL,
    error          TEXT,
    PRIMARY KEY (account_id, thread_id, position)
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
    account_id        TEXT PRIMARY KEY,
    active_thread_id  TEXT,
    active_collection TEXT,
    saved_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thread_messages_sent ON thread_messages(account_id, sent_at DESC);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text,
    content='thread_messages', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS thread_messages_ai AFTER INSERT ON thread_messages BEGIN
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS thread_messages_ad AFTER DELETE ON thread_messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS thread_messages_au AFTER UPDATE ON thread_messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;
`
