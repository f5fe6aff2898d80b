package memory

import (
	"database/sql"
	"fmt"
	"log"
)

// baseSchema creates every table, index, FTS5 virtual table and sync
// trigger used by the store, idempotently. Ported in shape from
// original_source/src/memory/mod.rs's run_migrations.
const baseSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform TEXT NOT NULL,
	user_id TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_conversations_platform_user
	ON conversations(platform, user_id);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT,
	tool_calls TEXT,
	tool_call_id TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, id);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content, content='messages', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS messages_fts_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_fts_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_fts_au AFTER UPDATE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.id, old.content);
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

-- Vector "index" emulation: a plain shadow table, synced explicitly (not by
-- trigger) by the embedding background task, keyed by messages.rowid.
CREATE TABLE IF NOT EXISTS messages_vec (
	rowid INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge (
	id TEXT NOT NULL,
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	source TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(category, key)
);

CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
	key, value, content='knowledge', content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS knowledge_fts_ai AFTER INSERT ON knowledge BEGIN
	INSERT INTO knowledge_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
END;
CREATE TRIGGER IF NOT EXISTS knowledge_fts_ad AFTER DELETE ON knowledge BEGIN
	INSERT INTO knowledge_fts(knowledge_fts, rowid, key, value) VALUES('delete', old.rowid, old.key, old.value);
END;
CREATE TRIGGER IF NOT EXISTS knowledge_fts_au AFTER UPDATE ON knowledge BEGIN
	INSERT INTO knowledge_fts(knowledge_fts, rowid, key, value) VALUES('delete', old.rowid, old.key, old.value);
	INSERT INTO knowledge_fts(rowid, key, value) VALUES (new.rowid, new.key, new.value);
END;

CREATE TABLE IF NOT EXISTS knowledge_embeddings (
	rowid INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id TEXT PRIMARY KEY,
	scheduler_job_id TEXT,
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	trigger_value TEXT NOT NULL,
	prompt TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	next_run_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_status ON scheduled_tasks(status);
`

// runMigrations applies baseSchema, then checks the configured embedding
// dimension against schema_meta. On mismatch (or absence, for a legacy
// database), both vector shadow tables are dropped and recreated and the
// new dimension is recorded — existing embeddings are not meaningful across
// different embedder models.
func runMigrations(db *sql.DB, dimensions int) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("failed to apply base schema: %w", err)
	}

	var storedDim string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'embedding_dimension'`).Scan(&storedDim)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema_meta: %w", err)
	}
	current := fmt.Sprintf("%d", dimensions)

	if err == sql.ErrNoRows || storedDim != current {
		log.Printf("memory: embedding dimension changed (stored=%q, configured=%d) — recreating vector tables", storedDim, dimensions)
		if _, err := db.Exec(`DROP TABLE IF EXISTS messages_vec; DROP TABLE IF EXISTS knowledge_embeddings;`); err != nil {
			return fmt.Errorf("failed to drop vector tables: %w", err)
		}
		if _, err := db.Exec(`
			CREATE TABLE messages_vec (rowid INTEGER PRIMARY KEY, embedding BLOB NOT NULL);
			CREATE TABLE knowledge_embeddings (rowid INTEGER PRIMARY KEY, embedding BLOB NOT NULL);
		`); err != nil {
			return fmt.Errorf("failed to recreate vector tables: %w", err)
		}
		if _, err := db.Exec(`
			INSERT INTO schema_meta(key, value) VALUES('embedding_dimension', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, current); err != nil {
			return fmt.Errorf("failed to record embedding dimension: %w", err)
		}
	}

	return nil
}
