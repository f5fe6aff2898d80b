// Package memory implements the C4 component: durable conversation/message
// storage, a key/value knowledge store, an FTS5 lexical index, a
// cosine-distance vector index emulation, and Reciprocal-Rank-Fusion hybrid
// search, all on one embedded SQLite database with a single serialized
// connection.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

var inMemoryCounter atomic.Int64

// Store owns the single DB connection. Every operation acquires mu for the
// duration of that operation; embeddings are computed before the lock is
// taken.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	embedder Embedder // may be nil
}

// Open opens (creating if absent) the SQLite database at path with
// write-ahead logging enabled, applies migrations for the given embedding
// dimension, and returns a ready Store. A nil embedder degrades every
// hybrid search to FTS-only.
func Open(path string, dimensions int, embedder Embedder) (*Store, error) {
	if err := registerVectorFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register vector distance function: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single serialized connection

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := runMigrations(db, dimensions); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, embedder: embedder}, nil
}

// OpenInMemory opens an in-process, throwaway database, for tests.
func OpenInMemory(dimensions int, embedder Embedder) (*Store, error) {
	if err := registerVectorFunctions(); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", inMemoryCounter.Add(1))
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := runMigrations(db, dimensions); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, embedder: embedder}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// embedInBackground embeds text and inserts it into table keyed by rowid, in
// a detached goroutine started after the caller has released the DB mutex
// for the message/knowledge insert. Callers must tolerate the row not being
// vector-searchable until this completes.
func (s *Store) embedInBackground(table string, rowid int64, text string) {
	if s.embedder == nil || text == "" {
		return
	}
	go func() {
		vec := s.embedder.TryEmbed(context.Background(), text)
		if vec == nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		query := fmt.Sprintf(`INSERT OR REPLACE INTO %s(rowid, embedding) VALUES (?, ?)`, table)
		if _, err := s.db.Exec(query, rowid, floatsToBytes(vec)); err != nil {
			// Logged, not propagated: nothing downstream is awaiting this
			// detached task's result ( "callers must not
			// assume the embedding is visible immediately upon return").
			log.Printf("memory: failed to store background embedding for %s rowid=%d: %v", table, rowid, err)
		}
	}()
}
