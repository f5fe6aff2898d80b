package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Remember upserts a knowledge entry and (re)embeds it. The embedding is
// computed before the DB lock is taken; the old embedding row (if any) is
// deleted before the upsert so a changed value never leaves a stale vector
// behind, ported from original_source/src/memory/knowledge.rs.
func (s *Store) Remember(ctx context.Context, category, key, value, source string) error {
	embedText := fmt.Sprintf("%s: %s", key, value)
	vec := s.tryEmbed(ctx, embedText)

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldRowID sql.NullInt64
	_ = s.db.QueryRow(`SELECT rowid FROM knowledge WHERE category = ? AND key = ?`, category, key).Scan(&oldRowID)
	if oldRowID.Valid {
		if _, err := s.db.Exec(`DELETE FROM knowledge_embeddings WHERE rowid = ?`, oldRowID.Int64); err != nil {
			return fmt.Errorf("failed to delete stale knowledge embedding: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO knowledge(id, category, key, value, source) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category, key) DO UPDATE SET
			value = excluded.value,
			source = excluded.source,
			updated_at = datetime('now')
	`, id, category, key, value, nullIfEmpty(source))
	if err != nil {
		return fmt.Errorf("failed to store knowledge: %w", err)
	}

	var rowID int64
	if err := s.db.QueryRow(`SELECT rowid FROM knowledge WHERE category = ? AND key = ?`, category, key).Scan(&rowID); err != nil {
		return fmt.Errorf("failed to look up knowledge rowid: %w", err)
	}

	if vec != nil {
		if _, err := s.db.Exec(`INSERT INTO knowledge_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, floatsToBytes(vec)); err != nil {
			return fmt.Errorf("failed to store knowledge embedding: %w", err)
		}
	}
	return nil
}

// Recall does an exact (category, key) lookup.
func (s *Store) Recall(category, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM knowledge WHERE category = ? AND key = ?`, category, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to recall knowledge: %w", err)
	}
	return value, true, nil
}

// SearchKnowledge performs RRF hybrid search over the knowledge table,
// falling back to FTS-only if no embedder is configured or embedding fails.
func (s *Store) SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error) {
	if query == "" {
		return nil, nil
	}
	vec := s.tryEmbed(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if vec != nil {
		return s.hybridSearchKnowledge(vec, query, limit)
	}
	return s.ftsOnlySearchKnowledge(query, limit)
}

func (s *Store) hybridSearchKnowledge(queryVec []float32, query string, limit int) ([]KnowledgeEntry, error) {
	searchLimit := limit * 3
	const sqlText = `
		WITH vec_matches AS (
			SELECT rowid, row_number() OVER (ORDER BY vec_distance_cosine(embedding, ?) ASC) AS rank_number
			FROM knowledge_embeddings
			ORDER BY vec_distance_cosine(embedding, ?) ASC
			LIMIT ?
		),
		fts_matches AS (
			SELECT rowid, row_number() OVER (ORDER BY rank) AS rank_number
			FROM knowledge_fts
			WHERE knowledge_fts MATCH ?
			LIMIT ?
		)
		SELECT k.id, k.category, k.key, k.value, coalesce(k.source,''),
			coalesce(1.0/(?+fts.rank_number), 0.0) * 0.5 + coalesce(1.0/(?+vec.rank_number), 0.0) * 0.5 AS combined_rank
		FROM knowledge k
		LEFT JOIN vec_matches vec ON k.rowid = vec.rowid
		LEFT JOIN fts_matches fts ON k.rowid = fts.rowid
		WHERE vec.rowid IS NOT NULL OR fts.rowid IS NOT NULL
		ORDER BY combined_rank DESC
		LIMIT ?
	`
	vecBytes := floatsToBytes(queryVec)
	rows, err := s.db.Query(sqlText, vecBytes, vecBytes, searchLimit, query, searchLimit, rrfK, rrfK, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to hybrid-search knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func (s *Store) ftsOnlySearchKnowledge(query string, limit int) ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT k.id, k.category, k.key, k.value, coalesce(k.source,'')
		FROM knowledge k
		JOIN knowledge_fts fts ON k.rowid = fts.rowid
		WHERE knowledge_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to FTS-search knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func scanKnowledgeRows(rows *sql.Rows) ([]KnowledgeEntry, error) {
	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var combinedRank sql.NullFloat64
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		dest := []any{&e.ID, &e.Category, &e.Key, &e.Value, &e.Source}
		if len(cols) > 5 {
			dest = append(dest, &combinedRank)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListKnowledge returns every entry in a category, ordered by key.
func (s *Store) ListKnowledge(category string) ([]KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, category, key, value, coalesce(source,'')
		FROM knowledge WHERE category = ? ORDER BY key
	`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// Forget deletes a knowledge entry (and its embedding, if any), returning
// whether a row was actually removed.
func (s *Store) Forget(category, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rowID sql.NullInt64
	_ = s.db.QueryRow(`SELECT rowid FROM knowledge WHERE category = ? AND key = ?`, category, key).Scan(&rowID)
	if rowID.Valid {
		if _, err := s.db.Exec(`DELETE FROM knowledge_embeddings WHERE rowid = ?`, rowID.Int64); err != nil {
			return false, fmt.Errorf("failed to delete knowledge embedding: %w", err)
		}
	}

	res, err := s.db.Exec(`DELETE FROM knowledge WHERE category = ? AND key = ?`, category, key)
	if err != nil {
		return false, fmt.Errorf("failed to forget knowledge: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
