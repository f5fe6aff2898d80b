package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetOrCreateConversation resolves the conversation id for (platform,
// userID), creating one if absent. When multiple rows exist for the pair
// (not expected in normal operation) the most-recently-updated one wins.
func (s *Store) GetOrCreateConversation(platform, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM conversations WHERE platform = ? AND user_id = ? ORDER BY updated_at DESC LIMIT 1`,
		platform, userID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up conversation: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO conversations(platform, user_id) VALUES (?, ?)`,
		platform, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}
	return res.LastInsertId()
}

// SaveMessage inserts the message row, bumps the conversation's updated_at,
// and — if content is non-empty and role != "tool" — schedules a detached
// background embedding task.
func (s *Store) SaveMessage(conversationID int64, role, content, toolCalls, toolCallID string) (int64, error) {
	var id int64
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		res, err := s.db.Exec(
			`INSERT INTO messages(conversation_id, role, content, tool_calls, tool_call_id) VALUES (?, ?, ?, ?, ?)`,
			conversationID, role, content, nullIfEmpty(toolCalls), nullIfEmpty(toolCallID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := s.db.Exec(`UPDATE conversations SET updated_at = datetime('now') WHERE id = ?`, conversationID); err != nil {
			return fmt.Errorf("failed to bump conversation timestamp: %w", err)
		}
		return nil
	}()
	if err != nil {
		return 0, err
	}

	if role != "tool" && content != "" {
		s.embedInBackground("messages_vec", id, content)
	}
	return id, nil
}

// LoadMessages returns every message for a conversation, ordered by insert
// time.
func (s *Store) LoadMessages(conversationID int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, coalesce(content,''), coalesce(tool_calls,''), coalesce(tool_call_id,''), created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.CreatedAt = parseSQLiteTimestamp(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearConversation deletes dependent embeddings first, then messages, then
// the conversation row itself — cascade expressed in SQL subqueries since
// the vector table is a plain shadow table with no foreign key.
func (s *Store) ClearConversation(platform, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM messages_vec WHERE rowid IN (
			SELECT m.id FROM messages m
			JOIN conversations c ON m.conversation_id = c.id
			WHERE c.platform = ? AND c.user_id = ?
		);
		DELETE FROM messages WHERE conversation_id IN (
			SELECT id FROM conversations WHERE platform = ? AND user_id = ?
		);
		DELETE FROM conversations WHERE platform = ? AND user_id = ?;
	`, platform, userID, platform, userID, platform, userID)
	if err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// SearchMessages performs Reciprocal Rank Fusion hybrid search over message
// content. An empty query returns no results.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	if query == "" {
		return nil, nil
	}
	queryEmbedding := s.tryEmbed(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if queryEmbedding != nil {
		return s.hybridSearchMessages(queryEmbedding, query, limit)
	}
	return s.ftsOnlySearchMessages(query, limit)
}

const rrfK = 60

func (s *Store) hybridSearchMessages(queryVec []float32, query string, limit int) ([]Message, error) {
	searchLimit := limit * 3
	const sqlText = `
		WITH vec_matches AS (
			SELECT rowid, row_number() OVER (ORDER BY vec_distance_cosine(embedding, ?) ASC) AS rank_number
			FROM messages_vec
			ORDER BY vec_distance_cosine(embedding, ?) ASC
			LIMIT ?
		),
		fts_matches AS (
			SELECT rowid, row_number() OVER (ORDER BY rank) AS rank_number
			FROM messages_fts
			WHERE messages_fts MATCH ?
			LIMIT ?
		)
		SELECT m.id, m.conversation_id, m.role, coalesce(m.content,''), coalesce(m.tool_calls,''), coalesce(m.tool_call_id,''), m.created_at,
			coalesce(1.0/(?+fts.rank_number), 0.0) * 0.5 + coalesce(1.0/(?+vec.rank_number), 0.0) * 0.5 AS combined_rank
		FROM messages m
		LEFT JOIN vec_matches vec ON m.id = vec.rowid
		LEFT JOIN fts_matches fts ON m.id = fts.rowid
		WHERE vec.rowid IS NOT NULL OR fts.rowid IS NOT NULL
		ORDER BY combined_rank DESC
		LIMIT ?
	`
	vecBytes := floatsToBytes(queryVec)
	rows, err := s.db.Query(sqlText, vecBytes, vecBytes, searchLimit, query, searchLimit, rrfK, rrfK, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to hybrid-search messages: %w", err)
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func (s *Store) ftsOnlySearchMessages(query string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, m.role, coalesce(m.content,''), coalesce(m.tool_calls,''), coalesce(m.tool_call_id,''), m.created_at
		FROM messages m
		JOIN messages_fts fts ON m.id = fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to FTS-search messages: %w", err)
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func scanMessageRows(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		var combinedRank sql.NullFloat64
		dest := []any{&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &createdAt}
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if len(cols) > 7 {
			dest = append(dest, &combinedRank)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.CreatedAt = parseSQLiteTimestamp(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseSQLiteTimestamp parses a column written by SQLite's datetime('now'),
// which has no timezone suffix and is always UTC. A malformed or empty
// value yields the zero time rather than an error, since CreatedAt is
// informational and never used to order results.
func parseSQLiteTimestamp(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (s *Store) tryEmbed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	return s.embedder.TryEmbed(ctx, text)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
