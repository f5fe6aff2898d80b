package memory

import (
	"context"
	"time"
)

// Message is one row of the messages table.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string // system | user | assistant | tool
	Content        string
	ToolCalls      string // JSON-encoded []llm.ToolCall, empty if none
	ToolCallID     string
	CreatedAt      time.Time
}

// Conversation is one row of the conversations table.
type Conversation struct {
	ID        int64
	Platform  string
	UserID    string
	StartedAt time.Time
	UpdatedAt time.Time
}

// KnowledgeEntry is one row of the knowledge table.
type KnowledgeEntry struct {
	ID        string
	Category  string
	Key       string
	Value     string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Embedder is the interface the memory store needs from C3; satisfied by
// *embedding.Client. A nil Embedder (or one whose TryEmbed always returns
// nil) degrades every hybrid search to FTS-only.
type Embedder interface {
	TryEmbed(ctx context.Context, text string) []float32
}
