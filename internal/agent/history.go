package agent

import "github.com/local/picobot/internal/llm"

// maxContextMessages bounds how much history is sent to the LLM per turn,
// independent of how much is persisted. This module persists full history
// in the DB and only needs to bound what actually goes out over the wire
// each turn, unlike a cap-to-last-N in-memory session store (see DESIGN.md).
const maxContextMessages = 40

// trimForContext keeps the leading system message (if any) plus the most
// recent maxContextMessages-1 messages, so a long-lived conversation never
// grows the per-turn request without limit.
//
// The naive "last N" cut can land in the middle of an assistant(tool_calls)
// message and its tool-result messages, leaving the tail starting with an
// orphaned role=tool message whose parent was trimmed away — a request
// shape OpenAI-compatible providers reject. So the cut point is walked
// backward past any leading role=tool messages until it lands on the
// assistant message that issued them, which keeps every such group whole
// at the cost of occasionally sending a few messages more than the budget.
func trimForContext(messages []llm.Message) []llm.Message {
	if len(messages) <= maxContextMessages {
		return messages
	}

	var system *llm.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == "system" {
		system = &messages[0]
		rest = messages[1:]
	}

	tailLen := maxContextMessages
	if system != nil {
		tailLen--
	}
	if tailLen > len(rest) {
		tailLen = len(rest)
	}
	startIdx := len(rest) - tailLen
	for startIdx > 0 && rest[startIdx].Role == "tool" {
		startIdx--
	}
	tail := rest[startIdx:]

	if system == nil {
		return tail
	}
	out := make([]llm.Message, 0, len(tail)+1)
	out = append(out, *system)
	out = append(out, tail...)
	return out
}
