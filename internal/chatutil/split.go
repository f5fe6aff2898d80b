// Package chatutil holds small helpers shared by outbound transport
// adapters, chiefly message chunking for platforms with a length limit.
package chatutil

import "strings"

// SplitMessage breaks text into chunks of at most maxLen bytes, preferring
// to break at the last newline, then the last space, within the window —
// ported from original_source/src/bot.rs::split_message. Unlike the
// original, every cut point is adjusted back to a UTF-8 rune boundary so no
// chunk ever contains a truncated multi-byte character. When maxLen is
// smaller than the rune at a cut point, that rune is emitted whole as its
// own chunk, which is then longer than maxLen.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		return []string{text}
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxLen
		if end > len(text) {
			end = len(text)
		}

		actualEnd := end
		if end < len(text) {
			window := text[start:end]
			if idx := strings.LastIndexByte(window, '\n'); idx >= 0 {
				actualEnd = start + idx + 1
			} else if idx := strings.LastIndexByte(window, ' '); idx >= 0 {
				actualEnd = start + idx + 1
			} else {
				actualEnd = end
			}
		}

		actualEnd = backToRuneBoundary(text, actualEnd)
		if actualEnd <= start {
			// Guards against a pathological window with no valid boundary
			// at or after start+1; force progress by taking one full rune.
			actualEnd = nextRuneBoundary(text, start)
		}

		chunks = append(chunks, text[start:actualEnd])
		start = actualEnd
	}
	return chunks
}

// backToRuneBoundary walks i backwards until it lands on a UTF-8 rune
// boundary (a byte that is not a continuation byte, 0b10xxxxxx).
func backToRuneBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && isContinuationByte(s[i]) {
		i--
	}
	return i
}

// nextRuneBoundary returns the offset of the first rune boundary strictly
// after i — used when a chunk would otherwise be empty.
func nextRuneBoundary(s string, i int) int {
	j := i + 1
	for j < len(s) && isContinuationByte(s[j]) {
		j++
	}
	return j
}

func isContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}
