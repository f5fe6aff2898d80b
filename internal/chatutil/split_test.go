package chatutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortTextIsUnaffected(t *testing.T) {
	got := SplitMessage("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("SplitMessage short text = %v", got)
	}
}

func TestSplitMessagePrefersNewlineThenSpace(t *testing.T) {
	text := "line one\nline two is a bit longer than the limit allows for sure"
	chunks := SplitMessage(text, 12)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("chunks do not reconstruct original text")
	}
	if chunks[0] != "line one\n" {
		t.Errorf("chunks[0] = %q, want cut after the newline", chunks[0])
	}
	if chunks[1] != "line two is " {
		t.Errorf("chunks[1] = %q, want cut after the last space", chunks[1])
	}
}

func TestSplitMessagePropertiesOnMixedText(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 50) + "日本語のテキストも含む文章です。"
	const maxLen = 37

	chunks := SplitMessage(text, maxLen)

	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not concatenate back to the original string")
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk is not valid UTF-8: %q", c)
		}
		if len(c) > maxLen {
			// a chunk may slightly exceed maxLen only when forced past a
			// boundary with no newline/space/rune-boundary available within
			// the window; this text has ample breakpoints, so that should
			// never happen here.
			t.Errorf("chunk exceeds maxLen unexpectedly: %d bytes: %q", len(c), c)
		}
	}
}

func TestSplitMessageNeverProducesEmptyInfiniteLoop(t *testing.T) {
	text := strings.Repeat("あ", 10)
	chunks := SplitMessage(text, 3)
	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not reconstruct original text")
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk not valid UTF-8: %q", c)
		}
		if c == "" {
			t.Error("produced an empty chunk")
		}
	}
}
