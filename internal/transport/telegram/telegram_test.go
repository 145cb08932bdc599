package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected split: %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(text, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	if got[0] != strings.Repeat("a", 8) {
		t.Fatalf("chunk not split at newline: %q", got[0])
	}
	if got[1] != strings.Repeat("b", 8) {
		t.Fatalf("second chunk wrong: %q", got[1])
	}
}

func TestSplitTextHardLimit(t *testing.T) {
	text := strings.Repeat("x", 25)
	got := splitText(text, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if len([]rune(c)) > 10 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
	}
	if strings.Join(got, "") != text {
		t.Fatalf("content lost in split")
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	text := strings.Repeat("日", 15)
	got := splitText(text, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if n := len([]rune(got[0])); n != 10 {
		t.Fatalf("expected 10-rune first chunk, got %d", n)
	}
}
