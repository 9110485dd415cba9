package ollama

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRerankPromptTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", maxPassageRunes+50)
	prompt := buildRerankPrompt("q", []string{long})

	if !utf8.ValidString(prompt) {
		t.Fatalf("prompt contains a split rune")
	}
	if strings.Count(prompt, "é") != maxPassageRunes {
		t.Fatalf("expected %d runes kept, got %d", maxPassageRunes, strings.Count(prompt, "é"))
	}
}

func TestRerankPromptKeepsShortPassagesIntact(t *testing.T) {
	prompt := buildRerankPrompt("q", []string{"first passage", "second passage"})
	if !strings.Contains(prompt, "[1]\nfirst passage") || !strings.Contains(prompt, "[2]\nsecond passage") {
		t.Fatalf("passages missing or renumbered:\n%s", prompt)
	}
}
