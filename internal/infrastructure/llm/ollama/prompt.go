package ollama

import (
	"fmt"
	"strings"
)

const maxPassageRunes = 2000

func buildRerankPrompt(query string, texts []string) string {
	var b strings.Builder
	b.WriteString(`You are a relevance judge.
Score how well each passage answers the query, from 0 (irrelevant) to 1 (directly answers).
Return strict JSON object: {"scores": [number, ...]} with exactly one score per passage, in order.
No markdown, no extra keys.

Query:
`)
	b.WriteString(query)
	b.WriteString("\n\nPassages:\n")
	for i, text := range texts {
		if runes := []rune(text); len(runes) > maxPassageRunes {
			text = string(runes[:maxPassageRunes])
		}
		fmt.Fprintf(&b, "[%d]\n%s\n\n", i+1, text)
	}
	return b.String()
}

func buildPassagePrompt(question string) string {
	return `Write a short technical passage that would plausibly appear in internal
documentation answering the question below. State concrete facts, commands,
and file names; do not mention that it is hypothetical. Three to five
sentences, plain text.

Question:
` + question
}
