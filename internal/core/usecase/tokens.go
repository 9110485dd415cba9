package usecase

import (
	"sort"
	"strings"
	"unicode"
)

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// splitIdentifier breaks camelCase, PascalCase, snake_case and kebab-case
// identifiers into their parts, preserving order.
func splitIdentifier(token string) []string {
	var parts []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
	}

	runes := []rune(token)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (i > 0 && unicode.IsUpper(runes[i-1]) && nextLower) {
				flush()
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return parts
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortedStringKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "are": {}, "was": {}, "were": {}, "have": {}, "has": {},
	"not": {}, "but": {}, "you": {}, "your": {}, "how": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "does": {}, "can": {}, "into": {},
	"all": {}, "any": {}, "its": {}, "use": {}, "used": {}, "using": {},
}

func isStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}
