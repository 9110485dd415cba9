package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/evidence-engine/internal/config"
)

const (
	coldStartMinTokens   = 3
	coldStartMinTokenLen = 3
	filenamePatternMax   = 6
	filenameTokenMinLen  = 3
)

// ChannelQueries is the per-channel rendering of one user question, plus the
// auxiliary signals the downstream stages consume.
type ChannelQueries struct {
	Short   string
	Title   string
	Section string
	BM25    string
	Vector  string

	// FilenamePattern matches query tokens against candidate basenames.
	// Nil when the query yields no usable tokens; nil matches nothing.
	FilenamePattern *regexp.Regexp

	// ColdStart marks a lexically sparse query that should trigger breadth
	// escalation and a vector-weight boost.
	ColdStart bool
}

type QueryBuilder struct {
	profile *config.RankingProfile
}

func NewQueryBuilder(profile *config.RankingProfile) *QueryBuilder {
	return &QueryBuilder{profile: profile}
}

func (b *QueryBuilder) Build(question, tag string) ChannelQueries {
	question = strings.TrimSpace(question)
	prefix := b.hintPrefix(question, tag)

	q := ChannelQueries{
		Short:   joinNonEmpty(prefix, question),
		Title:   joinNonEmpty(prefix, question),
		Section: b.headingTokens(question),
		BM25:    b.lexicalQuery(question, tag),
		Vector:  question,
	}
	q.ColdStart = isColdStart(question)
	q.FilenamePattern = filenamePattern(question)
	return q
}

// lexicalQuery leaves the question untouched except for the tag-gated path
// token suffix. The suffix compensates for lexical search missing synonyms
// of profile/environment wording and must never reach the vector query.
func (b *QueryBuilder) lexicalQuery(question, tag string) string {
	for _, gated := range b.profile.LexicalSuffixTags {
		if tag == gated {
			return joinNonEmpty(question, strings.Join(b.profile.LexicalSuffixTokens, " "))
		}
	}
	return question
}

// hintPrefix assembles the tag-indexed literal hints, quoted phrase hints,
// and substring-triggered synonym expansions. Concatenation only: the
// original query tokens stay intact behind the prefix.
func (b *QueryBuilder) hintPrefix(question, tag string) string {
	var parts []string
	parts = append(parts, b.profile.HintTokens[tag]...)
	for _, phrase := range b.profile.PhraseHints[tag] {
		parts = append(parts, `"`+phrase+`"`)
	}

	lower := strings.ToLower(question)
	for _, trigger := range sortedStringKeys(b.profile.Synonyms) {
		if strings.Contains(lower, trigger) {
			parts = append(parts, b.profile.Synonyms[trigger]...)
		}
	}
	return strings.Join(parts, " ")
}

// headingTokens expands the question into an OR-style hint string for
// title/section matching: identifiers split on case and separators, alias
// table applied, single characters dropped.
func (b *QueryBuilder) headingTokens(question string) string {
	var out []string
	seen := make(map[string]struct{})
	add := func(token string) {
		token = strings.ToLower(token)
		if len(token) <= 1 {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	for _, field := range strings.Fields(question) {
		field = strings.Trim(field, `"'.,;:!?()[]{}`)
		if field == "" {
			continue
		}
		for _, part := range splitIdentifier(field) {
			add(part)
			for _, alias := range b.profile.TokenAliases[strings.ToLower(part)] {
				add(alias)
			}
		}
		for _, alias := range b.profile.TokenAliases[strings.ToLower(field)] {
			add(alias)
		}
	}
	return strings.Join(out, " | ")
}

func isColdStart(question string) bool {
	meaningful := 0
	for _, token := range splitAlphaNumLower(question) {
		if len(token) >= coldStartMinTokenLen {
			meaningful++
		}
	}
	return meaningful < coldStartMinTokens
}

// filenamePattern builds a case-insensitive alternation over up to six
// non-numeric query tokens. No usable tokens yields nil, which downstream
// treats as match-nothing, never match-everything.
func filenamePattern(question string) *regexp.Regexp {
	var tokens []string
	seen := make(map[string]struct{})
	for _, token := range splitAlphaNumLower(question) {
		if len(token) < filenameTokenMinLen || allDigits(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, regexp.QuoteMeta(token))
		if len(tokens) == filenamePatternMax {
			break
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	re, err := regexp.Compile(`(?i)(` + strings.Join(tokens, "|") + `)`)
	if err != nil {
		return nil
	}
	return re
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
