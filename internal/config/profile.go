package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelWeights carries the per-channel fusion weights for one topic tag.
type ChannelWeights struct {
	BM25    float64 `yaml:"bm25"`
	Vector  float64 `yaml:"vec"`
	Title   float64 `yaml:"title"`
	Section float64 `yaml:"section"`
	Short   float64 `yaml:"short"`
}

// RankingProfile is the data side of the fusion engine: per-tag channel
// weights, query hints, synonym triggers, and path priors. Loaded once at
// startup; the pipeline never reads configuration mid-algorithm.
type RankingProfile struct {
	// Weights maps topic tag to channel weights. The "" key is the default.
	Weights map[string]ChannelWeights `yaml:"weights"`

	// HintTokens and PhraseHints prefix the short/title channel queries.
	// PhraseHints entries are emitted quoted.
	HintTokens  map[string][]string `yaml:"hint_tokens"`
	PhraseHints map[string][]string `yaml:"phrase_hints"`

	// Synonyms maps a lowercased substring trigger to expansion tokens that
	// are appended to short/title queries. Pure concatenation: the original
	// query tokens are never removed or reordered.
	Synonyms map[string][]string `yaml:"synonyms"`

	// TokenAliases rewrites a single expanded token into several related
	// tokens for title/section matching.
	TokenAliases map[string][]string `yaml:"token_aliases"`

	// LexicalSuffixTags gates the lexical-only path-token suffix; the suffix
	// is never applied to the vector query.
	LexicalSuffixTags   []string `yaml:"lexical_suffix_tags"`
	LexicalSuffixTokens []string `yaml:"lexical_suffix_tokens"`

	// DirectoryPriors multiplies fused scores for paths containing the key.
	DirectoryPriors map[string]float64 `yaml:"directory_priors"`

	// DemotedBasenames are boilerplate files nudged down after fusion.
	DemotedBasenames []string `yaml:"demoted_basenames"`

	// JournalBasenamePatterns mark prose-journal files demoted symmetrically
	// to the code-content boost.
	JournalBasenamePatterns []string `yaml:"journal_basename_patterns"`

	// CodeExtensions mark code/script/DDL files for the content prior and
	// the code shortlist.
	CodeExtensions []string `yaml:"code_extensions"`
}

// DefaultRankingProfile returns the compiled-in profile used when no file is
// configured.
func DefaultRankingProfile() *RankingProfile {
	return &RankingProfile{
		Weights: map[string]ChannelWeights{
			"": {BM25: 1.0, Vector: 1.0, Title: 0.6, Section: 0.6, Short: 0.8},
			"db_workflows": {BM25: 1.2, Vector: 0.9, Title: 0.6, Section: 0.7, Short: 0.8},
			"profiles":     {BM25: 1.1, Vector: 1.0, Title: 0.7, Section: 0.6, Short: 0.9},
		},
		HintTokens: map[string][]string{
			"db_workflows": {"migration", "schema"},
			"profiles":     {"profile", "env"},
		},
		PhraseHints: map[string][]string{
			"db_workflows": {"create index", "alter table"},
		},
		Synonyms: map[string][]string{
			"embedding": {"vector", "dense"},
			"index":     {"indexing", "lookup"},
			"config":    {"settings", "options"},
		},
		TokenAliases: map[string][]string{
			"ivfflat": {"index", "ann"},
		},
		LexicalSuffixTags:   []string{"profiles", "environment"},
		LexicalSuffixTokens: []string{"profiles/", ".env", "environment"},
		DirectoryPriors: map[string]float64{
			"migrations/": 1.05,
			"docs/":       1.02,
			"archive/":    0.95,
		},
		DemotedBasenames: []string{
			"readme.md", "license", "license.md", "changelog.md",
			"contributing.md", "code_of_conduct.md",
		},
		JournalBasenamePatterns: []string{"journal", "diary", "notes-"},
		CodeExtensions: []string{
			".go", ".py", ".sql", ".sh", ".js", ".ts", ".rs", ".java",
			".rb", ".c", ".h", ".cpp", ".yaml", ".yml", ".toml",
		},
	}
}

// LoadRankingProfile reads a YAML profile from path, overlaying it on the
// defaults. An empty path returns the defaults unchanged.
func LoadRankingProfile(path string) (*RankingProfile, error) {
	profile := DefaultRankingProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranking profile: %w", err)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse ranking profile: %w", err)
	}
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("validate ranking profile: %w", err)
	}
	return profile, nil
}

func (p *RankingProfile) validate() error {
	if _, ok := p.Weights[""]; !ok {
		return fmt.Errorf("missing default channel weights")
	}
	for tag, w := range p.Weights {
		if w.BM25 < 0 || w.Vector < 0 || w.Title < 0 || w.Section < 0 || w.Short < 0 {
			return fmt.Errorf("negative channel weight for tag %q", tag)
		}
	}
	for dir, prior := range p.DirectoryPriors {
		if prior <= 0 {
			return fmt.Errorf("non-positive directory prior for %q", dir)
		}
	}
	return nil
}

// WeightsFor resolves the channel weights for a tag, falling back to the
// default entry.
func (p *RankingProfile) WeightsFor(tag string) ChannelWeights {
	if w, ok := p.Weights[tag]; ok {
		return w
	}
	return p.Weights[""]
}
