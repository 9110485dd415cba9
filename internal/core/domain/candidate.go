package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

type Channel string

const (
	ChannelBM25    Channel = "bm25"
	ChannelVector  Channel = "vec"
	ChannelTitle   Channel = "title"
	ChannelSection Channel = "section"
	ChannelShort   Channel = "short"
	ChannelHybrid  Channel = "hybrid"
	ChannelOther   Channel = "other"
	ChannelFusion  Channel = "fusion"
)

// Candidate is the unit of retrieval: one chunk as returned by a single
// channel, after row normalization.
type Candidate struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Text    string         `json:"text"`
	Channel Channel        `json:"source_channel"`
	Meta    map[string]any `json:"metadata,omitempty"`
}

// RankList is one channel's ordered result set, rank 1 first.
type RankList []Candidate

// FusedCandidate is one logical chunk after reciprocal-rank fusion.
// ChannelScores keeps the raw per-channel scores for feature extraction.
type FusedCandidate struct {
	DocID         string              `json:"doc_id"`
	Score         float64             `json:"score"`
	Text          string              `json:"text"`
	Source        Channel             `json:"source"`
	Meta          map[string]any      `json:"meta,omitempty"`
	ChannelScores map[Channel]float64 `json:"channel_scores,omitempty"`
}

// ScoredCandidate is a fused candidate after the reranking stage.
// RankedBy records which backend produced the ordering.
type ScoredCandidate struct {
	FusedCandidate
	ScoreCE  float64 `json:"score_ce,omitempty"`
	RankedBy string  `json:"ranked_by"`
}

const (
	RankedByCrossEncoder = "cross_encoder"
	RankedByFusionHead   = "fusion_head"
	RankedByFused        = "fused"
)

// RankScore is the score the diversity stage orders by.
func (c ScoredCandidate) RankScore() float64 {
	if c.RankedBy == RankedByCrossEncoder {
		return c.ScoreCE
	}
	return c.Score
}

// SnapshotEntry mirrors one pre-rerank pool candidate for debugging. The
// snapshot reflects the pool, not the final list, so discarded candidates
// stay inspectable.
type SnapshotEntry struct {
	ID           string  `json:"id"`
	Source       Channel `json:"source"`
	Filename     string  `json:"filename"`
	Score        float64 `json:"score"`
	TextPreview  string  `json:"text_preview"`
	IngestRunID  string  `json:"ingest_run_id,omitempty"`
	ChunkVariant string  `json:"chunk_variant,omitempty"`
}

// EvidenceResult is the produced interface toward the answer-generation
// collaborator: the final ordered evidence plus the pool snapshot.
type EvidenceResult struct {
	Question   string            `json:"question"`
	Tag        string            `json:"tag,omitempty"`
	Candidates []ScoredCandidate `json:"candidates"`
	Snapshot   []SnapshotEntry   `json:"snapshot"`
}

func (c Candidate) Filename() string      { return metaFilename(c.Meta) }
func (c FusedCandidate) Filename() string { return metaFilename(c.Meta) }

func (c Candidate) FilePath() string      { return metaFilePath(c.Meta) }
func (c FusedCandidate) FilePath() string { return metaFilePath(c.Meta) }

func metaFilename(meta map[string]any) string {
	if name := MetaString(meta, "filename"); name != "" {
		return name
	}
	if p := MetaString(meta, "file_path"); p != "" {
		return path.Base(p)
	}
	return ""
}

func metaFilePath(meta map[string]any) string {
	if p := MetaString(meta, "file_path"); p != "" {
		return p
	}
	return MetaString(meta, "filename")
}

// MetaString reads a string value from a candidate meta map, checking the
// flat key first and then the nested meta/metadata sub-maps.
func MetaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return strings.TrimSpace(s)
	}
	for _, nested := range []string{"meta", "metadata"} {
		if m, ok := meta[nested].(map[string]any); ok {
			if s, ok := m[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// ContentHashID derives a stable candidate id from chunk text. Used when the
// storage engine returns rows without an explicit id, so repeated runs over
// unchanged data keep keying the same logical chunk.
func ContentHashID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:8])
}
