package domain

// RowKind tags the shape a storage backend returned a result row in. The
// variants never travel past the channel retrieval adapter: normalization
// produces a Candidate and drops the union.
type RowKind int

const (
	RowFields RowKind = iota
	RowTuple
	RowText
)

// RawRow is one result row from a storage backend, in whichever of the three
// supported shapes the backend speaks.
type RawRow struct {
	Kind RowKind

	// RowFields: open field map, id/score/text under assorted key names.
	Fields map[string]any

	// RowTuple: explicit (id, score, text, meta).
	ID    string
	Score float64
	Text  string
	Meta  map[string]any

	// RowText: bare chunk text, no id or score.
	Raw string
}

func FieldsRow(fields map[string]any) RawRow {
	return RawRow{Kind: RowFields, Fields: fields}
}

func TupleRow(id string, score float64, text string, meta map[string]any) RawRow {
	return RawRow{Kind: RowTuple, ID: id, Score: score, Text: text, Meta: meta}
}

func TextRow(text string) RawRow {
	return RawRow{Kind: RowText, Raw: text}
}
