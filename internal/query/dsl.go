// Package query compiles typed search filters into the index engine's boolean
// query language. Nothing here performs I/O, so compiled queries can be
// logged, diffed and tested offline.
package query

import "encoding/json"

// Clause is a node of the compiled query tree. Each implementation marshals
// to its Elasticsearch query DSL form.
type Clause interface {
	json.Marshaler
	clause()
}

// Bool combines sub-clauses. Filter clauses do not score, Must clauses score
// and are required, MustNot clauses exclude, and at least
// MinimumShouldMatch of the Should clauses must match.
type Bool struct {
	Filter             []Clause
	Must               []Clause
	MustNot            []Clause
	Should             []Clause
	MinimumShouldMatch int
}

func (*Bool) clause() {}

// IsEmpty reports whether the query matches every document.
func (b *Bool) IsEmpty() bool {
	return len(b.Filter) == 0 && len(b.Must) == 0 && len(b.MustNot) == 0 && len(b.Should) == 0
}

// MarshalJSON implements json.Marshaler.
func (b *Bool) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if len(b.Filter) > 0 {
		body["filter"] = b.Filter
	}
	if len(b.Must) > 0 {
		body["must"] = b.Must
	}
	if len(b.MustNot) > 0 {
		body["must_not"] = b.MustNot
	}
	if len(b.Should) > 0 {
		body["should"] = b.Should
		if b.MinimumShouldMatch > 0 {
			body["minimum_should_match"] = b.MinimumShouldMatch
		}
	}
	return json.Marshal(map[string]any{"bool": body})
}

// Term is an exact, non-analyzed value match.
type Term struct {
	Field Field
	Value any
}

func (*Term) clause() {}

// MarshalJSON implements json.Marshaler.
func (t *Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"term": map[string]any{string(t.Field): t.Value},
	})
}

// Range is an inclusive numeric range. Nil bounds are omitted.
type Range struct {
	Field Field
	GTE   *float64
	LTE   *float64
}

func (*Range) clause() {}

// MarshalJSON implements json.Marshaler.
func (r *Range) MarshalJSON() ([]byte, error) {
	bounds := map[string]float64{}
	if r.GTE != nil {
		bounds["gte"] = *r.GTE
	}
	if r.LTE != nil {
		bounds["lte"] = *r.LTE
	}
	return json.Marshal(map[string]any{
		"range": map[string]any{string(r.Field): bounds},
	})
}

// MatchPhrase is an exact, order-preserving phrase match on an analyzed field.
type MatchPhrase struct {
	Field Field
	Value string
}

func (*MatchPhrase) clause() {}

// MarshalJSON implements json.Marshaler.
func (m *MatchPhrase) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"match_phrase": map[string]any{string(m.Field): m.Value},
	})
}

// Multi-match operators and types used by the compiler.
const (
	OperatorAnd    = "and"
	TypeBestFields = "best_fields"
)

// MultiMatch is a free-text match across several fields.
type MultiMatch struct {
	Query    string
	Fields   []Field
	Operator string
	Type     string
}

func (*MultiMatch) clause() {}

// MarshalJSON implements json.Marshaler.
func (m *MultiMatch) MarshalJSON() ([]byte, error) {
	fields := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		fields[i] = string(f)
	}
	return json.Marshal(map[string]any{
		"multi_match": map[string]any{
			"query":    m.Query,
			"fields":   fields,
			"operator": m.Operator,
			"type":     m.Type,
		},
	})
}

// Sort orders.
const (
	Asc  = "asc"
	Desc = "desc"
)

// Sort is a single sort key.
type Sort struct {
	Field Field
	Order string
}

// MarshalJSON implements json.Marshaler.
func (s Sort) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(s.Field): s.Order})
}

// Metric aggregation kinds.
const (
	AggMin = "min"
	AggMax = "max"
)

// Aggregation is a single-value numeric metric aggregation.
type Aggregation struct {
	Kind  string
	Field Field
}

// MarshalJSON implements json.Marshaler.
func (a Aggregation) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		a.Kind: map[string]string{"field": string(a.Field)},
	})
}

// Request is a complete search request body.
type Request struct {
	From         int
	Size         int
	Query        *Bool
	Sort         []Sort
	Aggregations map[string]Aggregation
}

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"from":             r.From,
		"size":             r.Size,
		"track_total_hits": true,
	}
	if r.Query != nil && !r.Query.IsEmpty() {
		body["query"] = r.Query
	}
	if len(r.Sort) > 0 {
		body["sort"] = r.Sort
	}
	if len(r.Aggregations) > 0 {
		body["aggs"] = r.Aggregations
	}
	return json.Marshal(body)
}
