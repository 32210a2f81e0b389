package memory

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/utafrali/catalogue-search/internal/query"
)

const keywordSuffix = ".keyword"

func matches(c query.Clause, f fields) bool {
	switch q := c.(type) {
	case *query.Bool:
		return matchBool(q, f)
	case *query.Term:
		return matchTerm(q, f)
	case *query.Range:
		return matchRange(q, f)
	case *query.MatchPhrase:
		return matchPhrase(q.Field, q.Value, f)
	case *query.MultiMatch:
		return matchMulti(q, f)
	default:
		return false
	}
}

func matchBool(q *query.Bool, f fields) bool {
	for _, c := range q.Filter {
		if !matches(c, f) {
			return false
		}
	}
	for _, c := range q.Must {
		if !matches(c, f) {
			return false
		}
	}
	for _, c := range q.MustNot {
		if matches(c, f) {
			return false
		}
	}
	if len(q.Should) == 0 {
		return true
	}

	required := q.MinimumShouldMatch
	if required == 0 && len(q.Filter) == 0 && len(q.Must) == 0 {
		required = 1
	}
	hit := 0
	for _, c := range q.Should {
		if matches(c, f) {
			hit++
		}
	}
	return hit >= required
}

func matchTerm(q *query.Term, f fields) bool {
	field, _ := strings.CutSuffix(string(q.Field), keywordSuffix)
	for _, v := range f[field] {
		switch want := q.Value.(type) {
		case bool:
			if got, ok := v.(bool); ok && got == want {
				return true
			}
		case string:
			if got, ok := v.(string); ok && got == want {
				return true
			}
		case float64:
			if got, ok := v.(float64); ok && got == want {
				return true
			}
		case int:
			if got, ok := v.(float64); ok && got == float64(want) {
				return true
			}
		}
	}
	return false
}

func matchRange(q *query.Range, f fields) bool {
	for _, n := range f.numbers(q.Field) {
		if q.GTE != nil && n < *q.GTE {
			continue
		}
		if q.LTE != nil && n > *q.LTE {
			continue
		}
		return true
	}
	return false
}

// matchPhrase reports whether any value of field contains the analyzed
// phrase as a contiguous token run. Keyword fields match exactly.
func matchPhrase(field query.Field, phrase string, f fields) bool {
	if base, ok := strings.CutSuffix(string(field), keywordSuffix); ok {
		return slices.Contains(f.strings(query.Field(base)), phrase)
	}
	want := tokenize(phrase)
	if len(want) == 0 {
		return false
	}
	for _, v := range f.strings(field) {
		if containsRun(tokenize(v), want) {
			return true
		}
	}
	return false
}

// matchMulti implements best_fields: with operator "and" every query token
// must appear in a single field, otherwise any token in any field suffices.
func matchMulti(q *query.MultiMatch, f fields) bool {
	want := tokenize(q.Query)
	if len(want) == 0 {
		return false
	}
	for _, field := range q.Fields {
		have := map[string]bool{}
		for _, v := range f.strings(field) {
			for _, tok := range tokenize(v) {
				have[tok] = true
			}
		}
		hit := 0
		for _, tok := range want {
			if have[tok] {
				hit++
			}
		}
		if q.Operator == query.OperatorAnd && hit == len(want) {
			return true
		}
		if q.Operator != query.OperatorAnd && hit > 0 {
			return true
		}
	}
	return false
}

// tokenize approximates the standard analyzer: lowercase, split on anything
// that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(have, want []string) bool {
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.Equal(have[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

// sortMatches orders docs by the sort keys. Documents without a value for a
// key sort after those with one, in either direction. Ties keep index order.
func sortMatches(docs []stored, keys []query.Sort) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b stored) int {
		for _, k := range keys {
			if c := compareKey(a.fields, b.fields, k); c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareKey(a, b fields, k query.Sort) int {
	field, _ := strings.CutSuffix(string(k.Field), keywordSuffix)
	va, okA := sortValue(a, field)
	vb, okB := sortValue(b, field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}

	var c int
	switch x := va.(type) {
	case float64:
		y, _ := vb.(float64)
		c = cmp.Compare(x, y)
	case string:
		y, _ := vb.(string)
		c = cmp.Compare(x, y)
	case bool:
		y, _ := vb.(bool)
		c = cmp.Compare(boolRank(x), boolRank(y))
	}
	if k.Order == query.Desc {
		return -c
	}
	return c
}

func sortValue(f fields, field string) (any, bool) {
	vals := f[field]
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
