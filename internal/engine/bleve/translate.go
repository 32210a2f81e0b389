package bleve

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/catalogue-search/internal/query"
)

const keywordSuffix = ".keyword"

// translate converts a compiled clause into the equivalent bleve query.
func translate(c query.Clause) (bquery.Query, error) {
	switch q := c.(type) {
	case *query.Bool:
		return translateBool(q)
	case *query.Term:
		return translateTerm(q)
	case *query.Range:
		inclusive := true
		r := bleve.NewNumericRangeInclusiveQuery(q.GTE, q.LTE, &inclusive, &inclusive)
		r.SetField(string(q.Field))
		return r, nil
	case *query.MatchPhrase:
		if strings.HasSuffix(string(q.Field), keywordSuffix) {
			t := bleve.NewTermQuery(q.Value)
			t.SetField(string(q.Field))
			return t, nil
		}
		p := bleve.NewMatchPhraseQuery(q.Value)
		p.SetField(string(q.Field))
		return p, nil
	case *query.MultiMatch:
		return translateMultiMatch(q), nil
	default:
		return nil, fmt.Errorf("bleve: unsupported clause %T", c)
	}
}

func translateBool(q *query.Bool) (bquery.Query, error) {
	if q.IsEmpty() {
		return bleve.NewMatchAllQuery(), nil
	}

	must, err := translateAll(append(append([]query.Clause{}, q.Filter...), q.Must...))
	if err != nil {
		return nil, err
	}
	should, err := translateAll(q.Should)
	if err != nil {
		return nil, err
	}
	mustNot, err := translateAll(q.MustNot)
	if err != nil {
		return nil, err
	}

	bq := bquery.NewBooleanQuery(must, should, mustNot)
	if len(should) > 0 {
		minShould := q.MinimumShouldMatch
		if minShould == 0 && len(must) == 0 {
			minShould = 1
		}
		bq.SetMinShould(float64(minShould))
	}
	return bq, nil
}

func translateAll(clauses []query.Clause) ([]bquery.Query, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	out := make([]bquery.Query, 0, len(clauses))
	for _, c := range clauses {
		q, err := translate(c)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func translateTerm(q *query.Term) (bquery.Query, error) {
	switch v := q.Value.(type) {
	case bool:
		b := bleve.NewBoolFieldQuery(v)
		b.SetField(string(q.Field))
		return b, nil
	case string:
		t := bleve.NewTermQuery(v)
		t.SetField(string(q.Field))
		return t, nil
	case float64:
		return numericEquals(q.Field, v), nil
	case int:
		return numericEquals(q.Field, float64(v)), nil
	default:
		return nil, fmt.Errorf("bleve: unsupported term value %T", q.Value)
	}
}

func numericEquals(field query.Field, v float64) bquery.Query {
	inclusive := true
	r := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
	r.SetField(string(field))
	return r
}

// translateMultiMatch mirrors best_fields: the query must match within a
// single field, with every term required when the operator is "and".
func translateMultiMatch(q *query.MultiMatch) bquery.Query {
	perField := make([]bquery.Query, 0, len(q.Fields))
	for _, f := range q.Fields {
		m := bleve.NewMatchQuery(q.Query)
		m.SetField(string(f))
		if q.Operator == query.OperatorAnd {
			m.SetOperator(bquery.MatchQueryOperatorAnd)
		}
		perField = append(perField, m)
	}
	return bleve.NewDisjunctionQuery(perField...)
}

// lookupNumber resolves a dotted path such as "variant.price" in a decoded
// source document.
func lookupNumber(doc map[string]any, path string) (float64, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur = m[part]
	}
	n, ok := cur.(float64)
	return n, ok
}
