package query

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/utafrali/catalogue-search/internal/domain"
)

// ErrInvalidQuery is wrapped by every compilation error.
var ErrInvalidQuery = errors.New("invalid query")

// MaxPrice is the upper price bound used when a range omits its maximum.
const MaxPrice float64 = 1<<53 - 1

// Aggregation names always present on a compiled query.
const (
	AggMinPrice = "minPrice"
	AggMaxPrice = "maxPrice"
)

// Compiled is the output of Compile.
type Compiled struct {
	Query        *Bool
	Sort         []Sort
	Aggregations map[string]Aggregation
}

// Request builds the search request body for the page [from, from+size).
func (c *Compiled) Request(from, size int) *Request {
	return &Request{
		From:         from,
		Size:         size,
		Query:        c.Query,
		Sort:         c.Sort,
		Aggregations: c.Aggregations,
	}
}

// Compile translates a filter and optional sort key into a boolean query, a
// sort order and the price aggregations. A nil filter matches everything.
func Compile(filter *domain.ProductVariantsFilter, orderBy *domain.OrderBy) (*Compiled, error) {
	q := &Bool{}
	if filter != nil {
		var err error
		if q.Filter, err = filterClauses(filter); err != nil {
			return nil, err
		}
		if q.Must, err = mustClauses(filter); err != nil {
			return nil, err
		}
		if filter.Exclude != nil {
			q.MustNot = phraseSets(filter.Exclude)
		}
	}

	sort, err := compileSort(orderBy)
	if err != nil {
		return nil, err
	}

	return &Compiled{
		Query: q,
		Sort:  sort,
		Aggregations: map[string]Aggregation{
			AggMinPrice: {Kind: AggMin, Field: FieldVariantPrice},
			AggMaxPrice: {Kind: AggMax, Field: FieldVariantPrice},
		},
	}, nil
}

// filterClauses builds the non-scoring part of the query.
func filterClauses(f *domain.ProductVariantsFilter) ([]Clause, error) {
	var clauses []Clause

	if f.IsDefault != nil {
		clauses = append(clauses, &Term{Field: FieldVariantIsDefault, Value: *f.IsDefault})
	}

	if f.PriceRange != nil {
		lo, hi := 0.0, MaxPrice
		if f.PriceRange.Min != nil {
			lo = *f.PriceRange.Min
		}
		if f.PriceRange.Max != nil {
			hi = *f.PriceRange.Max
		}
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return nil, fmt.Errorf("%w: price range bounds must be numbers", ErrInvalidQuery)
		}
		if lo > hi {
			return nil, fmt.Errorf("%w: price range min %v exceeds max %v", ErrInvalidQuery, lo, hi)
		}
		clauses = append(clauses, &Range{Field: FieldVariantPrice, GTE: &lo, LTE: &hi})
	}

	return clauses, nil
}

// mustClauses builds the scoring part of the query: free text, included
// identifiers and the attribute matrix.
func mustClauses(f *domain.ProductVariantsFilter) ([]Clause, error) {
	var clauses []Clause

	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		clauses = append(clauses, &MultiMatch{
			Query:    term,
			Fields:   SearchTermFields,
			Operator: OperatorAnd,
			Type:     TypeBestFields,
		})
	}

	if f.Include != nil {
		clauses = append(clauses, phraseSets(f.Include)...)
	}

	for i, attr := range f.Attributes {
		if strings.TrimSpace(attr.Attribute) == "" {
			return nil, fmt.Errorf("%w: attributes[%d]: attribute name is required", ErrInvalidQuery, i)
		}
		if len(attr.Values) == 0 {
			return nil, fmt.Errorf("%w: attributes[%d]: at least one value is required", ErrInvalidQuery, i)
		}
		clauses = append(clauses, &Bool{
			Must: []Clause{
				&MatchPhrase{Field: FieldAttributeName, Value: attr.Attribute},
				anyPhrase(FieldAttributeValue, attr.Values),
			},
		})
	}

	return clauses, nil
}

// phraseSets turns every non-empty identifier list into an OR-of-phrases
// clause. Callers AND (include) or negate (exclude) the result.
func phraseSets(ff *domain.FilterFields) []Clause {
	var clauses []Clause
	for _, fv := range identifierFields(ff) {
		if len(fv.values) == 0 {
			continue
		}
		clauses = append(clauses, anyPhrase(fv.field, fv.values))
	}
	return clauses
}

func anyPhrase(field Field, values []string) *Bool {
	should := make([]Clause, 0, len(values))
	for _, v := range values {
		should = append(should, &MatchPhrase{Field: field, Value: v})
	}
	return &Bool{Should: should, MinimumShouldMatch: 1}
}

func compileSort(orderBy *domain.OrderBy) ([]Sort, error) {
	if orderBy == nil {
		return nil, nil
	}
	field, err := sortField(orderBy.Field)
	if err != nil {
		return nil, err
	}
	order, err := sortOrder(orderBy.Direction)
	if err != nil {
		return nil, err
	}
	return []Sort{{Field: field, Order: order}}, nil
}
