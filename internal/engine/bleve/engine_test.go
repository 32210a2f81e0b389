package bleve

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/query"
)

const testIndex = "catalogue"

func ptr[T any](v T) *T { return &v }

func newTestDoc(productName, variantID, sku string, price *float64, stock *int, isDefault bool) domain.Document {
	return domain.Document{
		Product: domain.ProductSummary{
			ID:     "prod-" + productName,
			Name:   productName,
			Path:   "/shop/" + productName,
			Type:   domain.NodeTypeProduct,
			Topics: []domain.Topic{{ID: "t1", Name: "Outdoor Gear"}},
		},
		Variant: domain.Variant{
			ID:        variantID,
			Name:      productName + " " + variantID,
			SKU:       sku,
			Price:     price,
			Stock:     stock,
			IsDefault: isDefault,
			Attributes: []domain.VariantAttribute{
				{Attribute: "color", Value: "Dark Red"},
				{Attribute: "size", Value: "M"},
			},
		},
	}
}

func seed(t *testing.T, docs ...domain.Document) *Engine {
	t.Helper()
	eng := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	require.NoError(t, eng.CreateIndex(ctx, testIndex))
	resp, err := eng.BulkWrite(ctx, testIndex, docs)
	require.NoError(t, err)
	require.False(t, resp.Errors)
	require.Len(t, resp.Items, len(docs))
	return eng
}

func runSearch(t *testing.T, eng *Engine, filter *domain.ProductVariantsFilter, orderBy *domain.OrderBy, from, size int) *domain.RawSearchResult {
	t.Helper()
	c, err := query.Compile(filter, orderBy)
	require.NoError(t, err)
	res, err := eng.Search(context.Background(), testIndex, c.Request(from, size))
	require.NoError(t, err)
	return res
}

func variantIDs(docs []domain.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Variant.ID
	}
	return out
}

func TestEngine_IndexLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ok, err := eng.IndexExists(ctx, testIndex)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, eng.CreateIndex(ctx, testIndex))
	assert.Error(t, eng.CreateIndex(ctx, testIndex))

	n, err := eng.Count(ctx, testIndex)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, eng.DeleteIndex(ctx, testIndex))
	require.NoError(t, eng.DeleteIndex(ctx, testIndex))

	_, err = eng.Count(ctx, testIndex)
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestEngine_BulkWriteAndCount(t *testing.T) {
	eng := seed(t,
		newTestDoc("boot", "v1", "X100", ptr(10.0), ptr(1), true),
		newTestDoc("boot", "v2", "X200", ptr(20.0), ptr(2), false),
	)

	n, err := eng.Count(context.Background(), testIndex)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngine_MatchAllKeepsInsertionOrder(t *testing.T) {
	eng := seed(t,
		newTestDoc("alpha", "v1", "X100", ptr(1.0), nil, true),
		newTestDoc("beta", "v2", "X200", ptr(2.0), nil, true),
		newTestDoc("gamma", "v3", "X300", ptr(3.0), nil, true),
	)

	res := runSearch(t, eng, nil, nil, 0, 10)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, []string{"v1", "v2", "v3"}, variantIDs(res.Hits))
}

func TestEngine_Filters(t *testing.T) {
	eng := seed(t,
		newTestDoc("hiking boot", "v1", "HB100", ptr(10.0), nil, true),
		newTestDoc("hiking boot", "v2", "HB200", ptr(60.0), nil, false),
		newTestDoc("rain jacket", "v3", "RJ100", ptr(90.0), nil, true),
	)

	res := runSearch(t, eng, &domain.ProductVariantsFilter{IsDefault: ptr(true)}, nil, 0, 10)
	assert.Equal(t, []string{"v1", "v3"}, variantIDs(res.Hits))

	res = runSearch(t, eng, &domain.ProductVariantsFilter{
		PriceRange: &domain.PriceRangeFilter{Min: ptr(10.0), Max: ptr(60.0)},
	}, nil, 0, 10)
	assert.Equal(t, []string{"v1", "v2"}, variantIDs(res.Hits))

	res = runSearch(t, eng, &domain.ProductVariantsFilter{SearchTerm: "Hiking Boot"}, nil, 0, 10)
	assert.Equal(t, []string{"v1", "v2"}, variantIDs(res.Hits))

	res = runSearch(t, eng, &domain.ProductVariantsFilter{SearchTerm: "hiking jacket"}, nil, 0, 10)
	assert.Empty(t, res.Hits)

	res = runSearch(t, eng, &domain.ProductVariantsFilter{
		Include: &domain.FilterFields{SKUs: []string{"HB200", "RJ100"}},
		Exclude: &domain.FilterFields{VariantIDs: []string{"v3"}},
	}, nil, 0, 10)
	assert.Equal(t, []string{"v2"}, variantIDs(res.Hits))

	res = runSearch(t, eng, &domain.ProductVariantsFilter{
		Attributes: []domain.AttributeFilter{{Attribute: "color", Values: []string{"dark red"}}},
		IsDefault:  ptr(false),
	}, nil, 0, 10)
	assert.Equal(t, []string{"v2"}, variantIDs(res.Hits))
}

func TestEngine_Sort(t *testing.T) {
	eng := seed(t,
		newTestDoc("beta", "v1", "X100", ptr(20.0), ptr(3), true),
		newTestDoc("alpha", "v2", "X200", nil, nil, true),
		newTestDoc("gamma", "v3", "X300", ptr(10.0), ptr(7), true),
	)

	res := runSearch(t, eng, nil, &domain.OrderBy{Field: domain.OrderFieldPrice, Direction: domain.OrderAsc}, 0, 10)
	assert.Equal(t, []string{"v3", "v1", "v2"}, variantIDs(res.Hits))

	res = runSearch(t, eng, nil, &domain.OrderBy{Field: domain.OrderFieldPrice, Direction: domain.OrderDesc}, 0, 10)
	assert.Equal(t, []string{"v1", "v3", "v2"}, variantIDs(res.Hits))

	res = runSearch(t, eng, nil, &domain.OrderBy{Field: domain.OrderFieldProductName, Direction: domain.OrderAsc}, 0, 10)
	assert.Equal(t, []string{"v2", "v1", "v3"}, variantIDs(res.Hits))
}

func TestEngine_PaginationAndAggregations(t *testing.T) {
	eng := seed(t,
		newTestDoc("a", "v1", "X100", ptr(30.0), nil, true),
		newTestDoc("a", "v2", "X200", ptr(5.0), nil, true),
		newTestDoc("a", "v3", "X300", nil, nil, true),
		newTestDoc("a", "v4", "X400", ptr(99.5), nil, true),
	)

	res := runSearch(t, eng, nil, nil, 1, 2)
	assert.Equal(t, 4, res.TotalHits)
	assert.Equal(t, []string{"v2", "v3"}, variantIDs(res.Hits))
	require.NotNil(t, res.Aggregations[query.AggMinPrice])
	require.NotNil(t, res.Aggregations[query.AggMaxPrice])
	assert.Equal(t, 5.0, *res.Aggregations[query.AggMinPrice])
	assert.Equal(t, 99.5, *res.Aggregations[query.AggMaxPrice])
}

func TestEngine_NoMatchesHasNilAggregations(t *testing.T) {
	eng := seed(t, newTestDoc("a", "v1", "X100", ptr(1.0), nil, true))

	res := runSearch(t, eng, &domain.ProductVariantsFilter{IsDefault: ptr(false)}, nil, 0, 10)
	assert.Zero(t, res.TotalHits)
	assert.Nil(t, res.Aggregations[query.AggMinPrice])
	assert.Nil(t, res.Aggregations[query.AggMaxPrice])
}

func TestEngine_HitsRoundTripDocument(t *testing.T) {
	doc := newTestDoc("boot", "v1", "X100", ptr(12.5), ptr(4), true)
	doc.Variant.Images = []domain.Image{{Key: "k", URL: "https://img/k.jpg"}}
	eng := seed(t, doc)

	res := runSearch(t, eng, nil, nil, 0, 10)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, doc, res.Hits[0])
}
