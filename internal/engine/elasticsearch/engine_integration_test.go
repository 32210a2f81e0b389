package elasticsearch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogue-search/internal/domain"
	esengine "github.com/utafrali/catalogue-search/internal/engine/elasticsearch"
	"github.com/utafrali/catalogue-search/internal/query"
)

// testLogger returns a discard logger suitable for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine creates an Elasticsearch engine and a fresh index for
// integration tests. It skips the test if ELASTICSEARCH_URL is not set.
func newTestEngine(t *testing.T) (*esengine.Engine, string) {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set, skipping Elasticsearch integration tests")
	}

	eng, err := esengine.New(esengine.Config{Addresses: []string{esURL}}, testLogger())
	require.NoError(t, err, "failed to create Elasticsearch engine")

	// Use a unique test index per test run to avoid data conflicts.
	index := fmt.Sprintf("test_catalogue_%d", time.Now().UnixNano())
	require.NoError(t, eng.CreateIndex(context.Background(), index))

	t.Cleanup(func() {
		_ = eng.DeleteIndex(context.Background(), index)
	})

	return eng, index
}

func ptr[T any](v T) *T { return &v }

func newTestDoc(product, variantID, sku string, price float64, isDefault bool, attrs ...domain.VariantAttribute) domain.Document {
	return domain.Document{
		Product: domain.ProductSummary{
			ID:     "p-" + product,
			Name:   product,
			Path:   "/shop/" + product,
			Type:   domain.NodeTypeProduct,
			Topics: []domain.Topic{{ID: "t1", Name: "Footwear"}},
		},
		Variant: domain.Variant{
			ID:         variantID,
			Name:       product + " " + variantID,
			SKU:        sku,
			Price:      &price,
			Stock:      ptr(1),
			IsDefault:  isDefault,
			Attributes: attrs,
		},
	}
}

func searchIDs(t *testing.T, eng *esengine.Engine, index string, filter *domain.ProductVariantsFilter, orderBy *domain.OrderBy) ([]string, *domain.RawSearchResult) {
	t.Helper()
	c, err := query.Compile(filter, orderBy)
	require.NoError(t, err)
	res, err := eng.Search(context.Background(), index, c.Request(0, 10))
	require.NoError(t, err)
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.Variant.ID
	}
	return ids, res
}

func TestES_Ping(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, eng.Ping(ctx))
}

func TestES_BulkWriteSearchAndCount(t *testing.T) {
	eng, index := newTestEngine(t)
	ctx := context.Background()

	docs := []domain.Document{
		newTestDoc("trail boot", "v1", "TB-1", 120, true, domain.VariantAttribute{Attribute: "color", Value: "Brown"}),
		newTestDoc("trail boot", "v2", "TB-2", 140, false, domain.VariantAttribute{Attribute: "color", Value: "Black"}),
		newTestDoc("sandal", "v3", "SA-1", 40, true, domain.VariantAttribute{Attribute: "color", Value: "Brown"}),
	}
	resp, err := eng.BulkWrite(ctx, index, docs)
	require.NoError(t, err)
	assert.False(t, resp.Errors)
	require.Len(t, resp.Items, 3)

	n, err := eng.Count(ctx, index)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, res := searchIDs(t, eng, index, &domain.ProductVariantsFilter{IsDefault: ptr(true)},
		&domain.OrderBy{Field: domain.OrderFieldPrice, Direction: domain.OrderAsc})
	assert.Equal(t, []string{"v3", "v1"}, ids)
	assert.Equal(t, 40.0, *res.Aggregations[query.AggMinPrice])
	assert.Equal(t, 120.0, *res.Aggregations[query.AggMaxPrice])

	ids, _ = searchIDs(t, eng, index, &domain.ProductVariantsFilter{SearchTerm: "trail"}, nil)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids)

	ids, _ = searchIDs(t, eng, index, &domain.ProductVariantsFilter{
		Attributes: []domain.AttributeFilter{{Attribute: "color", Values: []string{"Brown"}}},
		Exclude:    &domain.FilterFields{SKUs: []string{"SA-1"}},
	}, nil)
	assert.Equal(t, []string{"v1"}, ids)

	ids, _ = searchIDs(t, eng, index, nil,
		&domain.OrderBy{Field: domain.OrderFieldProductName, Direction: domain.OrderDesc})
	require.Len(t, ids, 3)
	assert.NotEqual(t, "v3", ids[0])
}

func TestES_IndexExistsAndDelete(t *testing.T) {
	eng, index := newTestEngine(t)
	ctx := context.Background()

	ok, err := eng.IndexExists(ctx, index)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, eng.DeleteIndex(ctx, index))

	ok, err = eng.IndexExists(ctx, index)
	require.NoError(t, err)
	assert.False(t, ok)
}
