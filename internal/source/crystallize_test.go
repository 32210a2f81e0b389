package source

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/pkg/httpclient"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *CrystallizeSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: 2 * time.Second, MaxConnsPerHost: 4}),
		httpclient.DefaultCircuitBreakerConfig("catalogue-api-test"),
		logger,
	)
	return NewCrystallizeSource(client, Config{BaseURL: srv.URL + "/", TreeDepth: DefaultTreeDepth}, logger)
}

const treeResponse = `{
  "data": {
    "catalogue": {
      "children": [
        {
          "id": "f1", "name": "Shoes", "path": "/shoes", "type": "folder",
          "children": [
            {
              "id": "p1", "name": "Runner", "path": "/shoes/runner", "type": "product",
              "topics": [{"id": "t1", "name": "Sport", "parentId": "t0"}],
              "variants": [
                {"id": "v1", "name": "Runner 42", "sku": "RUN-42", "price": 99.5, "stock": 3, "isDefault": true,
                 "attributes": [{"attribute": "size", "value": "42"}],
                 "images": [{"key": "k", "url": "https://img/k.jpg", "variants": [{"key": "k200", "url": "https://img/k200.jpg", "width": 200}]}]}
              ]
            }
          ]
        }
      ]
    }
  }
}`

func TestFetchTree_Success(t *testing.T) {
	var gotPath string
	var gotReq graphQLRequest
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, treeResponse)
	})

	nodes, err := src.FetchTree(context.Background(), "acme-shop", "no")
	require.NoError(t, err)

	assert.Equal(t, "/acme-shop/catalogue", gotPath)
	assert.Equal(t, "no", gotReq.Variables["language"])
	assert.Contains(t, gotReq.Query, "fragment product on Product")

	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 1)
	product := nodes[0].Children[0]
	assert.True(t, product.IsProduct())
	assert.Equal(t, "t0", product.Topics[0].ParentID)
	require.Len(t, product.Variants, 1)
	v := product.Variants[0]
	assert.Equal(t, "RUN-42", v.SKU)
	assert.Equal(t, 99.5, *v.Price)
	assert.Equal(t, 3, *v.Stock)
	assert.True(t, v.IsDefault)
	assert.Equal(t, []domain.VariantAttribute{{Attribute: "size", Value: "42"}}, v.Attributes)
	assert.Equal(t, 200, v.Images[0].Variants[0].Width)
}

func TestFetchTree_EmptyCatalogue(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"catalogue":{"children":null}}}`)
	})

	nodes, err := src.FetchTree(context.Background(), "acme", "en")
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)
}

func TestFetchTree_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "non-2xx", status: http.StatusForbidden, body: `{"message":"no access"}`, wantMsg: "403"},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, wantMsg: "500"},
		{name: "graphql errors", status: http.StatusOK, body: `{"errors":[{"message":"unknown tenant"}]}`, wantMsg: "unknown tenant"},
		{name: "missing catalogue", status: http.StatusOK, body: `{"data":{"catalogue":null}}`, wantMsg: "no catalogue"},
		{name: "missing data", status: http.StatusOK, body: `{}`, wantMsg: "no catalogue"},
		{name: "invalid json", status: http.StatusOK, body: `{"data":`, wantMsg: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := src.FetchTree(context.Background(), "acme", "en")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFetch)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFetchTree_Timeout(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.FetchTree(ctx, "acme", "en")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetchTree_InvalidTenant(t *testing.T) {
	called := false
	src := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
	})

	for _, tenant := range []string{"", "Acme", "acme/../x", "acme shop"} {
		_, err := src.FetchTree(context.Background(), tenant, "en")
		assert.ErrorIs(t, err, ErrInvalidTenant, tenant)
	}
	assert.False(t, called)
}

func TestBuildCatalogueQuery_Depth(t *testing.T) {
	q := buildCatalogueQuery(3)
	assert.Equal(t, 3, strings.Count(q, "children {"))
	assert.Equal(t, strings.Count(q, "{"), strings.Count(q, "}"))

	q = buildCatalogueQuery(0)
	assert.Equal(t, DefaultTreeDepth, strings.Count(q, "children {"))
}
