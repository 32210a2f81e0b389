package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine/memory"
)

const testIndex = "catalogue_test"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func price(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

// fakeSource serves a fixed tree or a fixed error.
type fakeSource struct {
	mu    sync.Mutex
	tree  []domain.CatalogueNode
	err   error
	calls int

	// block, when set, is waited on before returning.
	block chan struct{}
}

func (f *fakeSource) FetchTree(ctx context.Context, _, _ string) ([]domain.CatalogueNode, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tree, nil
}

// rejectingEngine wraps the memory engine and rejects the documents whose
// SKU is listed in reject. Rejected documents are not written, the others
// in the same batch are.
type rejectingEngine struct {
	*memory.Engine
	reject    map[string]bool
	mu        sync.Mutex
	bulkCalls int
	bulkSizes []int
	bulkErr   error
}

func newRejectingEngine(skus ...string) *rejectingEngine {
	reject := make(map[string]bool, len(skus))
	for _, s := range skus {
		reject[s] = true
	}
	return &rejectingEngine{Engine: memory.New(), reject: reject}
}

func (e *rejectingEngine) BulkWrite(ctx context.Context, index string, docs []domain.Document) (*domain.BulkResponse, error) {
	e.mu.Lock()
	e.bulkCalls++
	e.bulkSizes = append(e.bulkSizes, len(docs))
	e.mu.Unlock()

	if e.bulkErr != nil {
		return nil, e.bulkErr
	}

	accepted := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if !e.reject[d.Variant.SKU] {
			accepted = append(accepted, d)
		}
	}
	written, err := e.Engine.BulkWrite(ctx, index, accepted)
	if err != nil {
		return nil, err
	}

	resp := &domain.BulkResponse{Items: make([]domain.BulkItem, 0, len(docs)), TookMs: written.TookMs}
	next := 0
	for _, d := range docs {
		if !e.reject[d.Variant.SKU] {
			resp.Items = append(resp.Items, written.Items[next])
			next++
			continue
		}
		resp.Errors = true
		resp.Items = append(resp.Items, domain.BulkItem{
			Operation: "index",
			Status:    http.StatusBadRequest,
			Error: &domain.BulkItemError{
				Type:   "mapper_parsing_exception",
				Reason: "failed to parse field [variant.price]",
			},
		})
	}
	return resp, nil
}

// recordingPublisher keeps every published run.
type recordingPublisher struct {
	mu   sync.Mutex
	runs []*domain.ReindexResult
	err  error
}

func (p *recordingPublisher) PublishReindexed(_ context.Context, run *domain.ReindexResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return p.err
}

func (p *recordingPublisher) published() []*domain.ReindexResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.ReindexResult(nil), p.runs...)
}

// flatCatalogue returns one folder holding n single-variant products with
// SKUs sku-1 … sku-n.
func flatCatalogue(n int) []domain.CatalogueNode {
	products := make([]domain.CatalogueNode, 0, n)
	for i := 1; i <= n; i++ {
		products = append(products, domain.CatalogueNode{
			ID:   fmt.Sprintf("p%d", i),
			Name: fmt.Sprintf("Product %d", i),
			Path: fmt.Sprintf("/shop/p%d", i),
			Type: domain.NodeTypeProduct,
			Variants: []domain.Variant{{
				ID:        fmt.Sprintf("v%d", i),
				Name:      fmt.Sprintf("Variant %d", i),
				SKU:       fmt.Sprintf("sku-%d", i),
				Price:     price(float64(i)),
				Stock:     intPtr(i),
				IsDefault: true,
			}},
		})
	}
	return []domain.CatalogueNode{{
		ID:       "shop",
		Name:     "Shop",
		Path:     "/shop",
		Type:     domain.NodeTypeItem,
		Children: products,
	}}
}

// bikeCatalogue is one category holding one product with a default and a
// non-default variant.
func bikeCatalogue() []domain.CatalogueNode {
	return []domain.CatalogueNode{{
		ID:   "bikes",
		Name: "Bikes",
		Path: "/bikes",
		Type: domain.NodeTypeItem,
		Children: []domain.CatalogueNode{{
			ID:     "roadster",
			Name:   "Roadster",
			Path:   "/bikes/roadster",
			Type:   domain.NodeTypeProduct,
			Topics: []domain.Topic{{ID: "t1", Name: "Outdoor"}},
			Variants: []domain.Variant{
				{
					ID:        "roadster-red",
					Name:      "Roadster Red",
					SKU:       "roadster-red",
					Price:     price(499),
					Stock:     intPtr(3),
					IsDefault: true,
					Attributes: []domain.VariantAttribute{
						{Attribute: "color", Value: "red"},
					},
				},
				{
					ID:    "roadster-blue",
					Name:  "Roadster Blue",
					SKU:   "roadster-blue",
					Price: price(549),
					Stock: intPtr(0),
					Attributes: []domain.VariantAttribute{
						{Attribute: "color", Value: "blue"},
					},
				},
			},
		}},
	}}
}
