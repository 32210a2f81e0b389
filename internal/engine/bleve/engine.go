// Package bleve implements engine.IndexEngine on embedded, memory-only bleve
// indexes. It needs no external services, which suits local development and
// single-node deployments.
package bleve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/query"
)

// Engine is a bleve-backed implementation of engine.IndexEngine.
type Engine struct {
	mu      sync.RWMutex
	indexes map[string]*index
	logger  *slog.Logger
}

var _ engine.IndexEngine = (*Engine)(nil)

type index struct {
	idx bleve.Index
	seq uint64
}

// New creates an engine with no indexes.
func New(logger *slog.Logger) *Engine {
	return &Engine{
		indexes: make(map[string]*index),
		logger:  logger,
	}
}

// IndexExists reports whether the named index exists.
func (e *Engine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.indexes[name]
	return ok, nil
}

// DeleteIndex closes and drops the named index.
func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ix, ok := e.indexes[name]
	if !ok {
		return nil
	}
	delete(e.indexes, name)
	if err := ix.idx.Close(); err != nil {
		return fmt.Errorf("bleve delete index %q: %w", name, err)
	}
	e.logger.Info("bleve index deleted", "index", name)
	return nil
}

// CreateIndex creates an empty memory-only index.
func (e *Engine) CreateIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return fmt.Errorf("bleve create index %q: already exists", name)
	}
	if _, err := e.createLocked(name); err != nil {
		return err
	}
	e.logger.Info("bleve index created", "index", name)
	return nil
}

func (e *Engine) createLocked(name string) (*index, error) {
	im, err := createIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("bleve create index %q: %w", name, err)
	}
	ix := &index{idx: idx}
	e.indexes[name] = ix
	return ix, nil
}

// BulkWrite indexes docs in one batch, creating the index if needed.
func (e *Engine) BulkWrite(_ context.Context, name string, docs []domain.Document) (*domain.BulkResponse, error) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ix, ok := e.indexes[name]
	if !ok {
		var err error
		if ix, err = e.createLocked(name); err != nil {
			return nil, err
		}
	}

	resp := &domain.BulkResponse{Items: make([]domain.BulkItem, 0, len(docs))}
	batch := ix.idx.NewBatch()
	for i := range docs {
		ix.seq++
		// Zero-padded so that doc id order is insertion order.
		id := fmt.Sprintf("%012d", ix.seq)

		item := domain.BulkItem{Operation: "index", ID: id, Status: http.StatusCreated}
		body, err := toIndexable(docs[i])
		if err == nil {
			err = batch.Index(id, body)
		}
		if err != nil {
			resp.Errors = true
			item.Status = http.StatusBadRequest
			item.Error = &domain.BulkItemError{Type: "document_parsing_exception", Reason: err.Error()}
		}
		resp.Items = append(resp.Items, item)
	}

	if err := ix.idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("bleve bulk write: %w", err)
	}

	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

// toIndexable converts a document to the generic map bleve walks, and
// attaches the encoded source for retrieval.
func toIndexable(doc domain.Document) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out[sourceField] = string(raw)
	return out, nil
}

// Count returns the number of documents in the named index.
func (e *Engine) Count(_ context.Context, name string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, ok := e.indexes[name]
	if !ok {
		return 0, fmt.Errorf("bleve count %q: %w", name, engine.ErrIndexNotFound)
	}
	n, err := ix.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve count %q: %w", name, err)
	}
	return int(n), nil
}

// Search translates and runs req. Metric aggregations are computed from the
// full matched set in a second pass.
func (e *Engine) Search(ctx context.Context, name string, req *query.Request) (*domain.RawSearchResult, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, ok := e.indexes[name]
	if !ok {
		return nil, fmt.Errorf("bleve search %q: %w", name, engine.ErrIndexNotFound)
	}

	var q query.Clause = &query.Bool{}
	if req.Query != nil {
		q = req.Query
	}
	bq, err := translate(q)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	sr := bleve.NewSearchRequestOptions(bq, max(req.Size, 0), max(req.From, 0), false)
	sr.Fields = []string{sourceField}
	sr.SortByCustom(sortOrder(req.Sort))

	res, err := ix.idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]domain.Document, 0, len(res.Hits))
	for _, h := range res.Hits {
		src, _ := h.Fields[sourceField].(string)
		var doc domain.Document
		if err := json.Unmarshal([]byte(src), &doc); err != nil {
			return nil, fmt.Errorf("bleve search: decode hit %s: %w", h.ID, err)
		}
		hits = append(hits, doc)
	}

	aggs, err := aggregate(ctx, ix.idx, bq, int(res.Total), req.Aggregations)
	if err != nil {
		return nil, err
	}

	return &domain.RawSearchResult{
		Hits:         hits,
		TotalHits:    int(res.Total),
		Aggregations: aggs,
		TookMs:       time.Since(start).Milliseconds(),
	}, nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

// Close closes every open index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, ix := range e.indexes {
		_ = ix.idx.Close()
		delete(e.indexes, name)
	}
	return nil
}

func sortOrder(keys []query.Sort) search.SortOrder {
	order := make(search.SortOrder, 0, len(keys)+1)
	for _, k := range keys {
		sf := &search.SortField{
			Field:   string(k.Field),
			Desc:    k.Order == query.Desc,
			Missing: search.SortFieldMissingLast,
			Type:    search.SortFieldAsString,
		}
		if k.Field == query.FieldVariantPrice || k.Field == query.FieldVariantStock {
			sf.Type = search.SortFieldAsNumber
		}
		order = append(order, sf)
	}
	return append(order, &search.SortDocID{})
}

// aggregate computes min/max metrics by loading the stored source of every
// matched document.
func aggregate(ctx context.Context, idx bleve.Index, q bquery.Query, total int, aggs map[string]query.Aggregation) (map[string]*float64, error) {
	out := make(map[string]*float64, len(aggs))
	for name := range aggs {
		out[name] = nil
	}
	if total == 0 || len(aggs) == 0 {
		return out, nil
	}

	sr := bleve.NewSearchRequestOptions(q, total, 0, false)
	sr.Fields = []string{sourceField}
	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("bleve aggregate: %w", err)
	}

	for _, h := range res.Hits {
		src, _ := h.Fields[sourceField].(string)
		var doc map[string]any
		if err := json.Unmarshal([]byte(src), &doc); err != nil {
			return nil, fmt.Errorf("bleve aggregate: decode hit %s: %w", h.ID, err)
		}
		for name, agg := range aggs {
			v, ok := lookupNumber(doc, string(agg.Field))
			if !ok {
				continue
			}
			cur := out[name]
			switch {
			case cur == nil:
				out[name] = &v
			case agg.Kind == query.AggMin && v < *cur:
				*cur = v
			case agg.Kind == query.AggMax && v > *cur:
				*cur = v
			}
		}
	}
	return out, nil
}
