package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/query"
)

// Engine is an in-memory implementation of engine.IndexEngine. It evaluates
// compiled queries over flattened documents with Elasticsearch-like
// semantics. Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

var _ engine.IndexEngine = (*Engine)(nil)

type index struct {
	docs []stored
}

type stored struct {
	id     string
	doc    domain.Document
	fields fields
}

// New creates a new in-memory engine with no indexes.
func New() *Engine {
	return &Engine{
		indexes: make(map[string]*index),
	}
}

// IndexExists reports whether the named index exists.
func (e *Engine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.indexes[name]
	return ok, nil
}

// DeleteIndex removes the named index and all its documents.
func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.indexes, name)
	return nil
}

// CreateIndex creates an empty index.
func (e *Engine) CreateIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return fmt.Errorf("memory create index %q: already exists", name)
	}
	e.indexes[name] = &index{}
	return nil
}

// BulkWrite appends docs to the named index, creating it if needed. Every
// document gets a generated id.
func (e *Engine) BulkWrite(_ context.Context, name string, docs []domain.Document) (*domain.BulkResponse, error) {
	start := time.Now()

	prepared := make([]stored, 0, len(docs))
	for i := range docs {
		f, err := flatten(docs[i])
		if err != nil {
			return nil, fmt.Errorf("memory bulk write: document %d: %w", i, err)
		}
		prepared = append(prepared, stored{id: uuid.NewString(), doc: docs[i], fields: f})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indexes[name]
	if !ok {
		idx = &index{}
		e.indexes[name] = idx
	}
	idx.docs = append(idx.docs, prepared...)

	items := make([]domain.BulkItem, len(prepared))
	for i, s := range prepared {
		items[i] = domain.BulkItem{Operation: "index", ID: s.id, Status: http.StatusCreated}
	}
	return &domain.BulkResponse{
		Items:  items,
		TookMs: time.Since(start).Milliseconds(),
	}, nil
}

// Count returns the number of documents in the named index.
func (e *Engine) Count(_ context.Context, name string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, ok := e.indexes[name]
	if !ok {
		return 0, fmt.Errorf("memory count %q: %w", name, engine.ErrIndexNotFound)
	}
	return len(idx.docs), nil
}

// Search evaluates req against the named index.
func (e *Engine) Search(_ context.Context, name string, req *query.Request) (*domain.RawSearchResult, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, ok := e.indexes[name]
	if !ok {
		return nil, fmt.Errorf("memory search %q: %w", name, engine.ErrIndexNotFound)
	}

	matched := make([]stored, 0)
	for _, s := range idx.docs {
		if req.Query == nil || matches(req.Query, s.fields) {
			matched = append(matched, s)
		}
	}

	sortMatches(matched, req.Sort)

	aggs := make(map[string]*float64, len(req.Aggregations))
	for aggName, agg := range req.Aggregations {
		aggs[aggName] = aggregate(matched, agg)
	}

	total := len(matched)
	from := min(max(req.From, 0), total)
	end := min(from+max(req.Size, 0), total)

	hits := make([]domain.Document, 0, end-from)
	for _, s := range matched[from:end] {
		hits = append(hits, s.doc)
	}

	return &domain.RawSearchResult{
		Hits:         hits,
		TotalHits:    total,
		Aggregations: aggs,
		TookMs:       time.Since(start).Milliseconds(),
	}, nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

func aggregate(matched []stored, agg query.Aggregation) *float64 {
	var out *float64
	for _, s := range matched {
		for _, n := range s.fields.numbers(agg.Field) {
			switch {
			case out == nil:
				v := n
				out = &v
			case agg.Kind == query.AggMin && n < *out:
				*out = n
			case agg.Kind == query.AggMax && n > *out:
				*out = n
			}
		}
	}
	return out
}

// fields maps a dotted path to every leaf value found under it. Arrays of
// objects are flattened, so "variant.attributes.value" holds the values of
// all attributes.
type fields map[string][]any

func flatten(doc domain.Document) (fields, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := fields{}
	walk(out, "", tree)
	return out, nil
}

func walk(out fields, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			walk(out, path, child)
		}
	case []any:
		for _, child := range t {
			walk(out, prefix, child)
		}
	case nil:
	default:
		out[prefix] = append(out[prefix], t)
	}
}

func (f fields) numbers(field query.Field) []float64 {
	var out []float64
	for _, v := range f[string(field)] {
		if n, ok := v.(float64); ok {
			out = append(out, n)
		}
	}
	return out
}

func (f fields) strings(field query.Field) []string {
	var out []string
	for _, v := range f[string(field)] {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
