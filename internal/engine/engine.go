package engine

import (
	"context"
	"errors"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/query"
)

// ErrIndexNotFound is returned when an operation targets an index that does
// not exist.
var ErrIndexNotFound = errors.New("index not found")

// ErrUnreachable is wrapped by transport failures talking to the engine.
var ErrUnreachable = errors.New("index engine unreachable")

// IndexEngine is the full-text index the catalogue is written to and searched
// in. Implementations may use Elasticsearch, bleve, or plain memory.
type IndexEngine interface {
	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, index string) (bool, error)

	// DeleteIndex removes the named index. A missing index is not an error.
	DeleteIndex(ctx context.Context, index string) error

	// CreateIndex creates the named index with the document mapping.
	CreateIndex(ctx context.Context, index string) error

	// BulkWrite indexes docs and reports one item per document, in order.
	// Written documents are visible to Search and Count once it returns.
	BulkWrite(ctx context.Context, index string, docs []domain.Document) (*domain.BulkResponse, error)

	// Count returns the number of documents in the named index.
	Count(ctx context.Context, index string) (int, error)

	// Search runs a compiled request against the named index.
	Search(ctx context.Context, index string, req *query.Request) (*domain.RawSearchResult, error)

	// Ping checks whether the engine is reachable.
	Ping(ctx context.Context) error
}
