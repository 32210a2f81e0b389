package domain

// Document is the flattened (product, variant) record stored in the search
// index. It is the only contract shared by the indexing and query pipelines.
type Document struct {
	Product ProductSummary `json:"product"`
	Variant Variant        `json:"variant"`
}

// ProductSummary holds a product's own fields with the tree structure and
// sibling variants stripped.
type ProductSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	Type   string  `json:"type"`
	Topics []Topic `json:"topics,omitempty"`
}

// BulkAction is the action line that precedes each document in a bulk write.
type BulkAction struct {
	Index BulkActionMeta `json:"index"`
}

// BulkActionMeta names the target of a bulk index action.
type BulkActionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

// BulkItemError is the per-document error reported by the index engine.
type BulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkItem is the outcome of one operation of a bulk write. Items are
// reported in the same order as the submitted documents.
type BulkItem struct {
	Operation string         `json:"operation"`
	ID        string         `json:"id,omitempty"`
	Status    int            `json:"status"`
	Error     *BulkItemError `json:"error,omitempty"`
}

// Failed reports whether the engine rejected this operation.
func (i BulkItem) Failed() bool {
	return i.Error != nil
}

// BulkResponse is the result of a bulk write.
type BulkResponse struct {
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"items"`
	TookMs int64      `json:"tookMs"`
}

// RawSearchResult is the engine's answer to a compiled search request, before
// it is reshaped for callers.
type RawSearchResult struct {
	Hits      []Document
	TotalHits int
	// Aggregations holds single-value metric aggregations by name. A nil
	// value means the engine had no value to report (e.g. no prices).
	Aggregations map[string]*float64
	TookMs       int64
}
