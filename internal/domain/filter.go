package domain

// ProductVariantsFilter narrows the set of indexed documents a search
// considers. All fields are optional.
type ProductVariantsFilter struct {
	SearchTerm string            `json:"searchTerm,omitempty"`
	IsDefault  *bool             `json:"isDefault,omitempty"`
	PriceRange *PriceRangeFilter `json:"priceRange,omitempty"`
	Attributes []AttributeFilter `json:"attributes,omitempty" validate:"omitempty,dive"`
	Include    *FilterFields     `json:"include,omitempty"`
	Exclude    *FilterFields     `json:"exclude,omitempty"`
}

// PriceRangeFilter bounds the variant price. A missing Min means 0 and a
// missing Max means unbounded.
type PriceRangeFilter struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// AttributeFilter requires a variant attribute named Attribute whose value is
// any of Values.
type AttributeFilter struct {
	Attribute string   `json:"attribute" validate:"required"`
	Values    []string `json:"values" validate:"required,min=1"`
}

// FilterFields lists exact values to match. Each non-empty list is an
// OR-set; the lists are ANDed together.
type FilterFields struct {
	ProductIDs []string `json:"productIds,omitempty"`
	VariantIDs []string `json:"variantIds,omitempty"`
	SKUs       []string `json:"skus,omitempty"`
	Paths      []string `json:"paths,omitempty"`
	TopicNames []string `json:"topicNames,omitempty"`
}

// OrderField enumerates the sortable fields.
type OrderField string

const (
	OrderFieldProductName OrderField = "PRODUCT_NAME"
	OrderFieldPrice       OrderField = "PRICE"
	OrderFieldStock       OrderField = "STOCK"
)

// OrderDirection enumerates sort directions.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// OrderBy is a single sort key.
type OrderBy struct {
	Field     OrderField     `json:"field" validate:"required"`
	Direction OrderDirection `json:"direction" validate:"required"`
}

// Pagination defaults and limits.
const (
	DefaultPageSize = 10
	// MaxResultWindow is the deepest offset+size the index engine serves.
	MaxResultWindow = 10000
)

// SearchRequest is the query operation input. After is an offset, First a
// page size.
type SearchRequest struct {
	After   int                    `json:"after" validate:"gte=0"`
	First   *int                   `json:"first,omitempty" validate:"omitempty,gte=0"`
	Filter  *ProductVariantsFilter `json:"filter,omitempty"`
	OrderBy *OrderBy               `json:"orderBy,omitempty"`
}

// PageSize returns First or the default page size when First is unset.
func (r *SearchRequest) PageSize() int {
	if r.First == nil {
		return DefaultPageSize
	}
	return *r.First
}

// PriceRange is the min/max price envelope of a matched set.
type PriceRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// ProductVariantsAggregation holds aggregations over the matched set.
type ProductVariantsAggregation struct {
	PriceRange PriceRange `json:"priceRange"`
}

// ProductVariantsConnection is the paginated, aggregated search result.
//
// TotalCount is the number of documents in this page, not the number of
// matches across all pages. TotalHits carries the latter.
type ProductVariantsConnection struct {
	ProductVariants []Document                  `json:"productVariants"`
	TotalCount      int                         `json:"totalCount"`
	TotalHits       int                         `json:"totalHits"`
	Aggregations    *ProductVariantsAggregation `json:"aggregations"`
}
