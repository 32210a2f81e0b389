package domain

// Node types returned by the upstream catalogue. Anything that is not a
// product is traversed for descendants but never indexed.
const (
	NodeTypeItem    = "item"
	NodeTypeProduct = "product"
)

// CatalogueNode is one node of the hierarchical catalogue tree returned by the
// upstream content source.
type CatalogueNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Type     string          `json:"type"`
	Topics   []Topic         `json:"topics,omitempty"`
	Children []CatalogueNode `json:"children,omitempty"`

	// Variants is only populated for product nodes.
	Variants []Variant `json:"variants,omitempty"`
}

// IsProduct reports whether the node should produce indexed documents.
func (n *CatalogueNode) IsProduct() bool {
	return n.Type == NodeTypeProduct
}

// Topic is a classification label attached to a catalogue node.
type Topic struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Variant is a purchasable variation of a product.
type Variant struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	SKU        string             `json:"sku"`
	Price      *float64           `json:"price"`
	Stock      *int               `json:"stock"`
	IsDefault  bool               `json:"isDefault"`
	Attributes []VariantAttribute `json:"attributes"`
	Images     []Image            `json:"images,omitempty"`
}

// VariantAttribute is one entry of a variant's attribute multimap.
type VariantAttribute struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// Image is an uploaded image together with its generated renditions.
type Image struct {
	Key      string         `json:"key"`
	URL      string         `json:"url"`
	Variants []ImageVariant `json:"variants,omitempty"`
}

// ImageVariant is a single size rendition of an Image.
type ImageVariant struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Width int    `json:"width"`
}
