// Package catalogue flattens the upstream catalogue tree into indexable
// (product, variant) documents.
package catalogue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/utafrali/catalogue-search/internal/domain"
)

// ErrMalformedTree is wrapped by every StructuralError.
var ErrMalformedTree = errors.New("malformed catalogue tree")

// thumbnailWidths are the only image renditions kept in the index.
var thumbnailWidths = map[int]struct{}{200: {}, 500: {}}

// StructuralError reports a node or variant missing required fields.
type StructuralError struct {
	// Path locates the offending node, e.g. "children[2].children[0]".
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrMalformedTree, e.Path, e.Reason)
}

func (e *StructuralError) Unwrap() error {
	return ErrMalformedTree
}

type frame struct {
	nodes []domain.CatalogueNode
	path  string
	next  int
}

// Normalize walks the tree depth-first and returns one document per
// (product, variant) pair. A node's descendants are emitted before the node
// itself. Traversal uses an explicit stack, so depth is bounded only by
// memory.
func Normalize(roots []domain.CatalogueNode) ([]domain.Document, error) {
	var docs []domain.Document
	stack := []frame{{nodes: roots, path: "children"}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.next >= len(top.nodes) {
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			// All children of the parent's current node are done.
			parent := &stack[len(stack)-1]
			var err error
			docs, err = emit(docs, &parent.nodes[parent.next], nodePath(parent))
			if err != nil {
				return nil, err
			}
			parent.next++
			continue
		}

		node := &top.nodes[top.next]
		path := nodePath(top)
		if err := validateNode(node, path); err != nil {
			return nil, err
		}

		if len(node.Children) > 0 {
			stack = append(stack, frame{nodes: node.Children, path: path + ".children"})
			continue
		}

		var err error
		docs, err = emit(docs, node, path)
		if err != nil {
			return nil, err
		}
		top.next++
	}

	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

func nodePath(f *frame) string {
	return fmt.Sprintf("%s[%d]", f.path, f.next)
}

func validateNode(node *domain.CatalogueNode, path string) error {
	if strings.TrimSpace(node.ID) == "" {
		return &StructuralError{Path: path, Reason: "node id is required"}
	}
	if strings.TrimSpace(node.Type) == "" {
		return &StructuralError{Path: path, Reason: "node type is required"}
	}
	return nil
}

// emit appends the documents of a product node. Non-product nodes emit nothing.
func emit(docs []domain.Document, node *domain.CatalogueNode, path string) ([]domain.Document, error) {
	if !node.IsProduct() {
		return docs, nil
	}
	if len(node.Variants) == 0 {
		return nil, &StructuralError{Path: path, Reason: fmt.Sprintf("product %s has no variants", node.ID)}
	}

	product := domain.ProductSummary{
		ID:     node.ID,
		Name:   node.Name,
		Path:   node.Path,
		Type:   node.Type,
		Topics: node.Topics,
	}

	for i := range node.Variants {
		v := node.Variants[i]
		if strings.TrimSpace(v.ID) == "" {
			return nil, &StructuralError{Path: fmt.Sprintf("%s.variants[%d]", path, i), Reason: "variant id is required"}
		}
		if strings.TrimSpace(v.SKU) == "" {
			return nil, &StructuralError{Path: fmt.Sprintf("%s.variants[%d]", path, i), Reason: "variant sku is required"}
		}
		v.Images = ReduceImages(v.Images)
		docs = append(docs, domain.Document{Product: product, Variant: v})
	}
	return docs, nil
}

// ReduceImages keeps only the first image and, within it, only the 200 and
// 500 pixel wide renditions. It returns nil when there are no images.
func ReduceImages(images []domain.Image) []domain.Image {
	if len(images) == 0 {
		return nil
	}

	first := images[0]
	var renditions []domain.ImageVariant
	for _, rv := range first.Variants {
		if _, ok := thumbnailWidths[rv.Width]; ok {
			renditions = append(renditions, rv)
		}
	}
	first.Variants = renditions
	return []domain.Image{first}
}
