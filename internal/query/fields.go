package query

import (
	"fmt"

	"github.com/utafrali/catalogue-search/internal/domain"
)

// Field is a document field path in the index.
type Field string

// Indexed document fields.
const (
	FieldProductID          Field = "product.id"
	FieldProductName        Field = "product.name"
	FieldProductNameKeyword Field = "product.name.keyword"
	FieldProductPath        Field = "product.path"
	FieldTopicName          Field = "product.topics.name"

	FieldVariantID        Field = "variant.id"
	FieldVariantName      Field = "variant.name"
	FieldVariantSKU       Field = "variant.sku"
	FieldVariantPrice     Field = "variant.price"
	FieldVariantStock     Field = "variant.stock"
	FieldVariantIsDefault Field = "variant.isDefault"
	FieldAttributeName    Field = "variant.attributes.attribute"
	FieldAttributeValue   Field = "variant.attributes.value"
)

// SearchTermFields are the fields a free-text search term is matched against.
var SearchTermFields = []Field{
	FieldVariantName,
	FieldVariantSKU,
	FieldProductName,
	FieldProductPath,
	FieldTopicName,
}

// sortField maps a sort key to its index field. Product names sort on the
// untokenized keyword form.
func sortField(f domain.OrderField) (Field, error) {
	switch f {
	case domain.OrderFieldProductName:
		return FieldProductNameKeyword, nil
	case domain.OrderFieldPrice:
		return FieldVariantPrice, nil
	case domain.OrderFieldStock:
		return FieldVariantStock, nil
	default:
		return "", fmt.Errorf("%w: unknown order field %q", ErrInvalidQuery, f)
	}
}

func sortOrder(d domain.OrderDirection) (string, error) {
	switch d {
	case domain.OrderAsc:
		return Asc, nil
	case domain.OrderDesc:
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: unknown order direction %q", ErrInvalidQuery, d)
	}
}

type fieldValues struct {
	field  Field
	values []string
}

// identifierFields lists the include/exclude sets in a fixed order.
func identifierFields(ff *domain.FilterFields) []fieldValues {
	return []fieldValues{
		{FieldProductID, ff.ProductIDs},
		{FieldVariantID, ff.VariantIDs},
		{FieldVariantSKU, ff.SKUs},
		{FieldProductPath, ff.Paths},
		{FieldTopicName, ff.TopicNames},
	}
}
