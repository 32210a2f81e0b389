package bleve

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// sourceField holds the JSON-encoded document returned on hits.
const sourceField = "source"

// textAnalyzerName is a lowercase unicode analyzer without stop words, the
// same token stream the Elasticsearch standard analyzer produces.
const textAnalyzerName = "catalogue_text"

// createIndexMapping builds the static mapping for catalogue documents. Field
// paths line up with the Elasticsearch mapping so compiled queries address
// the same names.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	product := bleve.NewDocumentStaticMapping()
	product.AddFieldMappingsAt("id", textField())
	product.AddFieldMappingsAt("name", textField(), keywordField("name.keyword"))
	product.AddFieldMappingsAt("path", textField())
	product.AddFieldMappingsAt("type", keywordField(""))

	topics := bleve.NewDocumentStaticMapping()
	topics.AddFieldMappingsAt("name", textField())
	product.AddSubDocumentMapping("topics", topics)

	attributes := bleve.NewDocumentStaticMapping()
	attributes.AddFieldMappingsAt("attribute", textField())
	attributes.AddFieldMappingsAt("value", textField())

	variant := bleve.NewDocumentStaticMapping()
	variant.AddFieldMappingsAt("id", textField())
	variant.AddFieldMappingsAt("name", textField())
	variant.AddFieldMappingsAt("sku", textField())
	variant.AddFieldMappingsAt("price", bleve.NewNumericFieldMapping())
	variant.AddFieldMappingsAt("stock", bleve.NewNumericFieldMapping())
	variant.AddFieldMappingsAt("isDefault", bleve.NewBooleanFieldMapping())
	variant.AddSubDocumentMapping("attributes", attributes)
	variant.AddSubDocumentMapping("images", bleve.NewDocumentDisabledMapping())

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.DocValues = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddSubDocumentMapping("product", product)
	doc.AddSubDocumentMapping("variant", variant)
	doc.AddFieldMappingsAt(sourceField, source)

	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = textAnalyzerName
	im.DefaultMapping = doc
	im.IndexDynamic = false
	im.StoreDynamic = false
	return im, nil
}

func textField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = textAnalyzerName
	f.Store = false
	return f
}

func keywordField(name string) *mapping.FieldMapping {
	f := bleve.NewKeywordFieldMapping()
	f.Name = name
	f.Store = false
	return f
}
