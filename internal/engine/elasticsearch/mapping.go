package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for catalogue
// documents.
const DefaultIndexName = "catalogue"

// buildIndexMapping returns the JSON settings and mapping for a catalogue
// index. Identifier and name fields are analyzed text so they accept phrase
// matches, with a keyword sub-field for exact sorting.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "max_result_window": 10000
  },
  "mappings": {
    "properties": {
      "product": {
        "properties": {
          "id":     { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
          "name":   { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
          "path":   { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 512 } } },
          "type":   { "type": "keyword" },
          "topics": {
            "properties": {
              "id":       { "type": "keyword" },
              "name":     { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
              "parentId": { "type": "keyword" }
            }
          }
        }
      },
      "variant": {
        "properties": {
          "id":         { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
          "name":       { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
          "sku":        { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
          "price":      { "type": "double" },
          "stock":      { "type": "integer" },
          "isDefault":  { "type": "boolean" },
          "attributes": {
            "properties": {
              "attribute": { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
              "value":     { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } }
            }
          },
          "images": { "type": "object", "enabled": false }
        }
      }
    }
  }
}`
}
