package source

import "strings"

// DefaultTreeDepth is how many levels of children the catalogue query asks
// for.
const DefaultTreeDepth = 5

const fragments = `
fragment item on Item {
  id
  name
  path
  type
  topics {
    id
    name
    parentId
  }
}

fragment product on Product {
  variants {
    id
    name
    sku
    price
    stock
    isDefault
    attributes {
      attribute
      value
    }
    images {
      key
      url
      variants {
        key
        url
        width
      }
    }
  }
}
`

// buildCatalogueQuery returns the GraphQL query for the catalogue tree,
// nesting children depth levels below the root.
func buildCatalogueQuery(depth int) string {
	if depth < 1 {
		depth = DefaultTreeDepth
	}

	var b strings.Builder
	b.WriteString("query($language: String!) {\n")
	b.WriteString("  catalogue(path: \"/\", language: $language) {\n")
	for level := 0; level < depth; level++ {
		indent := strings.Repeat("  ", level+2)
		b.WriteString(indent + "children {\n")
		b.WriteString(indent + "  ...item\n")
		b.WriteString(indent + "  ...product\n")
	}
	for level := depth - 1; level >= 0; level-- {
		b.WriteString(strings.Repeat("  ", level+2) + "}\n")
	}
	b.WriteString("  }\n}\n")
	b.WriteString(fragments)
	return b.String()
}
