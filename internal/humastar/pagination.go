// pagination.go: HATEOAS pagination via RFC 8288 Link headers.
//
// Response bodies implement the Pager interface to emit next/prev/first/last
// Link headers.
package humastar

import "fmt"

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page cuts the page at offset from items. A non-positive limit means 20.
func Page[T any](items []T, offset, limit int) PageBody[T] {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	end := min(offset+limit, len(items))
	data := []T{}
	if offset < len(items) {
		data = items[offset:end]
	}
	return PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: data}
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
// basePath may already carry a query string.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	var links []string
	sep := "?"
	for _, c := range basePath {
		if c == '?' {
			sep = "&"
			break
		}
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s%soffset=%d&limit=%d>; rel="%s"`, basePath, sep, offset, p.Limit, rel)
	}

	links = append(links, link(0, "first"))

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, link(prev, "prev"))
	}

	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}

	lastOffset := 0
	if p.Limit > 0 && p.Total > 0 {
		lastOffset = ((p.Total - 1) / p.Limit) * p.Limit
	}
	links = append(links, link(lastOffset, "last"))

	return links
}
