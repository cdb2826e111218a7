package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/search>; rel="search"`,
		`</api/v1/styles>; rel="styles"`,
		`</api/v1/sources>; rel="sources"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/tables>; rel="tables"`,
	},
	"/api/v1/collections/{name}": {
		`</api/v1/search>; rel="search"`,
		`</api/v1/sources>; rel="sources"`,
	},
	"/api/v1/paint": {
		`</api/v1/styles>; rel="styles"`,
	},
	"/api/v1/paint/{name}": {
		`</api/v1/paint>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/paint>; rel="paint"`,
		`</api/v1/search>; rel="search"`,
	},
	"/api/v1/styles": {
		`</api/v1/paint>; rel="paint"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers: static navigation, a self link on item endpoints, pagination for
// [humastar.Pager] bodies and actions for [humastar.Actor] bodies.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(pageBase(ctx)) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(humastar.Actor); ok {
			for _, link := range humastar.LinkHeaders(a) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}

// pageBase is the request URL without its paging parameters.
func pageBase(ctx huma.Context) string {
	u := ctx.URL()
	q := u.Query()
	q.Del("offset")
	q.Del("limit")
	if enc := q.Encode(); enc != "" {
		return u.Path + "?" + enc
	}
	return u.Path
}
