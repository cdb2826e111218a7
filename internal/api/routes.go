// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Catalog *service.CatalogService
	Paint   *service.PaintService
	Index   *feature.Store // shared, catalog-wide search index
	Styles  []service.Style
}

// Types

type CollectionInput struct {
	Name string `path:"name" doc:"Collection name" example:"buildings" enum:"boundary,roads,parcels,buildings"`
}

type PaintOutput struct {
	Body service.PaintConfig
}

type SearchInput struct {
	Q      string `query:"q" doc:"Case-insensitive name search term" example:"lab"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int    `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
}

type FeatureBody struct {
	ID         string         `json:"id" doc:"Canonical feature id" example:"1"`
	Name       string         `json:"name" doc:"Display name" example:"Lab A"`
	Properties map[string]any `json:"properties" doc:"Feature properties"`
}

type SearchOutput struct {
	Body humastar.PageBody[FeatureBody]
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCollections registers collection and search routes.
func (h *APIHandler) RegisterCollections(api huma.API) {
	huma.Get(api, "/api/v1/collections/{name}", h.GetCollection, huma.OperationTags("collections"))
	huma.Get(api, "/api/v1/search", h.Search, huma.OperationTags("collections"))
}

// RegisterPaint registers per-collection paint routes.
func (h *APIHandler) RegisterPaint(api huma.API) {
	huma.Get(api, "/api/v1/paint", h.ListPaint, huma.OperationTags("paint"))
	huma.Get(api, "/api/v1/paint/{name}", h.GetPaint, huma.OperationTags("paint"))
	huma.Put(api, "/api/v1/paint/{name}", h.PutPaint, huma.OperationTags("paint"))
}

// RegisterStyles registers base style routes.
func (h *APIHandler) RegisterStyles(api huma.API) {
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("styles"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetCollection(ctx context.Context, input *CollectionInput) (*struct{ Body *geojson.FeatureCollection }, error) {
	c, err := feature.ParseCollection(input.Name)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	fc := geojson.NewFeatureCollection()
	if h.svc != nil && h.svc.Index != nil {
		fc = h.svc.Index.Get(c)
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	var hits []FeatureBody
	if h.svc != nil && h.svc.Index != nil {
		for _, f := range h.svc.Index.Search(input.Q) {
			hits = append(hits, newFeatureBody(f))
		}
	}
	return &SearchOutput{Body: humastar.Page(hits, input.Offset, input.Limit)}, nil
}

func newFeatureBody(f *geojson.Feature) FeatureBody {
	id, _ := feature.ID(f)
	props := map[string]any(f.Properties)
	if props == nil {
		props = map[string]any{}
	}
	return FeatureBody{ID: id, Name: feature.Name(f), Properties: props}
}

func (h *APIHandler) ListPaint(ctx context.Context, input *struct{}) (*struct {
	Body map[feature.Collection]service.PaintConfig
}, error) {
	out := map[feature.Collection]service.PaintConfig{}
	if h.svc != nil && h.svc.Paint != nil {
		out = h.svc.Paint.List()
	}
	return &struct {
		Body map[feature.Collection]service.PaintConfig
	}{Body: out}, nil
}

func (h *APIHandler) GetPaint(ctx context.Context, input *CollectionInput) (*PaintOutput, error) {
	if h.svc == nil || h.svc.Paint == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	c, err := feature.ParseCollection(input.Name)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &PaintOutput{Body: h.svc.Paint.Get(c)}, nil
}

// PutPaint replaces a collection's paint. Open map sessions repaint live.
func (h *APIHandler) PutPaint(ctx context.Context, input *struct {
	CollectionInput
	Body service.PaintConfig
}) (*PaintOutput, error) {
	if h.svc == nil || h.svc.Paint == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	c, err := feature.ParseCollection(input.Name)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	updated, err := h.svc.Paint.Update(c, input.Body)
	if err != nil {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("updating paint for %s", c), err)
	}
	if h.svc.Catalog != nil {
		h.svc.Catalog.Bus().Publish(service.CatalogEvent{Collection: c, Action: "paint"})
	}
	return &PaintOutput{Body: updated}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *struct{}) (*struct{ Body []service.Style }, error) {
	styles := []service.Style{}
	if h.svc != nil {
		styles = append(styles, h.svc.Styles...)
	}
	return &struct{ Body []service.Style }{Body: styles}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Catalog == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Catalog.List()
	if err != nil || sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}
