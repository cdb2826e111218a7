package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/logger"
	"github.com/joeblew999/plat-campus/internal/mapsession"
	"github.com/joeblew999/plat-campus/internal/selection"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/templates"
)

func campus(names ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, name := range names {
		x := float64(i * 2)
		f := geojson.NewFeature(orb.Polygon{orb.Ring{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}})
		f.Properties["id"] = i + 1
		f.Properties["name"] = name
		fc.Append(f)
	}
	return fc
}

type fixture struct {
	api      humatest.TestAPI
	services *Services
	registry *mapsession.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sources"), 0755))
	data, err := campus("Lab A", "Lab B", "Library").MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources", service.FileName(feature.Buildings)), data, 0644))

	log := logger.Discard()
	catalog := service.NewCatalogService(dir, nil, nil, log)
	snap, err := catalog.Load(context.Background())
	require.NoError(t, err)

	index := feature.NewStore(log)
	require.Empty(t, index.Load(snap))

	svc := &Services{
		Catalog: catalog,
		Paint:   service.NewPaintService(dir),
		Index:   index,
		Styles:  []service.Style{{ID: "default", Name: "Default", URI: "style://a"}},
	}
	registry := mapsession.NewRegistry(mapsession.Deps{Catalog: catalog, Paint: svc.Paint, Log: log}, time.Minute)
	t.Cleanup(registry.Close)

	renderer, err := templates.New()
	require.NoError(t, err)

	_, api := humatest.New(t, func() huma.Config {
		cfg := huma.DefaultConfig("test", "1.0.0")
		cfg.CreateHooks = nil
		cfg.Transformers = append(cfg.Transformers, LinkTransformer())
		return cfg
	}())
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(dir, false, index, registry).RegisterRoutes(api)
	NewDBHandler(nil).RegisterRoutes(api)
	NewMapHandler(registry, renderer, log).RegisterRoutes(api)

	return &fixture{api: api, services: svc, registry: registry}
}

func TestHealthLinks(t *testing.T) {
	f := newFixture(t)
	resp := f.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/search>; rel="search"`)
}

func TestSearchPaginates(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/api/v1/search?q=LAB&limit=1")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Total int           `json:"total"`
		Data  []FeatureBody `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "1", body.Data[0].ID)
	assert.Equal(t, "Lab A", body.Data[0].Name)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/search?q=LAB&offset=1&limit=1>; rel="next"`)
}

func TestCollection(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/api/v1/collections/buildings")
	require.Equal(t, http.StatusOK, resp.Code)
	fc, err := geojson.UnmarshalFeatureCollection(resp.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)

	resp = f.api.Get("/api/v1/collections/rivers")
	assert.GreaterOrEqual(t, resp.Code, 400)
}

func TestPutPaintPublishes(t *testing.T) {
	f := newFixture(t)
	events, off := f.services.Catalog.Bus().Subscribe()
	defer off()

	resp := f.api.Put("/api/v1/paint/parcels", map[string]any{"fill": "#ff0000", "opacity": 0.4})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "#ff0000", f.services.Paint.Get(feature.Parcels).Fill)

	select {
	case e := <-events:
		assert.Equal(t, service.CatalogEvent{Collection: feature.Parcels, Action: "paint"}, e)
	case <-time.After(time.Second):
		t.Fatal("no paint event")
	}
}

func TestInfoAndTables(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	var info InfoBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	assert.Equal(t, 3, info.Collections["buildings"])
	assert.False(t, info.DB)

	assert.Equal(t, http.StatusServiceUnavailable, f.api.Get("/api/v1/tables").Code)
}

func TestMapSessionRoutes(t *testing.T) {
	f := newFixture(t)
	s, err := f.registry.Create(mapsession.Config{Style: "style://a", Selection: selection.DefaultOptions()})
	require.NoError(t, err)
	base := "/api/v1/map/" + s.ID

	resp := f.api.Post(base+"/search", map[string]any{"term": "Lab"})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = f.api.Post(base + "/select/2")
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())
	assert.Equal(t, http.StatusNotFound, f.api.Post(base+"/select/99").Code)

	resp = f.api.Get(base)
	require.Equal(t, http.StatusOK, resp.Code)
	var state MapStateBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &state))
	assert.Equal(t, "Lab", state.Term)
	assert.Equal(t, "2", state.Selected)
	assert.False(t, state.Authoring)
	links := strings.Join(resp.Header().Values("Link"), "\n")
	assert.Contains(t, links, `rel="clear"`)
	assert.NotContains(t, links, `rel="save"`)

	assert.Equal(t, http.StatusBadRequest, f.api.Post(base+"/save").Code)
	assert.Equal(t, http.StatusBadRequest, f.api.Post(base+"/draw", map[string]any{"mode": "simple_select"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.api.Post(base+"/style", map[string]any{}).Code)

	assert.Equal(t, http.StatusNoContent, f.api.Post(base+"/clear").Code)

	assert.Equal(t, http.StatusNoContent, f.api.Delete(base).Code)
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, http.StatusNotFound, f.api.Post(base+"/clear").Code)
}

func TestMapSessionClick(t *testing.T) {
	f := newFixture(t)
	s, err := f.registry.Create(mapsession.Config{Style: "style://a", Selection: selection.DefaultOptions()})
	require.NoError(t, err)
	base := "/api/v1/map/" + s.ID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Connected(ctx))
	resp := f.api.Post(base+"/style-loaded", map[string]any{"style": "style://a"})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = f.api.Post(base+"/click", map[string]any{
		"x": 10, "y": 20,
		"hits": []map[string]any{{"id": "3", "layer": "buildings-fill", "properties": map[string]any{"name": "stale"}}},
	})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "Library", snap.Selected.Properties["name"])
}

func TestMapSessionStyleLoadedResync(t *testing.T) {
	f := newFixture(t)
	s, err := f.registry.Create(mapsession.Config{Style: "style://a", Selection: selection.DefaultOptions()})
	require.NoError(t, err)
	base := "/api/v1/map/" + s.ID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Equal(t, http.StatusNoContent, f.api.Post(base+"/style-loaded", map[string]any{"style": "style://a"}).Code)
	require.NoError(t, s.Connected(ctx))
	require.NoError(t, s.Connected(ctx))

	resp := f.api.Post(base+"/style-loaded", map[string]any{
		"style":   "style://a",
		"resync":  true,
		"sources": []string{"campus-buildings"},
		"layers":  []string{"background"},
	})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.ListenersBound)
	assert.Equal(t, 2, snap.Passes)

	resp = f.api.Post(base+"/style-loaded", map[string]any{"style": "style://a", "resync": true, "sources": "campus-buildings"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
