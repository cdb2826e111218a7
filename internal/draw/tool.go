// Package draw reconciles an embedded polygon drawing tool with the
// buildings collection in authoring mode.
package draw

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// Mode is the drawing tool's current mode.
type Mode string

const (
	ModeSimpleSelect Mode = "simple_select"
	ModeDirectSelect Mode = "direct_select"
	ModeDrawPolygon  Mode = "draw_polygon"
)

// FillLayers are the layers the browser draw tool renders polygon fills on.
var FillLayers = []string{
	"gl-draw-polygon-fill-inactive.cold",
	"gl-draw-polygon-fill-active.cold",
	"gl-draw-polygon-fill-inactive.hot",
	"gl-draw-polygon-fill-active.hot",
}

// Tool is a drawing tool the reconciler reads from.
type Tool interface {
	GetAll() *geojson.FeatureCollection
	Get(id string) (*geojson.Feature, bool)
	Mode() Mode
	FillLayers() []string
}

// ToolID returns the id the drawing tool assigned to f.
func ToolID(f *geojson.Feature) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	if id, ok := f.Properties["id"]; ok && id != nil {
		return fmt.Sprint(id)
	}
	return ""
}

// Seed copies the stored buildings for loading into the drawing tool, with
// each tool id set to the canonical id. Features without an id are left out.
func Seed(buildings *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if buildings == nil {
		return out
	}
	for _, f := range buildings.Features {
		id, ok := feature.ID(f)
		if !ok {
			continue
		}
		c := *f
		c.ID = id
		c.Properties = f.Properties.Clone()
		out.Append(&c)
	}
	return out
}

// Mirror is the server-side copy of a browser drawing tool. The browser
// sends its full feature set and mode with every draw event.
type Mirror struct {
	features *geojson.FeatureCollection
	byID     map[string]*geojson.Feature
	mode     Mode
}

// NewMirror creates an empty mirror in simple_select mode.
func NewMirror() *Mirror {
	return &Mirror{
		features: geojson.NewFeatureCollection(),
		byID:     map[string]*geojson.Feature{},
		mode:     ModeSimpleSelect,
	}
}

// Sync replaces the mirrored feature set. Features without a tool id are
// ignored.
func (m *Mirror) Sync(fc *geojson.FeatureCollection) {
	m.features = geojson.NewFeatureCollection()
	m.byID = map[string]*geojson.Feature{}
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		id := ToolID(f)
		if id == "" {
			continue
		}
		m.features.Append(f)
		m.byID[id] = f
	}
}

// SetMode records the tool's mode.
func (m *Mirror) SetMode(mode Mode) { m.mode = mode }

func (m *Mirror) GetAll() *geojson.FeatureCollection { return m.features }

func (m *Mirror) Get(id string) (*geojson.Feature, bool) {
	f, ok := m.byID[id]
	return f, ok
}

func (m *Mirror) Mode() Mode { return m.mode }

func (m *Mirror) FillLayers() []string { return FillLayers }
