// Package reconcile keeps the campus sources and layers present on a render
// surface across style changes.
package reconcile

import (
	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/surface"
)

// Source is a required surface source.
type Source struct {
	ID         string
	Collection feature.Collection
}

// Layer is a required surface layer.
type Layer struct {
	ID         string
	Collection feature.Collection
	Type       surface.LayerType
	Clickable  bool
}

// Sources lists the required sources; sources precede every layer.
var Sources = []Source{
	{ID: "campus-boundary", Collection: feature.Boundary},
	{ID: "campus-roads", Collection: feature.Roads},
	{ID: "campus-parcels", Collection: feature.Parcels},
	{ID: "campus-buildings", Collection: feature.Buildings},
}

// Layers lists the required layers bottom to top. Fills sit below their
// outlines, and every collection sits above the ones listed before it.
var Layers = []Layer{
	{ID: "boundary-fill", Collection: feature.Boundary, Type: surface.LayerFill},
	{ID: "boundary-outline", Collection: feature.Boundary, Type: surface.LayerLine},
	{ID: "roads-line", Collection: feature.Roads, Type: surface.LayerLine},
	{ID: "parcels-fill", Collection: feature.Parcels, Type: surface.LayerFill, Clickable: true},
	{ID: "parcels-outline", Collection: feature.Parcels, Type: surface.LayerLine},
	{ID: "buildings-fill", Collection: feature.Buildings, Type: surface.LayerFill, Clickable: true},
	{ID: "buildings-outline", Collection: feature.Buildings, Type: surface.LayerLine},
}

// SourceID returns the surface source id for a collection.
func SourceID(c feature.Collection) string {
	for _, s := range Sources {
		if s.Collection == c {
			return s.ID
		}
	}
	return ""
}

// ClickableLayers returns the ids of layers that raise selection.
func ClickableLayers() []string {
	var ids []string
	for _, l := range Layers {
		if l.Clickable {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// LayerFor returns the layer with id.
func LayerFor(id string) (Layer, bool) {
	for _, l := range Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Spec builds the surface layer spec with paint p.
func (l Layer) Spec(p service.PaintConfig) surface.LayerSpec {
	spec := surface.LayerSpec{
		ID:     l.ID,
		Type:   l.Type,
		Source: SourceID(l.Collection),
	}
	switch l.Type {
	case surface.LayerFill:
		spec.Paint = map[string]any{
			"fill-color":   p.Fill,
			"fill-opacity": p.Opacity,
		}
	case surface.LayerLine:
		spec.Paint = map[string]any{
			"line-color": p.Stroke,
			"line-width": p.Width,
		}
	}
	return spec
}
