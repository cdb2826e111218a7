// Package surface wraps a mutable map rendering engine behind a small,
// idempotent capability set.
//
// An Engine is the raw external surface: it rejects duplicate ids, and a
// style change discards every source, layer and (depending on the engine)
// layer event binding. Adapter smooths that into operations that are safe
// to call unconditionally.
package surface

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ScreenPoint is a pixel position on the rendered map.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Padding reserves screen space on each side when moving the camera.
type Padding struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// FlyToOptions tunes a camera flight.
type FlyToOptions struct {
	Zoom       float64 `json:"zoom,omitempty"`
	Padding    Padding `json:"padding"`
	DurationMS int     `json:"duration,omitempty"`
}

// LayerType is the render type of a layer.
type LayerType string

const (
	LayerFill LayerType = "fill"
	LayerLine LayerType = "line"
)

// LayerSpec describes a style layer. BeforeID, when set, inserts the layer
// below the named layer instead of on top.
type LayerSpec struct {
	ID       string         `json:"id"`
	Type     LayerType      `json:"type"`
	Source   string         `json:"source"`
	Paint    map[string]any `json:"paint,omitempty"`
	BeforeID string         `json:"beforeId,omitempty"`
}

// RenderedFeature is the engine's copy of a feature as found on screen. Its
// properties may be stale or re-projected; callers resolve ID against their
// own canonical data.
type RenderedFeature struct {
	ID         string         `json:"id"`
	LayerID    string         `json:"layer"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EventType is a layer-scoped pointer event.
type EventType string

const (
	EventClick      EventType = "click"
	EventMouseEnter EventType = "mouseenter"
	EventMouseLeave EventType = "mouseleave"
)

// Event is delivered to layer-scoped handlers.
type Event struct {
	Type     EventType
	LayerID  string
	Point    ScreenPoint
	Features []RenderedFeature
}

// Unsubscribe removes a binding. Calling it more than once, or after the
// engine already dropped the binding, is harmless.
type Unsubscribe func()

// Engine is the raw rendering surface.
type Engine interface {
	HasSource(id string) bool
	AddSource(id string, data *geojson.FeatureCollection) error
	RemoveSource(id string) error
	SetSourceData(id string, data *geojson.FeatureCollection) error

	HasLayer(id string) bool
	AddLayer(spec LayerSpec) error
	RemoveLayer(id string) error

	On(ev EventType, layerID string, fn func(Event)) Unsubscribe
	// OnStyleLoad fires each time a style finishes loading, with the style
	// the load belongs to.
	OnStyleLoad(fn func(style string)) Unsubscribe
	StyleLoaded() bool
	SetStyle(uri string) error

	FlyTo(center orb.Point, opts FlyToOptions) error
	QueryRenderedFeatures(p ScreenPoint, layerIDs []string) []RenderedFeature
	SetCursor(cursor string)
}

// ErrNotReady is returned for mutations attempted while a style is loading.
var ErrNotReady = errors.New("surface: style not loaded")

// SurfaceCapabilityError reports an operation the engine rejected.
type SurfaceCapabilityError struct {
	Op  string
	ID  string
	Err error
}

func (e *SurfaceCapabilityError) Error() string {
	return fmt.Sprintf("surface %s %q: %v", e.Op, e.ID, e.Err)
}

func (e *SurfaceCapabilityError) Unwrap() error { return e.Err }
