package surface

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Adapter is the capability facade over an Engine. Every mutation is
// idempotent: adding what exists updates or keeps it, removing what is
// absent does nothing. The adapter holds no business state.
type Adapter struct {
	engine Engine
	log    *slog.Logger

	mu      sync.Mutex
	style   string
	pending []*deferred
}

// deferred is a layer binding requested before the surface was ready.
type deferred struct {
	ev      EventType
	layerID string
	fn      func(Event)
	off     Unsubscribe
	dropped bool
}

// NewAdapter wraps engine. style is the style the engine is loading.
func NewAdapter(engine Engine, style string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{engine: engine, log: log, style: style}
	engine.OnStyleLoad(func(string) { a.flush() })
	return a
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine { return a.engine }

// IsReady reports whether source and layer mutation is currently legal.
func (a *Adapter) IsReady() bool {
	return a.engine.StyleLoaded()
}

// Style returns the most recently requested style.
func (a *Adapter) Style() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.style
}

func (a *Adapter) HasSource(id string) bool { return a.engine.HasSource(id) }

// AddSource adds the source, or replaces its data if it already exists.
func (a *Adapter) AddSource(id string, data *geojson.FeatureCollection) error {
	if !a.IsReady() {
		return ErrNotReady
	}
	if a.engine.HasSource(id) {
		return a.SetSourceData(id, data)
	}
	if err := a.engine.AddSource(id, data); err != nil {
		return &SurfaceCapabilityError{Op: "addSource", ID: id, Err: err}
	}
	return nil
}

// RemoveSource removes the source if present.
func (a *Adapter) RemoveSource(id string) error {
	if !a.engine.HasSource(id) {
		return nil
	}
	if err := a.engine.RemoveSource(id); err != nil {
		return &SurfaceCapabilityError{Op: "removeSource", ID: id, Err: err}
	}
	return nil
}

// SetSourceData swaps a source's data. An absent source is left alone.
func (a *Adapter) SetSourceData(id string, data *geojson.FeatureCollection) error {
	if !a.engine.HasSource(id) {
		return nil
	}
	if err := a.engine.SetSourceData(id, data); err != nil {
		return &SurfaceCapabilityError{Op: "setData", ID: id, Err: err}
	}
	return nil
}

func (a *Adapter) HasLayer(id string) bool { return a.engine.HasLayer(id) }

// AddLayer adds the layer if absent. A BeforeID naming an absent layer is
// dropped, which puts the layer on top.
func (a *Adapter) AddLayer(spec LayerSpec) error {
	if !a.IsReady() {
		return ErrNotReady
	}
	if a.engine.HasLayer(spec.ID) {
		return nil
	}
	if spec.BeforeID != "" && !a.engine.HasLayer(spec.BeforeID) {
		spec.BeforeID = ""
	}
	if err := a.engine.AddLayer(spec); err != nil {
		return &SurfaceCapabilityError{Op: "addLayer", ID: spec.ID, Err: err}
	}
	return nil
}

// RemoveLayer removes the layer if present.
func (a *Adapter) RemoveLayer(id string) error {
	if !a.engine.HasLayer(id) {
		return nil
	}
	if err := a.engine.RemoveLayer(id); err != nil {
		return &SurfaceCapabilityError{Op: "removeLayer", ID: id, Err: err}
	}
	return nil
}

// OnClick calls fn with the topmost rendered feature clicked on layerID.
func (a *Adapter) OnClick(layerID string, fn func(RenderedFeature)) Unsubscribe {
	return a.on(EventClick, layerID, func(ev Event) {
		if len(ev.Features) > 0 {
			fn(ev.Features[0])
		}
	})
}

// OnHover calls onEnter when the pointer enters layerID and onLeave when it
// leaves.
func (a *Adapter) OnHover(layerID string, onEnter, onLeave func()) Unsubscribe {
	offEnter := a.on(EventMouseEnter, layerID, func(Event) { onEnter() })
	offLeave := a.on(EventMouseLeave, layerID, func(Event) { onLeave() })
	return func() {
		offEnter()
		offLeave()
	}
}

// on binds now when ready, otherwise queues the binding for the next
// style load.
func (a *Adapter) on(ev EventType, layerID string, fn func(Event)) Unsubscribe {
	if a.IsReady() {
		return a.engine.On(ev, layerID, fn)
	}

	d := &deferred{ev: ev, layerID: layerID, fn: fn}
	a.mu.Lock()
	a.pending = append(a.pending, d)
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		d.dropped = true
		off := d.off
		a.pending = slices.DeleteFunc(a.pending, func(p *deferred) bool { return p == d })
		a.mu.Unlock()
		if off != nil {
			off()
		}
	}
}

func (a *Adapter) flush() {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	for _, d := range pending {
		off := a.engine.On(d.ev, d.layerID, d.fn)
		a.mu.Lock()
		if d.dropped {
			a.mu.Unlock()
			off()
			continue
		}
		d.off = off
		a.mu.Unlock()
	}
	if len(pending) > 0 {
		a.log.Debug("bound deferred handlers", "count", len(pending))
	}
}

// OnStyleReloaded calls fn after every completed style load with the style
// the load belongs to.
func (a *Adapter) OnStyleReloaded(fn func(style string)) Unsubscribe {
	return a.engine.OnStyleLoad(fn)
}

// SetStyle starts switching to uri.
func (a *Adapter) SetStyle(uri string) error {
	a.mu.Lock()
	a.style = uri
	a.mu.Unlock()
	if err := a.engine.SetStyle(uri); err != nil {
		return &SurfaceCapabilityError{Op: "setStyle", ID: uri, Err: err}
	}
	return nil
}

// FlyTo moves the camera to center.
func (a *Adapter) FlyTo(center orb.Point, opts FlyToOptions) error {
	if err := a.engine.FlyTo(center, opts); err != nil {
		return &SurfaceCapabilityError{Op: "flyTo", Err: err}
	}
	return nil
}

// QueryFeaturesAt hit-tests the given layers. Absent layers are skipped.
func (a *Adapter) QueryFeaturesAt(p ScreenPoint, layerIDs []string) []RenderedFeature {
	present := make([]string, 0, len(layerIDs))
	for _, id := range layerIDs {
		if a.engine.HasLayer(id) {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return a.engine.QueryRenderedFeatures(p, present)
}

// SetCursor sets the pointer cursor.
func (a *Adapter) SetCursor(cursor string) { a.engine.SetCursor(cursor) }

// IsCapability reports whether err came from the engine rejecting an
// operation.
func IsCapability(err error) bool {
	var sce *SurfaceCapabilityError
	return errors.As(err, &sce)
}
