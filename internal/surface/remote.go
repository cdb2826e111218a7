package surface

import (
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Command is one instruction for the browser map.
type Command struct {
	Op     string                     `json:"op"`
	ID     string                     `json:"id,omitempty"`
	Data   *geojson.FeatureCollection `json:"data,omitempty"`
	Layer  *LayerSpec                 `json:"layer,omitempty"`
	Style  string                     `json:"style,omitempty"`
	Center *orb.Point                 `json:"center,omitempty"`
	FlyTo  *FlyToOptions              `json:"flyTo,omitempty"`
	Cursor string                     `json:"cursor,omitempty"`
	Event  EventType                  `json:"event,omitempty"`
}

// Command ops.
const (
	OpAddSource    = "addSource"
	OpRemoveSource = "removeSource"
	OpSetData      = "setData"
	OpAddLayer     = "addLayer"
	OpRemoveLayer  = "removeLayer"
	OpSetStyle     = "setStyle"
	OpFlyTo        = "flyTo"
	OpCursor       = "cursor"
	OpListen       = "listen"
	OpUnlisten     = "unlisten"
)

// RemoteEngine mirrors a map running in a browser. Mutations update the
// mirror and are emitted as Commands; the browser reports style loads,
// clicks and hovers back through StyleLoadedEvent, Click and Hover.
//
// The browser map keeps layer listeners across style changes, so the
// remote engine does too.
type RemoteEngine struct {
	emit func(Command)

	mu        sync.Mutex
	requested string
	ready     bool
	sources   map[string]bool
	layers    []LayerSpec
	lastPoint ScreenPoint
	lastHits  []RenderedFeature
	adopted   map[string]bool

	ls *listeners
}

// NewRemoteEngine creates a mirror for a browser that is loading style.
func NewRemoteEngine(style string, emit func(Command)) *RemoteEngine {
	return &RemoteEngine{
		emit:      emit,
		requested: style,
		sources:   make(map[string]bool),
		adopted:   make(map[string]bool),
		ls:        newListeners(),
	}
}

// AdoptLayers marks layers the browser adds by itself, such as the draw
// tool's, as present. They survive style changes and can be hit-tested but
// never mutated from here.
func (r *RemoteEngine) AdoptLayers(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.adopted[id] = true
	}
}

func (r *RemoteEngine) HasSource(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[id]
}

func (r *RemoteEngine) AddSource(id string, data *geojson.FeatureCollection) error {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return fmt.Errorf("style is not done loading")
	}
	if r.sources[id] {
		r.mu.Unlock()
		return fmt.Errorf("there is already a source with this ID")
	}
	r.sources[id] = true
	r.mu.Unlock()

	r.emit(Command{Op: OpAddSource, ID: id, Data: data})
	return nil
}

func (r *RemoteEngine) RemoveSource(id string) error {
	r.mu.Lock()
	if !r.sources[id] {
		r.mu.Unlock()
		return fmt.Errorf("there is no source with this ID")
	}
	for _, l := range r.layers {
		if l.Source == id {
			r.mu.Unlock()
			return fmt.Errorf("source is in use by layer %q", l.ID)
		}
	}
	delete(r.sources, id)
	r.mu.Unlock()

	r.emit(Command{Op: OpRemoveSource, ID: id})
	return nil
}

func (r *RemoteEngine) SetSourceData(id string, data *geojson.FeatureCollection) error {
	r.mu.Lock()
	ok := r.sources[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("there is no source with this ID")
	}
	r.emit(Command{Op: OpSetData, ID: id, Data: data})
	return nil
}

func (r *RemoteEngine) HasLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layerIndexLocked(id) >= 0 || r.adopted[id]
}

func (r *RemoteEngine) layerIndexLocked(id string) int {
	return slices.IndexFunc(r.layers, func(l LayerSpec) bool { return l.ID == id })
}

func (r *RemoteEngine) AddLayer(spec LayerSpec) error {
	r.mu.Lock()
	switch {
	case !r.ready:
		r.mu.Unlock()
		return fmt.Errorf("style is not done loading")
	case r.layerIndexLocked(spec.ID) >= 0:
		r.mu.Unlock()
		return fmt.Errorf("layer with id %q already exists", spec.ID)
	case !r.sources[spec.Source]:
		r.mu.Unlock()
		return fmt.Errorf("source %q not found", spec.Source)
	}
	if at := r.layerIndexLocked(spec.BeforeID); spec.BeforeID != "" && at >= 0 {
		r.layers = slices.Insert(r.layers, at, spec)
	} else {
		spec.BeforeID = ""
		r.layers = append(r.layers, spec)
	}
	r.mu.Unlock()

	r.emit(Command{Op: OpAddLayer, ID: spec.ID, Layer: &spec})
	return nil
}

func (r *RemoteEngine) RemoveLayer(id string) error {
	r.mu.Lock()
	at := r.layerIndexLocked(id)
	if at < 0 {
		r.mu.Unlock()
		return fmt.Errorf("layer %q does not exist", id)
	}
	r.layers = slices.Delete(r.layers, at, at+1)
	r.mu.Unlock()

	r.emit(Command{Op: OpRemoveLayer, ID: id})
	return nil
}

func (r *RemoteEngine) On(ev EventType, layerID string, fn func(Event)) Unsubscribe {
	key := layerKey{ev: ev, layer: layerID}
	id, first := r.ls.add(key, fn)
	if first {
		r.emit(Command{Op: OpListen, Event: ev, ID: layerID})
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if k, ok, last := r.ls.remove(id); ok && last {
				r.emit(Command{Op: OpUnlisten, Event: k.ev, ID: k.layer})
			}
		})
	}
}

func (r *RemoteEngine) OnStyleLoad(fn func(string)) Unsubscribe {
	id := r.ls.addLoad(fn)
	var once sync.Once
	return func() { once.Do(func() { r.ls.removeLoad(id) }) }
}

func (r *RemoteEngine) StyleLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *RemoteEngine) SetStyle(uri string) error {
	r.mu.Lock()
	r.requested = uri
	r.ready = false
	r.sources = make(map[string]bool)
	r.layers = nil
	r.mu.Unlock()

	r.emit(Command{Op: OpSetStyle, Style: uri})
	return nil
}

// StyleLoadedEvent is called when the browser finishes loading style. A load
// for anything but the latest requested style leaves the mirror not ready.
func (r *RemoteEngine) StyleLoadedEvent(style string) {
	r.mu.Lock()
	if style == r.requested {
		r.ready = true
	}
	r.mu.Unlock()

	for _, fn := range r.ls.loadHandlers() {
		fn(style)
	}
}

// Observe replaces the mirrored sources and layers with what the browser
// reports it holds for style. Layer specs the mirror already knew are kept;
// adopted layers stay adopted.
func (r *RemoteEngine) Observe(style string, sources, layers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if style != r.requested {
		return
	}
	known := make(map[string]LayerSpec, len(r.layers))
	for _, l := range r.layers {
		known[l.ID] = l
	}
	r.sources = make(map[string]bool, len(sources))
	for _, id := range sources {
		r.sources[id] = true
	}
	r.layers = nil
	for _, id := range layers {
		if r.adopted[id] {
			continue
		}
		spec, ok := known[id]
		if !ok {
			spec = LayerSpec{ID: id}
		}
		spec.BeforeID = ""
		r.layers = append(r.layers, spec)
	}
}

func (r *RemoteEngine) FlyTo(center orb.Point, opts FlyToOptions) error {
	r.emit(Command{Op: OpFlyTo, Center: &center, FlyTo: &opts})
	return nil
}

// QueryRenderedFeatures answers from the hit test the browser sent with its
// last click; the browser cannot be queried synchronously.
func (r *RemoteEngine) QueryRenderedFeatures(p ScreenPoint, layerIDs []string) []RenderedFeature {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p != r.lastPoint {
		return nil
	}
	var out []RenderedFeature
	for _, h := range r.lastHits {
		if len(layerIDs) == 0 || slices.Contains(layerIDs, h.LayerID) {
			out = append(out, h)
		}
	}
	return out
}

func (r *RemoteEngine) SetCursor(cursor string) {
	r.emit(Command{Op: OpCursor, Cursor: cursor})
}

// RecordHits stores the browser's hit test at p for QueryRenderedFeatures
// without dispatching anything.
func (r *RemoteEngine) RecordHits(p ScreenPoint, hits []RenderedFeature) {
	r.mu.Lock()
	r.lastPoint = p
	r.lastHits = hits
	r.mu.Unlock()
}

// Click dispatches a browser click. hits is the browser's hit test at p,
// topmost first. Layers are dispatched bottom to top, as ClickAt does on the
// memory engine. It returns how many handlers ran.
func (r *RemoteEngine) Click(p ScreenPoint, hits []RenderedFeature) int {
	r.RecordHits(p, hits)

	var order []string
	byLayer := map[string][]RenderedFeature{}
	for _, h := range hits {
		if _, ok := byLayer[h.LayerID]; !ok {
			order = append(order, h.LayerID)
		}
		byLayer[h.LayerID] = append(byLayer[h.LayerID], h)
	}

	slices.Reverse(order)
	n := 0
	for _, layer := range order {
		ev := Event{Type: EventClick, LayerID: layer, Point: p, Features: byLayer[layer]}
		for _, fn := range r.ls.handlers(layerKey{ev: EventClick, layer: layer}) {
			fn(ev)
			n++
		}
	}
	return n
}

// Hover dispatches a browser mouseenter or mouseleave on layerID.
func (r *RemoteEngine) Hover(layerID string, entered bool) {
	ev := Event{Type: EventMouseLeave, LayerID: layerID}
	if entered {
		ev.Type = EventMouseEnter
	}
	for _, fn := range r.ls.handlers(layerKey{ev: ev.Type, layer: layerID}) {
		fn(ev)
	}
}
