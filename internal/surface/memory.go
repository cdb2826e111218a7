package surface

import (
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// MemoryEngine is an in-process Engine. Screen points map straight to
// lon/lat, and style loads complete only when CompleteStyleLoad is called,
// so tests and headless sessions control the lifecycle explicitly.
type MemoryEngine struct {
	// PreserveListeners keeps layer event bindings across SetStyle. When
	// false the engine drops them, as some renderers do.
	PreserveListeners bool

	mu      sync.Mutex
	style   string
	loading []string
	sources map[string]*geojson.FeatureCollection
	layers  []LayerSpec
	hovered map[string]bool
	cursor  string
	camera  Camera

	ls *listeners
}

// Camera records the last flight.
type Camera struct {
	Center  orb.Point
	Opts    FlyToOptions
	Flights int
}

// NewMemoryEngine starts loading style. Call CompleteStyleLoad to finish.
func NewMemoryEngine(style string) *MemoryEngine {
	return &MemoryEngine{
		loading: []string{style},
		sources: make(map[string]*geojson.FeatureCollection),
		hovered: make(map[string]bool),
		ls:      newListeners(),
	}
}

func (m *MemoryEngine) readyLocked() error {
	if len(m.loading) > 0 {
		return fmt.Errorf("style is not done loading")
	}
	return nil
}

func (m *MemoryEngine) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

func (m *MemoryEngine) AddSource(id string, data *geojson.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("there is already a source with this ID")
	}
	m.sources[id] = cloneCollection(data)
	return nil
}

func (m *MemoryEngine) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("there is no source with this ID")
	}
	for _, l := range m.layers {
		if l.Source == id {
			return fmt.Errorf("source is in use by layer %q", l.ID)
		}
	}
	delete(m.sources, id)
	return nil
}

func (m *MemoryEngine) SetSourceData(id string, data *geojson.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("there is no source with this ID")
	}
	m.sources[id] = cloneCollection(data)
	return nil
}

func (m *MemoryEngine) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layerIndexLocked(id) >= 0
}

func (m *MemoryEngine) layerIndexLocked(id string) int {
	return slices.IndexFunc(m.layers, func(l LayerSpec) bool { return l.ID == id })
}

func (m *MemoryEngine) AddLayer(spec LayerSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if m.layerIndexLocked(spec.ID) >= 0 {
		return fmt.Errorf("layer with id %q already exists", spec.ID)
	}
	if _, ok := m.sources[spec.Source]; !ok {
		return fmt.Errorf("source %q not found", spec.Source)
	}
	if spec.BeforeID == "" {
		m.layers = append(m.layers, spec)
		return nil
	}
	at := m.layerIndexLocked(spec.BeforeID)
	if at < 0 {
		return fmt.Errorf("layer %q does not exist", spec.BeforeID)
	}
	m.layers = slices.Insert(m.layers, at, spec)
	return nil
}

func (m *MemoryEngine) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.layerIndexLocked(id)
	if at < 0 {
		return fmt.Errorf("layer %q does not exist", id)
	}
	m.layers = slices.Delete(m.layers, at, at+1)
	return nil
}

func (m *MemoryEngine) On(ev EventType, layerID string, fn func(Event)) Unsubscribe {
	id, _ := m.ls.add(layerKey{ev: ev, layer: layerID}, fn)
	var once sync.Once
	return func() { once.Do(func() { m.ls.remove(id) }) }
}

func (m *MemoryEngine) OnStyleLoad(fn func(string)) Unsubscribe {
	id := m.ls.addLoad(fn)
	var once sync.Once
	return func() { once.Do(func() { m.ls.removeLoad(id) }) }
}

func (m *MemoryEngine) StyleLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loading) == 0
}

// SetStyle discards every source and layer and starts loading uri.
func (m *MemoryEngine) SetStyle(uri string) error {
	m.mu.Lock()
	m.sources = make(map[string]*geojson.FeatureCollection)
	m.layers = nil
	m.hovered = make(map[string]bool)
	m.loading = append(m.loading, uri)
	preserve := m.PreserveListeners
	m.mu.Unlock()

	if !preserve {
		m.ls.dropLayer()
	}
	return nil
}

// CompleteStyleLoad finishes the oldest pending style load and fires the
// style-load handlers for it. It reports false when nothing was loading.
func (m *MemoryEngine) CompleteStyleLoad() (string, bool) {
	m.mu.Lock()
	if len(m.loading) == 0 {
		m.mu.Unlock()
		return "", false
	}
	style := m.loading[0]
	m.loading = m.loading[1:]
	m.style = style
	m.mu.Unlock()

	for _, fn := range m.ls.loadHandlers() {
		fn(style)
	}
	return style, true
}

// Style returns the last completed style.
func (m *MemoryEngine) Style() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style
}

func (m *MemoryEngine) FlyTo(center orb.Point, opts FlyToOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera = Camera{Center: center, Opts: opts, Flights: m.camera.Flights + 1}
	return nil
}

// Camera returns the last camera flight.
func (m *MemoryEngine) Camera() Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *MemoryEngine) QueryRenderedFeatures(p ScreenPoint, layerIDs []string) []RenderedFeature {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(p, layerIDs)
}

// queryLocked hit-tests fill layers top-down.
func (m *MemoryEngine) queryLocked(p ScreenPoint, layerIDs []string) []RenderedFeature {
	pt := orb.Point{p.X, p.Y}
	var out []RenderedFeature
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		if l.Type != LayerFill {
			continue
		}
		if len(layerIDs) > 0 && !slices.Contains(layerIDs, l.ID) {
			continue
		}
		fc := m.sources[l.Source]
		if fc == nil {
			continue
		}
		for _, f := range fc.Features {
			if !contains(f.Geometry, pt) {
				continue
			}
			out = append(out, rendered(f, l.ID))
		}
	}
	return out
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

func rendered(f *geojson.Feature, layerID string) RenderedFeature {
	rf := RenderedFeature{LayerID: layerID, Properties: map[string]any(f.Properties.Clone())}
	rf.ID, _ = feature.ID(f)
	return rf
}

func (m *MemoryEngine) SetCursor(cursor string) {
	m.mu.Lock()
	m.cursor = cursor
	m.mu.Unlock()
}

// Cursor returns the current cursor.
func (m *MemoryEngine) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// ClickAt simulates a click and returns how many handlers ran. Layers are
// dispatched bottom to top, so the topmost layer's handlers run last.
func (m *MemoryEngine) ClickAt(p ScreenPoint) int {
	m.mu.Lock()
	type call struct {
		ev  Event
		fns []func(Event)
	}
	var calls []call
	for _, l := range m.layers {
		id := l.ID
		hits := m.queryLocked(p, []string{id})
		if len(hits) == 0 {
			continue
		}
		fns := m.ls.handlers(layerKey{ev: EventClick, layer: id})
		calls = append(calls, call{
			ev:  Event{Type: EventClick, LayerID: id, Point: p, Features: hits},
			fns: fns,
		})
	}
	m.mu.Unlock()

	n := 0
	for _, c := range calls {
		for _, fn := range c.fns {
			fn(c.ev)
			n++
		}
	}
	return n
}

// HoverAt simulates the pointer moving to p, firing mouseenter and
// mouseleave for layers whose hit state changed.
func (m *MemoryEngine) HoverAt(p ScreenPoint) {
	m.mu.Lock()
	var events []Event
	for _, l := range m.layers {
		hits := m.queryLocked(p, []string{l.ID})
		was := m.hovered[l.ID]
		now := len(hits) > 0
		switch {
		case now && !was:
			events = append(events, Event{Type: EventMouseEnter, LayerID: l.ID, Point: p, Features: hits})
		case !now && was:
			events = append(events, Event{Type: EventMouseLeave, LayerID: l.ID, Point: p})
		}
		m.hovered[l.ID] = now
	}
	m.mu.Unlock()

	for _, ev := range events {
		for _, fn := range m.ls.handlers(layerKey{ev: ev.Type, layer: ev.LayerID}) {
			fn(ev)
		}
	}
}

// Sources returns the ids of the current sources.
func (m *MemoryEngine) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Layers returns layer ids bottom to top.
func (m *MemoryEngine) Layers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.layers))
	for i, l := range m.layers {
		ids[i] = l.ID
	}
	return ids
}

// SourceData returns the engine's copy of a source.
func (m *MemoryEngine) SourceData(id string) *geojson.FeatureCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[id]
}

// HandlerCount returns the number of handlers bound for ev on layerID.
func (m *MemoryEngine) HandlerCount(ev EventType, layerID string) int {
	return m.ls.count(layerKey{ev: ev, layer: layerID})
}

// cloneCollection copies properties the way a renderer serialises source
// data, so later edits to canonical features do not leak into the engine.
func cloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		c := geojson.NewFeature(f.Geometry)
		c.ID = f.ID
		c.Properties = f.Properties.Clone()
		out.Append(c)
	}
	return out
}
