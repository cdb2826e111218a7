// Package selection turns search terms into filtered source data and
// surface clicks into selection state and camera moves.
package selection

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/reconcile"
	"github.com/joeblew999/plat-campus/internal/surface"
)

// Options tune the camera move on selection.
type Options struct {
	Zoom       float64
	Padding    surface.Padding
	DurationMS int
}

// DefaultOptions keeps the selected feature clear of the side panel.
func DefaultOptions() Options {
	return Options{
		Zoom:       17,
		Padding:    surface.Padding{Right: 420},
		DurationMS: 1200,
	}
}

// Controller owns the filter and selection state of one map session.
type Controller struct {
	store   *feature.Store
	adapter *surface.Adapter
	cache   *ristretto.Cache
	opts    Options
	log     *slog.Logger

	term      string
	selected  *geojson.Feature
	observers map[int]func(*geojson.Feature)
	nextObs   int
	offStore  func()
}

// New creates a controller over store and adapter.
func New(store *feature.Store, adapter *surface.Adapter, opts Options, log *slog.Logger) (*Controller, error) {
	if log == nil {
		log = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     64,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating filter cache: %w", err)
	}

	c := &Controller{
		store:     store,
		adapter:   adapter,
		cache:     cache,
		opts:      opts,
		log:       log.With("component", "selection"),
		observers: make(map[int]func(*geojson.Feature)),
	}
	c.offStore = store.OnChange(c.storeChanged)
	return c, nil
}

// Close releases the cache and the store subscription.
func (c *Controller) Close() {
	c.offStore()
	c.cache.Close()
}

// Term returns the current search term.
func (c *Controller) Term() string { return c.term }

// Selection returns the selected canonical feature, or nil.
func (c *Controller) Selection() *geojson.Feature { return c.selected }

// Matches returns the merged index features matching the current term.
func (c *Controller) Matches() []*geojson.Feature {
	return c.store.Search(c.term)
}

// Filtered returns collection col as the surface should show it: indexed
// collections filtered by the current term, the rest unchanged.
func (c *Controller) Filtered(col feature.Collection) *geojson.FeatureCollection {
	if !col.Indexed() {
		return c.store.Get(col)
	}
	key := fmt.Sprintf("%s|%d|%s", col, c.store.Version(), strings.ToLower(c.term))
	if v, ok := c.cache.Get(key); ok {
		return v.(*geojson.FeatureCollection)
	}
	fc := feature.Filter(c.store.Get(col), c.term)
	c.cache.Set(key, fc, 1)
	return fc
}

// SetSearchTerm refilters the clickable collections and swaps their source
// data. Layers are left alone.
func (c *Controller) SetSearchTerm(term string) error {
	c.term = term
	var errs []error
	for _, col := range []feature.Collection{feature.Buildings, feature.Parcels} {
		if err := c.push(col); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) push(col feature.Collection) error {
	return c.adapter.SetSourceData(reconcile.SourceID(col), c.Filtered(col))
}

// HandleSurfaceClick resolves a rendered feature id to its canonical
// feature and selects it. The surface's copy is never used.
func (c *Controller) HandleSurfaceClick(layerID, renderedID string) (*geojson.Feature, bool) {
	f, ok := c.store.Lookup(renderedID)
	if !ok {
		c.log.Warn("clicked feature not in store", "layer", layerID, "id", renderedID)
		return nil, false
	}
	c.Select(f)
	return f, true
}

// Select makes f the selection and flies to it.
func (c *Controller) Select(f *geojson.Feature) {
	c.selected = f
	c.notify()
	c.flyTo(f)
}

// ClearSelection drops the selection.
func (c *Controller) ClearSelection() {
	if c.selected == nil {
		return
	}
	c.selected = nil
	c.notify()
}

// OnSelect registers fn to run on every selection change. fn receives nil
// when the selection is cleared.
func (c *Controller) OnSelect(fn func(*geojson.Feature)) func() {
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() { delete(c.observers, id) }
}

func (c *Controller) notify() {
	for _, fn := range c.observers {
		fn(c.selected)
	}
}

func (c *Controller) flyTo(f *geojson.Feature) {
	id, _ := feature.ID(f)
	center, err := FlyTarget(id, f.Geometry)
	if err != nil {
		c.log.Warn("selection kept without camera move", "error", err)
		return
	}
	opts := surface.FlyToOptions{
		Zoom:       c.opts.Zoom,
		Padding:    c.opts.Padding,
		DurationMS: c.opts.DurationMS,
	}
	if err := c.adapter.FlyTo(center, opts); err != nil {
		c.log.Warn("fly-to rejected", "id", id, "error", err)
	}
}

// storeChanged keeps the surface and the selection in step with the store.
func (c *Controller) storeChanged(col feature.Collection) {
	if err := c.push(col); err != nil {
		c.log.Warn("refreshing source", "collection", col, "error", err)
	}
	if c.selected == nil || !col.Indexed() {
		return
	}
	id, _ := feature.ID(c.selected)
	f, ok := c.store.Lookup(id)
	switch {
	case !ok:
		c.selected = nil
		c.notify()
	case f != c.selected:
		c.selected = f
		c.notify()
	}
}

// Ready reports whether the store has its initial data.
func (c *Controller) Ready() bool { return c.store.Loaded() }

// SourceData serves the reconciler the current filtered data, so a pass
// after a style change shows what the user last searched for.
func (c *Controller) SourceData(col feature.Collection) *geojson.FeatureCollection {
	return c.Filtered(col)
}

// Bind attaches click selection and the hover cursor to the clickable
// layers.
func (c *Controller) Bind(a *surface.Adapter) []surface.Unsubscribe {
	var handles []surface.Unsubscribe
	for _, layer := range reconcile.ClickableLayers() {
		handles = append(handles,
			a.OnClick(layer, func(f surface.RenderedFeature) {
				c.HandleSurfaceClick(f.LayerID, f.ID)
			}),
			a.OnHover(layer,
				func() { a.SetCursor("pointer") },
				func() { a.SetCursor("") },
			),
		)
	}
	return handles
}
