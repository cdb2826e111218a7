package draw

import (
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/surface"
)

// DefaultName labels a freshly drawn building.
const DefaultName = "New building"

// State is the authoring interaction state.
type State int

const (
	Idle State = iota
	DrawingPolygon
	FeatureSelected
)

func (s State) String() string {
	switch s {
	case DrawingPolygon:
		return "drawing_polygon"
	case FeatureSelected:
		return "feature_selected"
	}
	return "idle"
}

// Selector raises and clears the session selection.
type Selector interface {
	Select(f *geojson.Feature)
	ClearSelection()
}

// Reconciler keeps the buildings collection equal to the drawing tool's
// feature set.
type Reconciler struct {
	tool    Tool
	store   *feature.Store
	adapter *surface.Adapter
	sel     Selector
	log     *slog.Logger

	state      State
	selectedID string
}

// New creates a draw reconciler.
func New(tool Tool, store *feature.Store, adapter *surface.Adapter, sel Selector, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		tool:    tool,
		store:   store,
		adapter: adapter,
		sel:     sel,
		log:     log.With("component", "draw"),
	}
}

// State returns the interaction state.
func (r *Reconciler) State() State { return r.state }

// SelectedID returns the tool id of the selected drawn feature.
func (r *Reconciler) SelectedID() string { return r.selectedID }

// HandleChange runs after every create, update or delete. It rebuilds the
// buildings collection from the tool's full feature set. Properties merge
// as defaults, then the tool's, then what was stored before, so edits made
// elsewhere survive a geometry change. The id is always the tool's.
func (r *Reconciler) HandleChange() error {
	prev := map[string]geojson.Properties{}
	for _, f := range r.store.Get(feature.Buildings).Features {
		if id, ok := feature.ID(f); ok {
			prev[id] = f.Properties
		}
	}

	next := geojson.NewFeatureCollection()
	for _, f := range r.tool.GetAll().Features {
		id := ToolID(f)
		if id == "" {
			continue
		}
		props := geojson.Properties{"id": id, "name": DefaultName}
		for k, v := range f.Properties {
			props[k] = v
		}
		for k, v := range prev[id] {
			props[k] = v
		}
		props["id"] = id

		nf := geojson.NewFeature(f.Geometry)
		nf.ID = id
		nf.Properties = props
		next.Append(nf)
	}

	if err := r.store.Replace(feature.Buildings, next); err != nil {
		r.log.Warn("draw change rejected", "error", err)
		return err
	}
	if r.selectedID != "" {
		if _, ok := r.tool.Get(r.selectedID); !ok {
			r.selectedID = ""
			r.state = Idle
		}
	}
	r.log.Debug("buildings replaced from draw tool", "count", len(next.Features))
	return nil
}

// HandleModeChange follows the tool's mode. Leaving draw_polygon returns to
// idle.
func (r *Reconciler) HandleModeChange(mode Mode) {
	switch {
	case mode == ModeDrawPolygon:
		r.state = DrawingPolygon
		r.selectedID = ""
	case r.state == DrawingPolygon:
		r.state = Idle
	}
}

// HandleClick hit-tests the tool's fill layers outside draw_polygon mode
// and raises selection for the drawn feature under p. A miss clears it.
func (r *Reconciler) HandleClick(p surface.ScreenPoint) (*geojson.Feature, bool) {
	if r.state == DrawingPolygon || r.tool.Mode() == ModeDrawPolygon {
		return nil, false
	}

	hits := r.adapter.QueryFeaturesAt(p, r.tool.FillLayers())
	for _, h := range hits {
		f, ok := r.tool.Get(h.ID)
		if !ok {
			continue
		}
		r.state = FeatureSelected
		r.selectedID = h.ID
		r.sel.Select(f)
		return f, true
	}

	if r.state == FeatureSelected {
		r.state = Idle
		r.selectedID = ""
		r.sel.ClearSelection()
	}
	return nil, false
}
