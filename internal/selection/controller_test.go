package selection

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/logger"
	"github.com/joeblew999/plat-campus/internal/reconcile"
	"github.com/joeblew999/plat-campus/internal/surface"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func building(id int, name string, x float64) *geojson.Feature {
	f := geojson.NewFeature(square(x, 0))
	f.Properties["id"] = id
	f.Properties["name"] = name
	return f
}

type fixture struct {
	store *feature.Store
	eng   *surface.MemoryEngine
	ctrl  *Controller
	rec   *reconcile.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	buildings := geojson.NewFeatureCollection()
	buildings.Append(building(1, "Lab A", 0))
	buildings.Append(building(2, "Lab B", 2))

	store := feature.NewStore(logger.Discard())
	require.Empty(t, store.Load(map[feature.Collection]*geojson.FeatureCollection{
		feature.Buildings: buildings,
		feature.Parcels:   geojson.NewFeatureCollection(),
	}))

	eng := surface.NewMemoryEngine("streets")
	a := surface.NewAdapter(eng, "streets", logger.Discard())
	ctrl, err := New(store, a, DefaultOptions(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	rec := reconcile.New(a, ctrl, nil, logger.Discard())
	rec.AddBinder(ctrl)
	require.NoError(t, rec.Start())
	_, ok := eng.CompleteStyleLoad()
	require.True(t, ok)

	return &fixture{store: store, eng: eng, ctrl: ctrl, rec: rec}
}

func ids(fc *geojson.FeatureCollection) []string {
	var out []string
	for _, f := range fc.Features {
		id, _ := feature.ID(f)
		out = append(out, id)
	}
	return out
}

func TestSearchSelectAndStyleReload(t *testing.T) {
	fx := newFixture(t)
	layersBefore := fx.eng.Layers()

	require.NoError(t, fx.ctrl.SetSearchTerm("a"))
	assert.Equal(t, []string{"1", "2"}, ids(fx.ctrl.Filtered(feature.Buildings)))
	assert.Equal(t, []string{"1", "2"}, ids(fx.eng.SourceData("campus-buildings")))

	require.NoError(t, fx.ctrl.SetSearchTerm("Lab A"))
	assert.Equal(t, []string{"1"}, ids(fx.ctrl.Filtered(feature.Buildings)))
	assert.Equal(t, []string{"1"}, ids(fx.eng.SourceData("campus-buildings")))
	assert.Equal(t, layersBefore, fx.eng.Layers(), "search must not touch layers")

	assert.Equal(t, 1, fx.eng.ClickAt(surface.ScreenPoint{X: 0.5, Y: 0.5}))
	want, _ := fx.store.Lookup("1")
	assert.Same(t, want, fx.ctrl.Selection())

	require.NoError(t, fx.rec.SwitchStyle("dark"))
	_, ok := fx.eng.CompleteStyleLoad()
	require.True(t, ok)

	assert.Equal(t, []string{"1"}, ids(fx.eng.SourceData("campus-buildings")))
	assert.Equal(t, 1, fx.eng.HandlerCount(surface.EventClick, "buildings-fill"))
	assert.Len(t, fx.store.Get(feature.Buildings).Features, 2, "filtering never mutates the store")
}

func TestClickSelectsCanonicalFeature(t *testing.T) {
	fx := newFixture(t)

	// the engine holds its own copy; make it disagree with the store
	fx.eng.SourceData("campus-buildings").Features[1].Properties["name"] = "stale"

	fx.eng.ClickAt(surface.ScreenPoint{X: 2.5, Y: 0.5})
	require.NotNil(t, fx.ctrl.Selection())
	assert.Equal(t, "Lab B", fx.ctrl.Selection().Properties["name"])

	_, ok := fx.ctrl.HandleSurfaceClick("buildings-fill", "missing")
	assert.False(t, ok)
	assert.Equal(t, "Lab B", fx.ctrl.Selection().Properties["name"], "unknown id keeps selection")
}

func TestSelectFliesToFirstCoordinate(t *testing.T) {
	fx := newFixture(t)

	var seen []*geojson.Feature
	off := fx.ctrl.OnSelect(func(f *geojson.Feature) { seen = append(seen, f) })
	defer off()

	_, ok := fx.ctrl.HandleSurfaceClick("buildings-fill", "2")
	require.True(t, ok)

	cam := fx.eng.Camera()
	assert.Equal(t, orb.Point{2, 0}, cam.Center)
	assert.Equal(t, surface.Padding{Right: 420}, cam.Opts.Padding)
	assert.Equal(t, 1, cam.Flights)

	fx.ctrl.ClearSelection()
	assert.Nil(t, fx.ctrl.Selection())
	require.Len(t, seen, 2)
	assert.Nil(t, seen[1])
}

func TestMalformedGeometryKeepsSelection(t *testing.T) {
	fx := newFixture(t)

	f := geojson.NewFeature(orb.Polygon{})
	f.Properties["id"] = "broken"
	fx.ctrl.Select(f)

	assert.Same(t, f, fx.ctrl.Selection())
	assert.Equal(t, 0, fx.eng.Camera().Flights)
}

func TestHoverCursor(t *testing.T) {
	fx := newFixture(t)

	fx.eng.HoverAt(surface.ScreenPoint{X: 0.5, Y: 0.5})
	assert.Equal(t, "pointer", fx.eng.Cursor())
	fx.eng.HoverAt(surface.ScreenPoint{X: 10, Y: 10})
	assert.Equal(t, "", fx.eng.Cursor())
}

func TestStoreChangeRefreshesSourceAndSelection(t *testing.T) {
	fx := newFixture(t)
	_, ok := fx.ctrl.HandleSurfaceClick("buildings-fill", "1")
	require.True(t, ok)

	next := geojson.NewFeatureCollection()
	next.Append(building(2, "Lab B", 2))
	next.Append(building(3, "Library", 4))
	require.NoError(t, fx.store.Replace(feature.Buildings, next))

	assert.Nil(t, fx.ctrl.Selection(), "removed feature is deselected")
	assert.Equal(t, []string{"2", "3"}, ids(fx.eng.SourceData("campus-buildings")))

	require.NoError(t, fx.ctrl.SetSearchTerm("lib"))
	assert.Equal(t, []string{"3"}, ids(fx.eng.SourceData("campus-buildings")))
	require.Len(t, fx.ctrl.Matches(), 1)
}

func TestFlyTarget(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want orb.Point
		err  bool
	}{
		{"polygon", square(3, 4), orb.Point{3, 4}, false},
		{"multipolygon", orb.MultiPolygon{square(5, 6)}, orb.Point{5, 6}, false},
		{"line", orb.LineString{{1, 2}, {3, 4}}, orb.Point{1, 2}, false},
		{"point", orb.Point{7, 8}, orb.Point{7, 8}, false},
		{"empty polygon", orb.Polygon{}, orb.Point{}, true},
		{"empty multipolygon", orb.MultiPolygon{}, orb.Point{}, true},
		{"nil", nil, orb.Point{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlyTarget("x", tt.geom)
			if tt.err {
				var gee *GeometryExtractionError
				assert.ErrorAs(t, err, &gee)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
