package surface

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/logger"
)

func squareFC(id string, x, y float64) *geojson.FeatureCollection {
	f := geojson.NewFeature(orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}})
	f.Properties["id"] = id
	f.Properties["name"] = "Feature " + id
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc
}

func readyAdapter(t *testing.T) (*Adapter, *MemoryEngine) {
	t.Helper()
	eng := NewMemoryEngine("streets")
	a := NewAdapter(eng, "streets", logger.Discard())
	_, ok := eng.CompleteStyleLoad()
	require.True(t, ok)
	require.True(t, a.IsReady())
	return a, eng
}

func TestAdapterMutationsAreIdempotent(t *testing.T) {
	a, eng := readyAdapter(t)

	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddSource("s", squareFC("2", 0, 0)), "second add updates data")
	assert.Equal(t, "2", eng.SourceData("s").Features[0].Properties["id"])

	spec := LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}
	require.NoError(t, a.AddLayer(spec))
	require.NoError(t, a.AddLayer(spec))
	assert.Equal(t, []string{"fill"}, eng.Layers())

	require.NoError(t, a.RemoveLayer("fill"))
	require.NoError(t, a.RemoveLayer("fill"))
	require.NoError(t, a.RemoveSource("s"))
	require.NoError(t, a.RemoveSource("s"))
	require.NoError(t, a.SetSourceData("s", squareFC("3", 0, 0)), "absent source is a no-op")
	assert.Empty(t, eng.Sources())
}

func TestAdapterWrapsEngineRejections(t *testing.T) {
	a, _ := readyAdapter(t)
	err := a.AddLayer(LayerSpec{ID: "orphan", Type: LayerFill, Source: "missing"})
	require.Error(t, err)
	assert.True(t, IsCapability(err))

	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))
	assert.True(t, IsCapability(a.RemoveSource("s")), "source still in use")
}

func TestAdapterBeforeIDKeepsOrder(t *testing.T) {
	a, eng := readyAdapter(t)
	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "top", Type: LayerLine, Source: "s"}))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "bottom", Type: LayerFill, Source: "s", BeforeID: "top"}))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "extra", Type: LayerFill, Source: "s", BeforeID: "gone"}))
	assert.Equal(t, []string{"bottom", "top", "extra"}, eng.Layers())
}

func TestAdapterRefusesMutationWhileLoading(t *testing.T) {
	eng := NewMemoryEngine("streets")
	a := NewAdapter(eng, "streets", logger.Discard())
	assert.False(t, a.IsReady())
	assert.ErrorIs(t, a.AddSource("s", squareFC("1", 0, 0)), ErrNotReady)
}

func TestAdapterDefersHandlersUntilReady(t *testing.T) {
	eng := NewMemoryEngine("streets")
	a := NewAdapter(eng, "streets", logger.Discard())

	var clicked []string
	a.OnClick("fill", func(f RenderedFeature) { clicked = append(clicked, f.ID) })
	cancelled := a.OnClick("fill", func(RenderedFeature) { t.Fatal("cancelled handler ran") })
	cancelled()
	assert.Equal(t, 0, eng.HandlerCount(EventClick, "fill"))

	eng.CompleteStyleLoad()
	assert.Equal(t, 1, eng.HandlerCount(EventClick, "fill"))

	require.NoError(t, a.AddSource("s", squareFC("7", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))
	assert.Equal(t, 1, eng.ClickAt(ScreenPoint{X: 0.5, Y: 0.5}))
	assert.Equal(t, []string{"7"}, clicked)
}

func TestAdapterHoverAndCursor(t *testing.T) {
	a, eng := readyAdapter(t)
	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))

	off := a.OnHover("fill", func() { a.SetCursor("pointer") }, func() { a.SetCursor("") })
	eng.HoverAt(ScreenPoint{X: 0.5, Y: 0.5})
	assert.Equal(t, "pointer", eng.Cursor())
	eng.HoverAt(ScreenPoint{X: 5, Y: 5})
	assert.Equal(t, "", eng.Cursor())

	off()
	assert.Equal(t, 0, eng.HandlerCount(EventMouseEnter, "fill"))
	assert.Equal(t, 0, eng.HandlerCount(EventMouseLeave, "fill"))
}

func TestAdapterQuerySkipsAbsentLayers(t *testing.T) {
	a, _ := readyAdapter(t)
	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))

	hits := a.QueryFeaturesAt(ScreenPoint{X: 0.5, Y: 0.5}, []string{"fill", "nope"})
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.Nil(t, a.QueryFeaturesAt(ScreenPoint{X: 0.5, Y: 0.5}, []string{"nope"}))
}

func TestMemoryEngineReportsCanonicalIDs(t *testing.T) {
	a, _ := readyAdapter(t)
	fc := squareFC("x", 0, 0)
	fc.Features[0].Properties["id"] = 1e21
	require.NoError(t, a.AddSource("s", fc))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))

	hits := a.QueryFeaturesAt(ScreenPoint{X: 0.5, Y: 0.5}, []string{"fill"})
	require.Len(t, hits, 1)
	want, ok := feature.ID(fc.Features[0])
	require.True(t, ok)
	assert.Equal(t, "1000000000000000000000", want)
	assert.Equal(t, want, hits[0].ID)
}

func TestMemoryEngineStyleChangeDropsState(t *testing.T) {
	a, eng := readyAdapter(t)
	require.NoError(t, a.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, a.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))
	a.OnClick("fill", func(RenderedFeature) {})

	require.NoError(t, a.SetStyle("satellite"))
	assert.False(t, a.IsReady())
	assert.Equal(t, "satellite", a.Style())
	assert.Empty(t, eng.Sources())
	assert.Empty(t, eng.Layers())
	assert.Equal(t, 0, eng.HandlerCount(EventClick, "fill"))

	style, ok := eng.CompleteStyleLoad()
	assert.True(t, ok)
	assert.Equal(t, "satellite", style)
	assert.True(t, a.IsReady())
}
