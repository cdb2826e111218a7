package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteEngineEmitsCommands(t *testing.T) {
	var ops []string
	eng := NewRemoteEngine("streets", func(c Command) { ops = append(ops, c.Op) })

	assert.Error(t, eng.AddSource("s", squareFC("1", 0, 0)), "not ready before the browser reports")
	eng.StyleLoadedEvent("streets")
	require.True(t, eng.StyleLoaded())

	require.NoError(t, eng.AddSource("s", squareFC("1", 0, 0)))
	require.NoError(t, eng.AddLayer(LayerSpec{ID: "fill", Type: LayerFill, Source: "s"}))
	require.NoError(t, eng.SetSourceData("s", squareFC("2", 0, 0)))
	off := eng.On(EventClick, "fill", func(Event) {})
	eng.On(EventClick, "fill", func(Event) {})
	off()

	assert.Equal(t, []string{OpAddSource, OpAddLayer, OpSetData, OpListen}, ops)
}

func TestRemoteEngineIgnoresStaleStyleLoad(t *testing.T) {
	eng := NewRemoteEngine("streets", func(Command) {})
	eng.StyleLoadedEvent("streets")

	var loads []string
	eng.OnStyleLoad(func(s string) { loads = append(loads, s) })

	require.NoError(t, eng.SetStyle("satellite"))
	require.NoError(t, eng.SetStyle("dark"))
	eng.StyleLoadedEvent("satellite")
	assert.False(t, eng.StyleLoaded())
	eng.StyleLoadedEvent("dark")
	assert.True(t, eng.StyleLoaded())
	assert.Equal(t, []string{"satellite", "dark"}, loads)
}

func TestRemoteEngineClickAndQuery(t *testing.T) {
	eng := NewRemoteEngine("streets", func(Command) {})
	var got []Event
	eng.On(EventClick, "buildings-fill", func(ev Event) { got = append(got, ev) })

	p := ScreenPoint{X: 10, Y: 20}
	hits := []RenderedFeature{
		{ID: "1", LayerID: "buildings-fill"},
		{ID: "p1", LayerID: "parcels-fill"},
	}
	assert.Equal(t, 1, eng.Click(p, hits))
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Features[0].ID)

	q := eng.QueryRenderedFeatures(p, []string{"parcels-fill"})
	require.Len(t, q, 1)
	assert.Equal(t, "p1", q[0].ID)
	assert.Nil(t, eng.QueryRenderedFeatures(ScreenPoint{X: 1}, nil))
}

func TestRemoteEngineClickRunsTopmostLast(t *testing.T) {
	eng := NewRemoteEngine("streets", func(Command) {})
	var order []string
	eng.On(EventClick, "buildings-fill", func(Event) { order = append(order, "buildings") })
	eng.On(EventClick, "parcels-fill", func(Event) { order = append(order, "parcels") })

	eng.Click(ScreenPoint{}, []RenderedFeature{
		{ID: "1", LayerID: "buildings-fill"},
		{ID: "p1", LayerID: "parcels-fill"},
	})
	assert.Equal(t, []string{"parcels", "buildings"}, order)
}

func TestRemoteEngineAdoptedLayers(t *testing.T) {
	eng := NewRemoteEngine("streets", func(Command) {})
	eng.AdoptLayers("gl-draw-polygon-fill-inactive.cold")
	assert.True(t, eng.HasLayer("gl-draw-polygon-fill-inactive.cold"))

	require.NoError(t, eng.SetStyle("dark"))
	assert.True(t, eng.HasLayer("gl-draw-polygon-fill-inactive.cold"), "kept across style changes")

	p := ScreenPoint{X: 3, Y: 4}
	eng.RecordHits(p, []RenderedFeature{{ID: "d1", LayerID: "gl-draw-polygon-fill-inactive.cold"}})
	got := eng.QueryRenderedFeatures(p, []string{"gl-draw-polygon-fill-inactive.cold"})
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)
	assert.Nil(t, eng.QueryRenderedFeatures(ScreenPoint{X: 9}, nil), "hits belong to one point")
}
