package templates

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/service"
)

func TestRenderDetailPanel(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties["id"] = "b1"
	f.Properties["name"] = "Lab <A>"
	f.Properties["floors"] = 3
	f.Properties["faculty"] = "Science"

	html, err := r.Render("detail-panel", NewFeatureData("s1", f))
	require.NoError(t, err)
	assert.Contains(t, html, "Lab &lt;A&gt;")
	assert.Contains(t, html, "<dt>faculty</dt><dd>Science</dd><dt>floors</dt><dd>3</dd>")
	assert.NotContains(t, html, "<dt>id</dt>")
	assert.Contains(t, html, "/api/v1/map/s1/clear")
}

func TestRenderPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("page", PageData{
		Title:     "Campus",
		SessionID: "abc",
		Style:     "https://example.test/streets.json",
		Styles:    []service.Style{{ID: "streets", Name: "Streets", URI: "https://example.test/streets.json"}},
		Authoring: true,
		Center:    [2]float64{106.8, -6.2},
		Zoom:      16,
	})
	require.NoError(t, err)
	assert.Contains(t, html, "mapbox-gl-draw")
	assert.Contains(t, html, "/api/v1/map/abc/stream")
	assert.Contains(t, html, " selected>Streets</option>")
}

func TestRenderPageBindsEachMapHandlerOnce(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("page", PageData{SessionID: "abc", Style: "s", Zoom: 1})
	require.NoError(t, err)
	// unlisten and listen again must not attach a second MapLibre handler
	assert.Equal(t, 1, strings.Count(html, "map.on(ev, layer,"))
	assert.Contains(t, html, `if (ev === "click" || bound.has(key)) return;`)
	assert.Contains(t, html, `case "unlisten": listening.delete(c.event + ":" + c.id); break;`)
	assert.Contains(t, html, `case "resync": resync(); break;`)
	assert.Contains(t, html, `data-init="@get('/api/v1/map/abc/stream')"`)
}

func TestRenderEmptyStateAndMissingTemplate(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html := r.MustRender("empty-state", map[string]string{"Title": "Nothing", "Message": "Try again"})
	assert.Contains(t, html, "<strong>Nothing</strong>")

	_, err = r.Render("nope", nil)
	assert.Error(t, err)
}
