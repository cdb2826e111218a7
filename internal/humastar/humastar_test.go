package humastar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"term":"lab","x":12.5,"entered":true,"n":3,"features":{"type":"FeatureCollection","features":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, "lab", s.String("term"))
	assert.Equal(t, 12.5, s.Float("x"))
	assert.True(t, s.Bool("entered"))
	assert.False(t, s.Has("missing"))
	assert.Equal(t, "", s.String("x"))

	var fc struct {
		Type string `json:"type"`
	}
	require.NoError(t, s.Decode("features", &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)

	empty, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = (&SignalsInput{RawBody: []byte("{")}).MustParse()
	assert.Error(t, err)
	got, err := (&SignalsInput{RawBody: []byte(`{"style":"dark"}`)}).MustParse()
	require.NoError(t, err)
	assert.Equal(t, "dark", got.String("style"))
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Page(items, 2, 2)
	assert.Equal(t, []int{3, 4}, p.Data)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, []string{
		`</api/v1/search?q=a&offset=0&limit=2>; rel="first"`,
		`</api/v1/search?q=a&offset=0&limit=2>; rel="prev"`,
		`</api/v1/search?q=a&offset=4&limit=2>; rel="next"`,
		`</api/v1/search?q=a&offset=4&limit=2>; rel="last"`,
	}, p.PaginationLinks("/api/v1/search?q=a"))

	beyond := Page(items, 10, 0)
	assert.Empty(t, beyond.Data)
	assert.Equal(t, 20, beyond.Limit)

	none := Page([]int{}, 0, 5)
	assert.Equal(t, []string{
		`</s?offset=0&limit=5>; rel="first"`,
		`</s?offset=0&limit=5>; rel="last"`,
	}, none.PaginationLinks("/s"))
}

type actor []Action

func (a actor) Actions() []Action { return a }

func TestActions(t *testing.T) {
	acts := ActionsFor("42", []ActionDef{
		{Rel: "clear", Pattern: "/api/v1/map/%s/clear", Method: "POST", Title: "Clear selection"},
		{Rel: "stream", Pattern: "/api/v1/map/%s/stream"},
	})
	assert.Equal(t, []string{
		`</api/v1/map/42/clear>; rel="clear"; method="POST"; title="Clear selection"`,
		`</api/v1/map/42/stream>; rel="stream"`,
	}, LinkHeaders(actor(acts)))
}
