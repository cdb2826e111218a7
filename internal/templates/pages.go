package templates

import (
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/service"
)

// PageData is rendered into the "page" template.
type PageData struct {
	Title     string
	SessionID string
	Style     string
	Styles    []service.Style
	Authoring bool
	Center    [2]float64
	Zoom      float64
}

// FeatureData is a feature as the detail panel and search results show it.
type FeatureData struct {
	SessionID  string
	ID         string
	Name       string
	Properties map[string]any
}

// NewFeatureData flattens f for rendering.
func NewFeatureData(sessionID string, f *geojson.Feature) FeatureData {
	id, _ := feature.ID(f)
	return FeatureData{
		SessionID:  sessionID,
		ID:         id,
		Name:       feature.Name(f),
		Properties: map[string]any(f.Properties),
	}
}
