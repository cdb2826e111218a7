// Package service contains the data provider and configuration services
// behind the campus map.
package service

// PaintConfig is the paint for one collection's layers. Huma reads the tags
// for OpenAPI and validation.
type PaintConfig struct {
	Collection string  `json:"collection,omitempty" doc:"Collection the paint applies to" example:"buildings"`
	Fill       string  `json:"fill,omitempty" doc:"Fill color (CSS)" example:"#3388ff" default:"#3388ff"`
	Stroke     string  `json:"stroke,omitempty" doc:"Outline or line color (CSS)" example:"#2266cc" default:"#2266cc"`
	Opacity    float64 `json:"opacity,omitempty" minimum:"0" maximum:"1" default:"0.7" doc:"Fill opacity (0-1)" example:"0.7"`
	Width      float64 `json:"width,omitempty" minimum:"0" maximum:"20" default:"1" doc:"Outline or line width in pixels" example:"1.5"`
}

// Style is a selectable base map style.
type Style struct {
	ID   string `json:"id" yaml:"id" doc:"Style identifier" example:"streets"`
	Name string `json:"name" yaml:"name" doc:"Display name" example:"Streets"`
	URI  string `json:"uri" yaml:"uri" doc:"Style JSON URL" example:"https://demotiles.maplibre.org/style.json"`
}

// SourceFile is a GeoJSON file backing one collection.
type SourceFile struct {
	Collection string `json:"collection" doc:"Collection loaded from the file" example:"buildings"`
	Name       string `json:"name" doc:"File name" example:"buildings.geojson"`
	Size       string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	Features   int    `json:"features" doc:"Number of features loaded" example:"42"`
}
