// Package feature holds the canonical campus feature collections and the
// merged search index built over them.
package feature

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Collection names a semantic group of features.
type Collection string

const (
	Buildings Collection = "buildings"
	Parcels   Collection = "parcels"
	Boundary  Collection = "boundary"
	Roads     Collection = "roads"
)

// Collections lists every collection in paint order, bottom first.
var Collections = []Collection{Boundary, Roads, Parcels, Buildings}

// Indexed reports whether features of c take part in the merged search index.
func (c Collection) Indexed() bool {
	return c == Buildings || c == Parcels
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", s)
}

// DataShapeError reports a feature the store cannot accept.
type DataShapeError struct {
	Collection Collection
	Index      int
	ID         string
	Reason     string
}

func (e *DataShapeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s[%d] (id %s): %s", e.Collection, e.Index, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s[%d]: %s", e.Collection, e.Index, e.Reason)
}

// ID returns the canonical id of f: the "id" property, falling back to the
// GeoJSON top-level id. Numeric ids are normalised to their decimal form.
func ID(f *geojson.Feature) (string, bool) {
	if f == nil {
		return "", false
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return normalizeID(v)
	}
	if f.ID != nil {
		return normalizeID(f.ID)
	}
	return "", false
}

func normalizeID(v any) (string, bool) {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case float64:
		s = strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		s = strconv.Itoa(n)
	case int64:
		s = strconv.FormatInt(n, 10)
	case json.Number:
		s = n.String()
	default:
		s = fmt.Sprint(n)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Name returns the "name" property of f, or "" when absent.
func Name(f *geojson.Feature) string {
	if f == nil {
		return ""
	}
	name, _ := f.Properties["name"].(string)
	return name
}

// validate checks that f can live in the store.
func validate(c Collection, i int, f *geojson.Feature) (string, error) {
	if f == nil {
		return "", &DataShapeError{Collection: c, Index: i, Reason: "nil feature"}
	}
	id, ok := ID(f)
	if !ok {
		return "", &DataShapeError{Collection: c, Index: i, Reason: "missing id"}
	}
	if f.Geometry == nil {
		return "", &DataShapeError{Collection: c, Index: i, ID: id, Reason: "missing geometry"}
	}
	switch f.Geometry.GeoJSONType() {
	case "Polygon", "MultiPolygon", "LineString", "MultiLineString":
	default:
		return "", &DataShapeError{Collection: c, Index: i, ID: id,
			Reason: "unsupported geometry " + f.Geometry.GeoJSONType()}
	}
	return id, nil
}

// Filter returns the features of fc whose name contains term, ignoring case.
// An empty term keeps every feature. fc is never modified.
func Filter(fc *geojson.FeatureCollection, term string) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	needle := strings.ToLower(term)
	for _, f := range fc.Features {
		if needle == "" || strings.Contains(strings.ToLower(Name(f)), needle) {
			out.Append(f)
		}
	}
	return out
}
