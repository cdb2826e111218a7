package selection

import (
	"fmt"

	"github.com/paulmach/orb"
)

// GeometryExtractionError means a selected feature has no usable fly-to
// target. The selection stands; the camera does not move.
type GeometryExtractionError struct {
	ID     string
	Reason string
}

func (e *GeometryExtractionError) Error() string {
	return fmt.Sprintf("feature %s: no fly-to target: %s", e.ID, e.Reason)
}

// FlyTarget returns the point the camera centers on for g: the first
// coordinate of the outer ring for polygons, the first vertex for lines.
func FlyTarget(id string, g orb.Geometry) (orb.Point, error) {
	switch geom := g.(type) {
	case nil:
		return orb.Point{}, &GeometryExtractionError{ID: id, Reason: "no geometry"}
	case orb.Point:
		return geom, nil
	case orb.Polygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0][0], nil
		}
		return orb.Point{}, &GeometryExtractionError{ID: id, Reason: "empty outer ring"}
	case orb.MultiPolygon:
		if len(geom) > 0 {
			return FlyTarget(id, geom[0])
		}
	case orb.LineString:
		if len(geom) > 0 {
			return geom[0], nil
		}
	case orb.MultiLineString:
		if len(geom) > 0 {
			return FlyTarget(id, geom[0])
		}
	default:
		return orb.Point{}, &GeometryExtractionError{ID: id, Reason: "unsupported geometry " + g.GeoJSONType()}
	}
	return orb.Point{}, &GeometryExtractionError{ID: id, Reason: "empty " + g.GeoJSONType()}
}
