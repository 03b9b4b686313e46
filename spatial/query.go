package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PointInPolygon returns, for each point, the value of attribute on the
// polygon of layer containing it, or nil when no polygon does. points are
// in crs.
func PointInPolygon(points []orb.Point, crs CRS, layer *Layer, attribute string) []*string {
	pts := ProjectPoints(points, crs, layer.CRS)
	out := make([]*string, len(pts))

	for i, p := range pts {
		for _, f := range layer.Features {
			if f.Geometry == nil || !f.Geometry.Bound().Contains(p) {
				continue
			}
			if contains(f.Geometry, p) {
				v := f.Properties[attribute]
				out[i] = &v
				break
			}
		}
	}
	return out
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p)
	case orb.Ring:
		return planar.RingContains(v, p)
	default:
		return false
	}
}

// StreetMatch is the street closest to a point.
type StreetMatch struct {
	Name     string
	Geometry orb.Geometry
	// Distance is in metres.
	Distance float64
}

// NearestStreet returns, for each point, the closest line feature of
// streets named by its nameAttribute. A point gets nil when the layer has
// no lines.
func NearestStreet(points []orb.Point, crs CRS, streets *Layer, nameAttribute string) []*StreetMatch {
	metric := streets.Project(LV95)
	pts := ProjectPoints(points, crs, LV95)
	out := make([]*StreetMatch, len(pts))

	for i, p := range pts {
		best := math.Inf(1)
		for _, f := range metric.Features {
			switch f.Geometry.(type) {
			case orb.LineString, orb.MultiLineString:
			default:
				continue
			}

			d := planar.DistanceFrom(f.Geometry, p)
			if d < best {
				best = d
				out[i] = &StreetMatch{
					Name:     f.Properties[nameAttribute],
					Geometry: Project(f.Geometry, LV95, crs),
					Distance: d,
				}
			}
		}
	}
	return out
}
