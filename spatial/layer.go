package spatial

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"golang.org/x/xerrors"
)

// Feature is a geometry with its attribute values.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]string
}

// Layer is a set of features in one reference system.
type Layer struct {
	CRS      CRS
	Features []Feature
}

// Project returns a copy of the layer in crs.
func (l *Layer) Project(crs CRS) *Layer {
	if l.CRS == crs {
		return l
	}

	out := &Layer{CRS: crs, Features: make([]Feature, len(l.Features))}
	for i, f := range l.Features {
		out.Features[i] = Feature{Geometry: Project(f.Geometry, l.CRS, crs), Properties: f.Properties}
	}
	return out
}

// Boundary returns the layer's polygons in WGS84, e.g. the canton outline
// for NewGeocoder.
func (l *Layer) Boundary() orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, f := range l.Project(WGS84).Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	return mp
}

// ErrNoAttributes is returned for shapefiles without a readable .dbf.
var ErrNoAttributes = errors.New("shapefile has no attributes")

// LoadShapefile reads a shapefile into a Layer. The reference system is
// taken from the .prj sidecar when present, otherwise guessed from the
// coordinate range. The .dbf sidecar must exist and declare fields.
func LoadShapefile(path string) (*Layer, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + ".dbf"); err != nil {
		return nil, xerrors.Errorf("%s (%v): %w", path, err, ErrNoAttributes)
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	if len(fields) == 0 {
		return nil, xerrors.Errorf("%s: %w", path, ErrNoAttributes)
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimSpace(f.String())
	}

	layer := &Layer{}
	var bound orb.Bound
	first := true

	for r.Next() {
		row, shape := r.Shape()

		g, err := toGeometry(shape)
		if err != nil {
			return nil, xerrors.Errorf("row %d of %s: %w", row, path, err)
		}

		props := make(map[string]string, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(r.ReadAttribute(row, i))
		}

		if g != nil {
			if first {
				bound = g.Bound()
				first = false
			} else {
				bound = bound.Union(g.Bound())
			}
		}

		layer.Features = append(layer.Features, Feature{Geometry: g, Properties: props})
	}
	if err := r.Err(); err != nil {
		return nil, xerrors.Errorf("failed to read shapefile %s: %w", path, err)
	}

	layer.CRS = detectCRS(strings.TrimSuffix(path, ".shp")+".prj", bound)
	return layer, nil
}

func detectCRS(prjPath string, bound orb.Bound) CRS {
	if b, err := os.ReadFile(prjPath); err == nil {
		prj := strings.ToUpper(string(b))
		if strings.Contains(prj, "CH1903+") || strings.Contains(prj, "LV95") || strings.Contains(prj, "2056") {
			return LV95
		}
		return WGS84
	}
	if bound.Max[0] > 180 || bound.Max[1] > 90 {
		return LV95
	}
	return WGS84
}

func toGeometry(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{v.X, v.Y}, nil
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(v.Points))
		for i, p := range v.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp, nil
	case *shp.PolyLine:
		parts := splitParts(v.Parts, v.Points)
		if len(parts) == 1 {
			return orb.LineString(parts[0]), nil
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls, nil
	case *shp.Polygon:
		return polygons(splitParts(v.Parts, v.Points)), nil
	default:
		return nil, xerrors.Errorf("unsupported shape type %T", s)
	}
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		ring := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		out = append(out, ring)
	}
	return out
}

// polygons groups shapefile rings: outer rings are clockwise and start a new
// polygon, counter-clockwise rings are holes of the preceding outer ring.
func polygons(rings [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, pts := range rings {
		r := orb.Ring(pts)
		if len(mp) == 0 || r.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{r})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], r)
	}

	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
