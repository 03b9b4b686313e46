package spatial

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/xerrors"
)

// WriteGeoJSON writes points and their properties as a WGS84
// FeatureCollection. properties may be nil or must match points in length.
func WriteGeoJSON(path string, points []orb.Point, crs CRS, properties []map[string]any) error {
	if properties != nil && len(properties) != len(points) {
		return xerrors.Errorf("%d points but %d property sets", len(points), len(properties))
	}

	fc := geojson.NewFeatureCollection()
	for i, p := range ProjectPoints(points, crs, WGS84) {
		f := geojson.NewFeature(p)
		if properties != nil {
			for k, v := range properties[i] {
				f.Properties[k] = v
			}
		}
		fc.Append(f)
	}

	b, err := fc.MarshalJSON()
	if err != nil {
		return xerrors.Errorf("failed to encode feature collection: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return xerrors.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
