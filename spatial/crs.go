// Package spatial enriches records with the canton's geodata: polygon
// lookups, nearest streets, street-name repair and cached geocoding.
//
// Layers are held in LV95 (EPSG:2056), the canton's metric reference
// system. Conversions to and from WGS84 use swisstopo's approximate
// formulas, accurate to about a metre.
package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CRS is a coordinate reference system.
type CRS int

const (
	// WGS84 is EPSG:4326, points as (lon, lat).
	WGS84 CRS = iota
	// LV95 is EPSG:2056, points as (E, N) in metres.
	LV95
)

func (c CRS) String() string {
	if c == LV95 {
		return "EPSG:2056"
	}
	return "EPSG:4326"
}

// ToLV95 converts a WGS84 (lon, lat) point to LV95 (E, N).
func ToLV95(p orb.Point) orb.Point {
	phi := (p.Lat()*3600 - 169028.66) / 10000
	lambda := (p.Lon()*3600 - 26782.5) / 10000

	e := 2600072.37 +
		211455.93*lambda -
		10938.51*lambda*phi -
		0.36*lambda*phi*phi -
		44.54*lambda*lambda*lambda

	n := 1200147.07 +
		308807.95*phi +
		3745.25*lambda*lambda +
		76.63*phi*phi -
		194.56*lambda*lambda*phi +
		119.79*phi*phi*phi

	return orb.Point{e, n}
}

// ToWGS84 converts an LV95 (E, N) point to WGS84 (lon, lat).
func ToWGS84(p orb.Point) orb.Point {
	y := (p[0] - 2600000) / 1000000
	x := (p[1] - 1200000) / 1000000

	lambda := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y

	phi := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	return orb.Point{lambda * 100 / 36, phi * 100 / 36}
}

func projection(from, to CRS) orb.Projection {
	switch {
	case from == to:
		return nil
	case to == LV95:
		return ToLV95
	default:
		return ToWGS84
	}
}

// Project converts g between reference systems. g is not modified.
func Project(g orb.Geometry, from, to CRS) orb.Geometry {
	proj := projection(from, to)
	if proj == nil || g == nil {
		return g
	}
	return project.Geometry(orb.Clone(g), proj)
}

// ProjectPoints converts points between reference systems.
func ProjectPoints(points []orb.Point, from, to CRS) []orb.Point {
	out := make([]orb.Point, len(points))
	proj := projection(from, to)
	for i, p := range points {
		if proj == nil {
			out[i] = p
		} else {
			out[i] = proj(p)
		}
	}
	return out
}
