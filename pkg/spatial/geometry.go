// Package spatial implements the extent commands: creating the extent table
// and deriving each dataset's extent geometry from its "spatial" extra.
package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidBBox is returned for bbox parameters that are not four ordered numbers.
var ErrInvalidBBox = errors.New("invalid bbox")

// ParseGeoJSON decodes a spatial extra value. It accepts a bare geometry, a
// Feature or a FeatureCollection (whose geometries are collected).
func ParseGeoJSON(value string) (orb.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(value), &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature([]byte(value))
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature has no geometry")
		}
		return f.Geometry, nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection([]byte(value))
		if err != nil {
			return nil, err
		}
		var collection orb.Collection
		for _, f := range fc.Features {
			if f.Geometry != nil {
				collection = append(collection, f.Geometry)
			}
		}
		if len(collection) == 0 {
			return nil, fmt.Errorf("feature collection has no geometries")
		}
		return collection, nil
	case "":
		return nil, fmt.Errorf("missing GeoJSON type")
	default:
		g, err := geojson.UnmarshalGeometry([]byte(value))
		if err != nil {
			return nil, err
		}
		if g.Geometry() == nil {
			return nil, fmt.Errorf("unsupported GeoJSON type %q", probe.Type)
		}
		return g.Geometry(), nil
	}
}

// ToWKT renders a geometry as well-known text for ST_GeomFromText.
func ToWKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// BoundWKT renders the bounding rectangle of a geometry as a WKT polygon.
func BoundWKT(b orb.Bound) string {
	return wkt.MarshalString(b.ToPolygon())
}

// ParseBBox reads "minx,miny,maxx,maxy". Coordinates must be numbers with
// minx <= maxx and miny <= maxy.
func ParseBBox(value string) (orb.Bound, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: expected 4 comma separated values, got %d", ErrInvalidBBox, len(parts))
	}

	var coords [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %q is not a number", ErrInvalidBBox, p)
		}
		coords[i] = f
	}

	if coords[0] > coords[2] || coords[1] > coords[3] {
		return orb.Bound{}, fmt.Errorf("%w: minimum greater than maximum", ErrInvalidBBox)
	}

	return orb.Bound{
		Min: orb.Point{coords[0], coords[1]},
		Max: orb.Point{coords[2], coords[3]},
	}, nil
}

// ParseCRS reads an "EPSG:<code>" reference. An empty value means 4326.
func ParseCRS(value string) (int, error) {
	if value == "" {
		return 4326, nil
	}
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(value)), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("unsupported crs %q, expected EPSG:<code>", value)
	}
	srid, err := strconv.Atoi(code)
	if err != nil || srid <= 0 {
		return 0, fmt.Errorf("unsupported crs %q, expected EPSG:<code>", value)
	}
	return srid, nil
}
