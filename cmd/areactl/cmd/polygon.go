package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mountly/mountly-backend/internal/geo"
)

func readPolygon(path string) ([]geo.Point, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return parsePolygon(data)
}

// parsePolygon accepts a vertex array or a GeoJSON Polygon, Feature or
// single-polygon MultiPolygon. Only the outer ring is used.
func parsePolygon(data []byte) ([]geo.Point, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty polygon")
	}
	if data[0] == '[' {
		var pts []geo.Point
		if err := json.Unmarshal(data, &pts); err != nil {
			return nil, fmt.Errorf("parse vertices: %w", err)
		}
		return pts, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse polygon: %w", err)
	}

	var g orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature: %w", err)
		}
		g = f.Geometry
	default:
		gg, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		g = gg.Geometry()
	}

	var ring orb.Ring
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			ring = v[0]
		}
	case orb.MultiPolygon:
		if len(v) != 1 {
			return nil, fmt.Errorf("multipolygon must hold exactly one polygon, got %d", len(v))
		}
		if len(v[0]) > 0 {
			ring = v[0][0]
		}
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}

	pts := make([]geo.Point, len(ring))
	for i, p := range ring {
		pts[i] = geo.FromOrb(p)
	}
	return geo.OpenRing(pts), nil
}
