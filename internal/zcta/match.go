package zcta

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mountly/mountly-backend/internal/geo"
)

var ErrInvalidPolygon = errors.New("invalid service area polygon")

// MatchMode selects how a ZIP is assigned to a drawn polygon.
type MatchMode string

const (
	// MatchCentroid includes a ZIP when its centroid falls inside the polygon.
	MatchCentroid MatchMode = "centroid"
	// MatchIntersection includes a ZIP when at least MinOverlapRatio of its
	// area lies inside the polygon.
	MatchIntersection MatchMode = "intersection"
)

// MatchOptions tunes ZipsInPolygon. The zero value is centroid containment.
type MatchOptions struct {
	Mode MatchMode `json:"mode,omitempty"`
	// MinOverlapRatio in (0,1]; zero means any overlap.
	MinOverlapRatio float64 `json:"minOverlapRatio,omitempty"`
	// Grid is the sampling lattice size for intersection mode.
	Grid int `json:"grid,omitempty"`
}

// ZipsInPolygon returns the sorted ZIPs assigned to a drawn ring.
func (ix *Index) ZipsInPolygon(ring []geo.Point, opts MatchOptions) ([]string, error) {
	if err := geo.ValidateRing(ring); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	s := ix.snap.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s.ZipsInPolygon(ring, opts), nil
}

// ZipsInPolygon prunes by bounding box, then runs the exact test per mode.
func (s *Snapshot) ZipsInPolygon(ring []geo.Point, opts MatchOptions) []string {
	bound := geo.BoundOfRing(ring)
	out := []string{}
	for i := range s.Features {
		f := &s.Features[i]
		if !geo.Overlaps(f.Bound, bound) {
			continue
		}
		switch opts.Mode {
		case MatchIntersection:
			ratio := geo.OverlapRatio(f.Geometry, f.Bound, ring, opts.Grid)
			if ratio > 0 && ratio >= opts.MinOverlapRatio {
				out = append(out, f.PostalCode)
			}
		default:
			if geo.Contains(bound, f.Centroid) && geo.PointInRing(f.Centroid, ring) {
				out = append(out, f.PostalCode)
			}
		}
	}
	sort.Strings(out)
	return out
}
