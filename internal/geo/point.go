// Package geo holds the pure geometry helpers behind service-area matching:
// ray-casting point-in-polygon, bounding boxes, Web-Mercator reprojection
// and centroids. Nothing in here keeps state.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrDegenerateRing is returned when a ring has fewer than 3 distinct vertices.
var ErrDegenerateRing = errors.New("ring needs at least 3 distinct vertices")

// Point is a drawn polygon vertex or a query location in geographic degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orb converts p to an orb point (x = lng, y = lat).
func (p Point) Orb() orb.Point { return orb.Point{p.Lng, p.Lat} }

// FromOrb converts an orb point back into a Point.
func FromOrb(p orb.Point) Point { return Point{Lat: p.Lat(), Lng: p.Lon()} }

// Valid reports whether p is a finite geographic coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return math.Abs(p.Lat) <= 90 && math.Abs(p.Lng) <= 180
}

// OpenRing drops a trailing vertex equal to the first one.
func OpenRing(ring []Point) []Point {
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		return ring[:n-1]
	}
	return ring
}

// ValidateRing checks that ring describes an area: at least 3 distinct,
// valid vertices once the closing vertex is dropped.
func ValidateRing(ring []Point) error {
	open := OpenRing(ring)
	if len(open) < 3 {
		return ErrDegenerateRing
	}
	seen := make(map[Point]struct{}, len(open))
	for _, p := range open {
		if !p.Valid() {
			return errors.New("ring contains an invalid coordinate")
		}
		seen[p] = struct{}{}
	}
	if len(seen) < 3 {
		return ErrDegenerateRing
	}
	return nil
}

// ToOrbRing converts a drawn ring into a closed orb ring.
func ToOrbRing(ring []Point) orb.Ring {
	open := OpenRing(ring)
	out := make(orb.Ring, 0, len(open)+1)
	for _, p := range open {
		out = append(out, p.Orb())
	}
	if len(out) > 0 {
		out = append(out, out[0])
	}
	return out
}
