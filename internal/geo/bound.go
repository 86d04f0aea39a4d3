package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// emptyBound is inverted so the first extend sets both corners.
var emptyBound = orb.Bound{
	Min: orb.Point{math.Inf(1), math.Inf(1)},
	Max: orb.Point{math.Inf(-1), math.Inf(-1)},
}

// BoundOf walks every ring of a polygon or multi-polygon, holes and all.
// Other geometry types fall back to orb's own bound.
func BoundOf(g orb.Geometry) orb.Bound {
	b := emptyBound
	switch t := g.(type) {
	case orb.Polygon:
		b = extendPolygon(b, t)
	case orb.MultiPolygon:
		for _, poly := range t {
			b = extendPolygon(b, poly)
		}
	case nil:
		return orb.Bound{}
	default:
		return g.Bound()
	}
	if math.IsInf(b.Min[0], 0) {
		return orb.Bound{}
	}
	return b
}

func extendPolygon(b orb.Bound, poly orb.Polygon) orb.Bound {
	for _, ring := range poly {
		for _, pt := range ring {
			b.Min[0] = math.Min(b.Min[0], pt[0])
			b.Min[1] = math.Min(b.Min[1], pt[1])
			b.Max[0] = math.Max(b.Max[0], pt[0])
			b.Max[1] = math.Max(b.Max[1], pt[1])
		}
	}
	return b
}

// BoundOfRing returns the (minLng, minLat, maxLng, maxLat) box of a drawn ring.
func BoundOfRing(ring []Point) orb.Bound {
	if len(ring) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: ring[0].Orb(), Max: ring[0].Orb()}
	for _, p := range ring[1:] {
		b = b.Extend(p.Orb())
	}
	return b
}

// Overlaps reports whether two axis-aligned boxes share any area or edge.
// Boxes overlap unless one lies entirely left, right, above or below the other.
func Overlaps(a, b orb.Bound) bool {
	if a.Max[0] < b.Min[0] || a.Min[0] > b.Max[0] {
		return false
	}
	if a.Max[1] < b.Min[1] || a.Min[1] > b.Max[1] {
		return false
	}
	return true
}

// Contains reports whether p lies within b, edges included.
func Contains(b orb.Bound, p Point) bool {
	return p.Lng >= b.Min[0] && p.Lng <= b.Max[0] && p.Lat >= b.Min[1] && p.Lat <= b.Max[1]
}
