package geo

import "github.com/paulmach/orb"

// PointInRing reports whether p falls inside ring using ray casting with
// x = longitude and y = latitude.
//
// Edges are half-open in y ((yi > y) != (yj > y)) and the crossing test is a
// strict x < xIntersect, so a point on a shared vertex is counted once.
// The resulting tie-break: points on the lower or left boundary of a ring
// are inside, points on the upper or right boundary are outside. For the
// unit square only the (0,0) corner is inside.
//
// Rings with fewer than 3 vertices (after dropping a closing vertex) are
// never matched.
func PointInRing(p Point, ring []Point) bool {
	ring = OpenRing(ring)
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lng, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// pointInOrbRing is PointInRing over an orb ring, skipping the conversion.
func pointInOrbRing(p Point, ring orb.Ring) bool {
	n := len(ring)
	if n > 1 && ring[0].Equal(ring[n-1]) {
		n--
	}
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lng, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PointInPolygon tests the outer ring and excludes holes.
func PointInPolygon(p Point, poly orb.Polygon) bool {
	if len(poly) == 0 || !pointInOrbRing(p, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if pointInOrbRing(p, hole) {
			return false
		}
	}
	return true
}

// PointInMultiPolygon is true when any member polygon contains p.
func PointInMultiPolygon(p Point, mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		if PointInPolygon(p, poly) {
			return true
		}
	}
	return false
}
