package geo

import "github.com/paulmach/orb"

// Centroid is the vertex mean of every outer ring of mp, closing vertices
// excluded. It is the representative point used for centroid-containment
// matching. The second result is false when mp has no usable vertices.
func Centroid(mp orb.MultiPolygon) (Point, bool) {
	var sumLng, sumLat float64
	n := 0
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		ring := poly[0]
		m := len(ring)
		if m > 1 && ring[0].Equal(ring[m-1]) {
			m--
		}
		for _, pt := range ring[:m] {
			sumLng += pt[0]
			sumLat += pt[1]
			n++
		}
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}, true
}

// RingCentroid is the vertex mean of a drawn ring.
func RingCentroid(ring []Point) (Point, bool) {
	ring = OpenRing(ring)
	if len(ring) == 0 {
		return Point{}, false
	}
	var c Point
	for _, p := range ring {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	c.Lat /= float64(len(ring))
	c.Lng /= float64(len(ring))
	return c, true
}
