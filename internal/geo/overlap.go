package geo

import "github.com/paulmach/orb"

// DefaultOverlapGrid is the lattice size used by OverlapRatio when grid <= 0.
const DefaultOverlapGrid = 12

// OverlapRatio estimates how much of a feature lies inside a drawn ring.
// It samples the centers of a grid×grid lattice over the feature's bound and
// returns (samples inside feature and ring) / (samples inside feature).
// Features too thin to catch any sample fall back to testing their centroid,
// giving 0 or 1.
func OverlapRatio(feature orb.MultiPolygon, bound orb.Bound, ring []Point, grid int) float64 {
	if grid <= 0 {
		grid = DefaultOverlapGrid
	}
	if len(OpenRing(ring)) < 3 {
		return 0
	}
	ringBound := BoundOfRing(ring)
	if !Overlaps(bound, ringBound) {
		return 0
	}

	dx := (bound.Max[0] - bound.Min[0]) / float64(grid)
	dy := (bound.Max[1] - bound.Min[1]) / float64(grid)
	inFeature, inBoth := 0, 0
	for i := 0; i < grid; i++ {
		for j := 0; j < grid; j++ {
			p := Point{
				Lng: bound.Min[0] + (float64(i)+0.5)*dx,
				Lat: bound.Min[1] + (float64(j)+0.5)*dy,
			}
			if !PointInMultiPolygon(p, feature) {
				continue
			}
			inFeature++
			if Contains(ringBound, p) && PointInRing(p, ring) {
				inBoth++
			}
		}
	}
	if inFeature == 0 {
		c, ok := Centroid(feature)
		if ok && PointInRing(c, ring) {
			return 1
		}
		return 0
	}
	return float64(inBoth) / float64(inFeature)
}
