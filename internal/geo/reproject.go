package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the spherical Web-Mercator radius in meters.
const EarthRadius = 6378137.0

// IsProjected guesses whether (x, y) is a Web-Mercator coordinate rather
// than longitude/latitude degrees.
func IsProjected(x, y float64) bool {
	return math.Abs(x) > 180 || math.Abs(y) > 90
}

// MercatorToGeographic applies the spherical Web-Mercator inverse and
// returns (lng, lat).
func MercatorToGeographic(x, y float64) (float64, float64) {
	lng := x * 180 / (math.Pi * EarthRadius)
	lat := math.Atan(math.Sinh(y/EarthRadius)) * 180 / math.Pi
	return lng, lat
}

// ToGeographic reprojects (x, y) only when it looks projected, so calling it
// on a geographic coordinate returns it unchanged.
func ToGeographic(x, y float64) (float64, float64) {
	if !IsProjected(x, y) {
		return x, y
	}
	return MercatorToGeographic(x, y)
}

// HasProjected reports whether any vertex of a multi-polygon looks projected.
func HasProjected(mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			for _, pt := range ring {
				if IsProjected(pt[0], pt[1]) {
					return true
				}
			}
		}
	}
	return false
}

// ReprojectMultiPolygon converts every vertex of a projected feature in
// place. A feature is treated as one coordinate system, so vertices that
// happen to sit near the projection origin are converted too. It reports
// false if any result is not a valid geographic coordinate.
func ReprojectMultiPolygon(mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			for i, pt := range ring {
				lng, lat := MercatorToGeographic(pt[0], pt[1])
				if !(Point{Lat: lat, Lng: lng}).Valid() {
					return false
				}
				ring[i] = orb.Point{lng, lat}
			}
		}
	}
	return true
}
