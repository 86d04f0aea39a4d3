package zcta

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// postalCodeKeys are the property names checked, in order, for a feature's
// ZIP. Census ZCTA releases, TIGER extracts and hand-built files disagree.
var postalCodeKeys = []string{
	"ZCTA5CE20", "ZCTA5CE10", "GEOID20", "GEOID10", "ZCTA5",
	"ZIP", "zip", "zipcode", "postalCode", "postal_code",
}

var (
	errMissingPostalCode = errors.New("no postal code property")
	errUnsupportedGeom   = errors.New("geometry is not a polygon or multipolygon")
	errEmptyGeom         = errors.New("geometry has no usable rings")
	errBadReprojection   = errors.New("projected coordinates did not reproject to valid lon/lat")
)

// Feature is one ZIP code boundary. It is never modified once indexed.
type Feature struct {
	PostalCode string
	Geometry   orb.MultiPolygon
	Bound      orb.Bound
	Centroid   geo.Point
}

// GeoJSON renders the feature for API responses.
func (f *Feature) GeoJSON() *geojson.Feature {
	out := geojson.NewFeature(f.Geometry)
	out.ID = f.PostalCode
	out.Properties["zip"] = f.PostalCode
	out.Properties["centroid"] = f.Centroid
	out.BBox = geojson.NewBBox(f.Bound)
	return out
}

// NormalizeZip strips non-digits and truncates to 5 characters.
// "60614-1234" becomes "60614". Shorter inputs are returned as-is and will
// simply not match anything.
func NormalizeZip(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	return b.String()
}

func postalCodeOf(props geojson.Properties) string {
	for _, key := range postalCodeKeys {
		switch v := props[key].(type) {
		case string:
			if z := NormalizeZip(v); len(z) == 5 {
				return z
			}
		case float64:
			// numeric properties lose leading zeros (06001 -> 6001)
			if v >= 0 && v < 100000 && v == math.Trunc(v) {
				return fmt.Sprintf("%05d", int(v))
			}
		}
	}
	return ""
}

// buildFeature validates and cleans one decoded GeoJSON feature.
func buildFeature(data []byte) (Feature, error) {
	raw, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return Feature{}, fmt.Errorf("decode feature: %w", err)
	}
	code := postalCodeOf(raw.Properties)
	if code == "" {
		return Feature{}, errMissingPostalCode
	}

	var mp orb.MultiPolygon
	switch g := raw.Geometry.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return Feature{}, fmt.Errorf("zip %s: %w", code, errUnsupportedGeom)
	}
	mp = dropEmptyPolygons(mp)
	if len(mp) == 0 {
		return Feature{}, fmt.Errorf("zip %s: %w", code, errEmptyGeom)
	}

	if geo.HasProjected(mp) && !geo.ReprojectMultiPolygon(mp) {
		return Feature{}, fmt.Errorf("zip %s: %w", code, errBadReprojection)
	}

	centroid, ok := geo.Centroid(mp)
	if !ok {
		return Feature{}, fmt.Errorf("zip %s: %w", code, errEmptyGeom)
	}
	return Feature{
		PostalCode: code,
		Geometry:   mp,
		Bound:      geo.BoundOf(mp),
		Centroid:   centroid,
	}, nil
}

// dropEmptyPolygons removes polygons whose outer ring cannot enclose area.
func dropEmptyPolygons(mp orb.MultiPolygon) orb.MultiPolygon {
	out := mp[:0]
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		outer := poly[0]
		n := len(outer)
		if n > 1 && outer[0].Equal(outer[n-1]) {
			n--
		}
		if n < 3 {
			continue
		}
		out = append(out, poly)
	}
	return out
}

// Snapshot is a fully built index. It is shared read-only by every reader
// and replaced wholesale on reload.
type Snapshot struct {
	Features []Feature
	LoadedAt time.Time

	byZip map[string]int
}

func newSnapshot(features []Feature, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		Features: features,
		LoadedAt: loadedAt,
		byZip:    make(map[string]int, len(features)),
	}
	for i := range features {
		s.byZip[features[i].PostalCode] = i
	}
	return s
}

// Lookup returns the feature for an already normalized ZIP.
func (s *Snapshot) Lookup(zip string) (*Feature, bool) {
	i, ok := s.byZip[zip]
	if !ok {
		return nil, false
	}
	return &s.Features[i], true
}

// InBounds lists ZIPs whose bounding box overlaps b, sorted.
func (s *Snapshot) InBounds(b orb.Bound) []string {
	out := []string{}
	for i := range s.Features {
		if geo.Overlaps(s.Features[i].Bound, b) {
			out = append(out, s.Features[i].PostalCode)
		}
	}
	sort.Strings(out)
	return out
}

// At returns the ZIP whose boundary contains p.
func (s *Snapshot) At(p geo.Point) (string, bool) {
	for i := range s.Features {
		f := &s.Features[i]
		if !geo.Contains(f.Bound, p) {
			continue
		}
		if geo.PointInMultiPolygon(p, f.Geometry) {
			return f.PostalCode, true
		}
	}
	return "", false
}
