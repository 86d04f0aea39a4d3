package zcta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// maxBoundsSpan caps viewport queries, in degrees per side.
const maxBoundsSpan = 10.0

type handlers struct {
	ix  *Index
	log *zap.Logger
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// markLoading tells clients the empty answer is because the index is still
// being built, not because nothing matched.
func (h handlers) markLoading(w http.ResponseWriter) {
	if !h.ix.IsReady() {
		w.Header().Set("X-Data-Status", string(h.ix.Status()))
		w.Header().Set("Retry-After", "5")
	}
}

func (h handlers) status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status":   h.ix.Status(),
		"ready":    h.ix.IsReady(),
		"features": h.ix.Len(),
	}
	if at := h.ix.LoadedAt(); !at.IsZero() {
		out["loadedAt"] = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, out)
}

func (h handlers) bounds(w http.ResponseWriter, r *http.Request) {
	b, err := ParseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.markLoading(w)
	zips := h.ix.FindZipcodesInBounds(b)
	writeJSON(w, map[string]any{"zipCodes": zips, "count": len(zips), "ready": h.ix.IsReady()})
}

func (h handlers) boundary(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ix.GetZipcodeBoundary(chi.URLParam(r, "zip"))
	if !ok {
		h.markLoading(w)
		http.Error(w, "ZIP code boundary not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = json.NewEncoder(w).Encode(f.GeoJSON())
}

func (h handlers) at(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePoint(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zip, ok := h.ix.FindZipcodeAt(p)
	if !ok {
		h.markLoading(w)
		http.Error(w, "No ZIP code at that location", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"zip": zip})
}

func (h handlers) reload(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.ix.Load(context.Background(), true); err != nil {
			h.log.Error("forced zcta reload failed", zap.Error(err))
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(StatusLoading)})
}

// SetupRoutes mounts the index endpoints. admin guards the reload route.
func SetupRoutes(ix *Index, admin func(http.Handler) http.Handler, log *zap.Logger) http.Handler {
	h := handlers{ix: ix, log: log}
	r := chi.NewRouter()

	r.Get("/status", h.status)
	r.Get("/bounds", h.bounds)
	r.Get("/at", h.at)
	r.Get("/{zip}", h.boundary)

	r.Group(func(r chi.Router) {
		if admin != nil {
			r.Use(admin)
		}
		r.Post("/reload", h.reload)
	})
	return r
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must have 4 comma-separated values")
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox value %q", part)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if !geo.FromOrb(b.Min).Valid() || !geo.FromOrb(b.Max).Valid() {
		return orb.Bound{}, fmt.Errorf("bbox must be in longitude/latitude degrees")
	}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return orb.Bound{}, fmt.Errorf("bbox min values must not exceed max values")
	}
	if b.Max[0]-b.Min[0] > maxBoundsSpan || b.Max[1]-b.Min[1] > maxBoundsSpan {
		return orb.Bound{}, fmt.Errorf("bbox may span at most %.0f degrees per side", maxBoundsSpan)
	}
	return b, nil
}

// ParsePoint parses lat/lng query values.
func ParsePoint(latStr, lngStr string) (geo.Point, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid lat %q", latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid lng %q", lngStr)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("coordinate out of range")
	}
	return p, nil
}
