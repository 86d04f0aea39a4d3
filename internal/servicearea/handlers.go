package servicearea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/mountly/mountly-backend/internal/geocoding"
	"github.com/mountly/mountly-backend/internal/utils"
	"github.com/mountly/mountly-backend/internal/zcta"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const maxSyncBody = 1 << 20

// ZipIndex is the server-side copy of the spatial index used to recompute
// postal codes and to resolve coordinates.
type ZipIndex interface {
	IsReady() bool
	ZipsInPolygon(ring []geo.Point, opts zcta.MatchOptions) ([]string, error)
	FindZipcodeAt(p geo.Point) (string, bool)
}

// Geocoder turns an address into a location and postal code.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocoding.Result, error)
}

type Handlers struct {
	store    Store
	index    ZipIndex
	cache    CoverageCache
	geocoder Geocoder
	match    zcta.MatchOptions
	log      *zap.Logger
}

// NewHandlers wires the HTTP layer. index and cache may be nil.
func NewHandlers(store Store, index ZipIndex, cache CoverageCache, match zcta.MatchOptions, log *zap.Logger) *Handlers {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{store: store, index: index, cache: cache, match: match, log: log}
}

// WithGeocoder enables coverage lookups by address.
func (h *Handlers) WithGeocoder(g Geocoder) *Handlers {
	h.geocoder = g
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// storeError maps store errors onto status codes.
func (h *Handlers) storeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Service area not found", http.StatusNotFound)
	case errors.Is(err, ErrWorkerMismatch):
		http.Error(w, "Forbidden: service area belongs to another worker", http.StatusForbidden)
	case errors.Is(err, ErrStaleSync):
		http.Error(w, "Conflict: a newer sync has already been applied", http.StatusConflict)
	default:
		h.log.Error(msg, zap.Error(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func validAreaID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "Invalid service area id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// validateSync checks a sync request and turns it into store input.
func validateSync(req areasync.SyncRequest) (SaveInput, error) {
	if req.WorkerID == "" {
		return SaveInput{}, errors.New("workerId is required")
	}
	if err := geo.ValidateRing(req.Polygon); err != nil {
		return SaveInput{}, fmt.Errorf("polygon: %w", err)
	}

	mode := req.Mode
	if mode == "" {
		mode = areasync.ModeCreate
		if req.AreaIDToUpdate != "" {
			mode = areasync.ModeUpdate
		}
	}
	switch mode {
	case areasync.ModeCreate:
		if req.AreaIDToUpdate != "" {
			return SaveInput{}, errors.New("areaIdToUpdate must be empty in create mode")
		}
	case areasync.ModeUpdate:
		if _, err := uuid.Parse(req.AreaIDToUpdate); err != nil {
			return SaveInput{}, errors.New("areaIdToUpdate must be a valid id in update mode")
		}
	default:
		return SaveInput{}, fmt.Errorf("unknown mode %q", req.Mode)
	}

	ts := req.SyncTimestamp
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	return SaveInput{
		AreaID:        req.AreaIDToUpdate,
		WorkerID:      req.WorkerID,
		AreaName:      NormalizeAreaName(req.AreaName),
		Polygon:       geo.OpenRing(req.Polygon),
		ZipCodes:      NormalizeZips(req.ZipCodes),
		SyncTimestamp: ts,
	}, nil
}

// Sync stores a worker's polygon. When the server index is ready the ZIP set
// is recomputed here and the client's set is only advisory.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	var req areasync.SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in, err := validateSync(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok && userID != in.WorkerID {
		http.Error(w, "Forbidden: cannot sync another worker's area", http.StatusForbidden)
		return
	}

	recomputed := false
	if h.index != nil && h.index.IsReady() {
		server, err := h.index.ZipsInPolygon(in.Polygon, h.match)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if missing, extra := lo.Difference(in.ZipCodes, server); len(missing) > 0 || len(extra) > 0 {
			h.log.Info("client zip set differs from server recomputation",
				zap.String("worker_id", in.WorkerID),
				zap.Int("client", len(in.ZipCodes)),
				zap.Int("server", len(server)),
				zap.Strings("client_only", missing),
				zap.Strings("server_only", extra))
		}
		in.ZipCodes = server
		recomputed = true
	}

	res, err := h.store.SaveArea(r.Context(), in)
	if err != nil {
		h.storeError(w, err, "Failed to save service area")
		return
	}
	h.cache.Invalidate(r.Context(), lo.Union(res.PreviousZips, in.ZipCodes)...)

	h.log.Info("service area saved",
		zap.String("area_id", res.Area.ID.String()),
		zap.String("worker_id", in.WorkerID),
		zap.Int("zips", len(in.ZipCodes)),
		zap.Bool("recomputed", recomputed))

	status := http.StatusOK
	if in.AreaID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, areasync.SyncResult{
		AreaID:     res.Area.ID.String(),
		ZipCodes:   in.ZipCodes,
		ZipCount:   len(in.ZipCodes),
		Recomputed: recomputed,
		SyncedAt:   res.Area.UpdatedAt,
	})
}

func (h *Handlers) GetArea(w http.ResponseWriter, r *http.Request) {
	id, ok := validAreaID(w, r)
	if !ok {
		return
	}
	area, err := h.store.GetArea(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "Failed to fetch service area")
		return
	}
	writeJSON(w, http.StatusOK, area)
}

// ListZips is the validation query the sync controller compares against.
func (h *Handlers) ListZips(w http.ResponseWriter, r *http.Request) {
	id, ok := validAreaID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetArea(r.Context(), id); err != nil {
		h.storeError(w, err, "Failed to fetch service area")
		return
	}
	zips, err := h.store.ListZips(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "Failed to fetch zip codes")
		return
	}
	writeJSON(w, http.StatusOK, areasync.ZipsResponse{AreaID: id, ZipCodes: zips, Count: len(zips)})
}

func (h *Handlers) UpdateArea(w http.ResponseWriter, r *http.Request) {
	id, ok := validAreaID(w, r)
	if !ok {
		return
	}
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		http.Error(w, "isActive is required", http.StatusBadRequest)
		return
	}
	userID, _ := utils.GetUserIDFromContext(r.Context())

	area, err := h.store.SetActive(r.Context(), id, userID, *body.IsActive)
	if err != nil {
		h.storeError(w, err, "Failed to update service area")
		return
	}
	if zips, err := h.store.ListZips(r.Context(), id); err == nil {
		h.cache.Invalidate(r.Context(), zips...)
	} else {
		h.log.Warn("could not load zips for cache invalidation", zap.String("area_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, area)
}

func (h *Handlers) DeleteArea(w http.ResponseWriter, r *http.Request) {
	id, ok := validAreaID(w, r)
	if !ok {
		return
	}
	userID, _ := utils.GetUserIDFromContext(r.Context())

	zips, err := h.store.DeleteArea(r.Context(), id, userID)
	if err != nil {
		h.storeError(w, err, "Failed to delete service area")
		return
	}
	h.cache.Invalidate(r.Context(), zips...)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListWorkerAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.store.ListAreasByWorker(r.Context(), chi.URLParam(r, "workerId"))
	if err != nil {
		h.storeError(w, err, "Failed to fetch service areas")
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

// Coverage answers whether an address is served, by ZIP, by coordinate or
// by free-form address when a geocoder is configured.
func (h *Handlers) Coverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zip := q.Get("zip")

	switch {
	case zip != "":
	case q.Get("address") != "":
		if h.geocoder == nil {
			http.Error(w, "Address lookup is not configured", http.StatusNotImplemented)
			return
		}
		res, err := h.geocoder.Geocode(r.Context(), q.Get("address"))
		switch {
		case err == nil:
			zip = res.Zip
		case errors.Is(err, geocoding.ErrNoZip):
			h.coverageAt(w, r, res.Location)
			return
		default:
			h.log.Warn("geocoding failed", zap.Error(err))
			http.Error(w, "Could not geocode address", http.StatusBadGateway)
			return
		}
	case q.Get("lat") != "" && q.Get("lng") != "":
		p, err := zcta.ParsePoint(q.Get("lat"), q.Get("lng"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.coverageAt(w, r, p)
		return
	default:
		http.Error(w, "zip, address or lat and lng are required", http.StatusBadRequest)
		return
	}
	h.coverageByZip(w, r, zip)
}

// coverageAt resolves p to a ZIP with the index, or asks PostGIS for the
// drawn polygons containing p when the index cannot answer.
func (h *Handlers) coverageAt(w http.ResponseWriter, r *http.Request, p geo.Point) {
	if h.index != nil && h.index.IsReady() {
		if zip, ok := h.index.FindZipcodeAt(p); ok {
			h.coverageByZip(w, r, zip)
			return
		}
	}
	providers, err := h.store.CoverageByPoint(r.Context(), p)
	if err != nil {
		h.storeError(w, err, "Failed to look up coverage")
		return
	}
	writeJSON(w, http.StatusOK, areasync.CoverageResponse{Covered: len(providers) > 0, Providers: providers})
}

func (h *Handlers) coverageByZip(w http.ResponseWriter, r *http.Request, zip string) {
	zip = zcta.NormalizeZip(zip)
	if len(zip) != 5 {
		http.Error(w, "zip must have 5 digits", http.StatusBadRequest)
		return
	}

	providers, hit := h.cache.Get(r.Context(), zip)
	if !hit {
		byZip, err := h.store.CoverageByZips(r.Context(), []string{zip})
		if err != nil {
			h.storeError(w, err, "Failed to look up coverage")
			return
		}
		providers = byZip[zip]
		if providers == nil {
			providers = []areasync.Provider{}
		}
		h.cache.Set(r.Context(), zip, providers)
	}
	writeJSON(w, http.StatusOK, areasync.CoverageResponse{Zip: zip, Covered: len(providers) > 0, Providers: providers})
}
