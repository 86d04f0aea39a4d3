package servicearea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/mountly/mountly-backend/internal/geocoding"
	"github.com/mountly/mountly-backend/internal/middleware"
	"github.com/mountly/mountly-backend/internal/utils"
	"github.com/mountly/mountly-backend/internal/zcta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cookieSessions treats the session cookie value as the user ID.
type cookieSessions struct{}

func (cookieSessions) FindSessionByID(id string) (utils.SessionData, error) {
	if id == "" {
		return utils.SessionData{}, errors.New("no session")
	}
	return utils.SessionData{UserID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

var square = []geo.Point{
	{Lat: 41.4, Lng: -88.1}, {Lat: 41.4, Lng: -87.1}, {Lat: 42.4, Lng: -87.1}, {Lat: 42.4, Lng: -88.1},
}

type testServer struct {
	store *memStore
	cache *recordingCache
	h     http.Handler
}

func newTestServer(index ZipIndex, limiter *middleware.RateLimiter) *testServer {
	store := newMemStore()
	cache := newRecordingCache()
	h := NewHandlers(store, index, cache, zcta.MatchOptions{}, nil)
	return &testServer{store: store, cache: cache, h: SetupRoutes(h, cookieSessions{}, limiter)}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: user})
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSync_RecomputesWithServerIndex(t *testing.T) {
	s := newTestServer(stubIndex{ready: true, zips: []string{"60614", "60657"}}, nil)

	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1",
		AreaName: "  North   Side ",
		ZipCodes: []string{"60614", "60610"},
		Polygon:  square,
		Mode:     areasync.ModeCreate,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[areasync.SyncResult](t, rec)
	assert.True(t, res.Recomputed)
	assert.Equal(t, []string{"60614", "60657"}, res.ZipCodes)
	assert.Equal(t, 2, res.ZipCount)
	require.NotEmpty(t, res.AreaID)

	require.Len(t, s.store.saves, 1)
	assert.Equal(t, "North Side", s.store.saves[0].AreaName)
	assert.Positive(t, s.store.saves[0].SyncTimestamp)
	assert.ElementsMatch(t, []string{"60614", "60657"}, s.cache.invalidated)

	rec = s.do(t, http.MethodGet, "/service-areas/"+res.AreaID+"/zips", "worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	zips := decode[areasync.ZipsResponse](t, rec)
	assert.Equal(t, areasync.ZipsResponse{AreaID: res.AreaID, ZipCodes: []string{"60614", "60657"}, Count: 2}, zips)
}

func TestSync_StoresClientSetWhenIndexNotReady(t *testing.T) {
	s := newTestServer(stubIndex{ready: false}, nil)

	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1",
		ZipCodes: []string{"60614-2201", "60614", "bogus"},
		Polygon:  square,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[areasync.SyncResult](t, rec)
	assert.False(t, res.Recomputed)
	assert.Equal(t, []string{"60614"}, res.ZipCodes)
	assert.Equal(t, defaultAreaName, s.store.saves[0].AreaName)
}

func TestSync_UpdateInvalidatesOldAndNewZips(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", ZipCodes: []string{"60610", "60614"}, Polygon: square, SyncTimestamp: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[areasync.SyncResult](t, rec).AreaID
	s.cache.invalidated = nil

	rec = s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", AreaIDToUpdate: id, Mode: areasync.ModeUpdate,
		ZipCodes: []string{"60614", "60657"}, Polygon: square, SyncTimestamp: 200,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.ElementsMatch(t, []string{"60610", "60614", "60657"}, s.cache.invalidated)

	// an older sync arriving late is rejected
	rec = s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", AreaIDToUpdate: id, ZipCodes: []string{"60610"}, Polygon: square, SyncTimestamp: 150,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSync_Rejections(t *testing.T) {
	s := newTestServer(stubIndex{ready: true, zips: []string{"60614"}}, nil)
	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", Polygon: square,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[areasync.SyncResult](t, rec).AreaID

	cases := []struct {
		name string
		user string
		req  areasync.SyncRequest
		want int
	}{
		{"no session", "", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square}, http.StatusUnauthorized},
		{"missing worker", "worker-1", areasync.SyncRequest{Polygon: square}, http.StatusBadRequest},
		{"degenerate polygon", "worker-1", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square[:2]}, http.StatusBadRequest},
		{"create with id", "worker-1", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square, Mode: areasync.ModeCreate, AreaIDToUpdate: id}, http.StatusBadRequest},
		{"update without id", "worker-1", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square, Mode: areasync.ModeUpdate}, http.StatusBadRequest},
		{"unknown mode", "worker-1", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square, Mode: "merge"}, http.StatusBadRequest},
		{"other worker's session", "worker-2", areasync.SyncRequest{WorkerID: "worker-1", Polygon: square}, http.StatusForbidden},
		{"other worker's area", "worker-2", areasync.SyncRequest{WorkerID: "worker-2", AreaIDToUpdate: id, Polygon: square}, http.StatusForbidden},
		{"unknown area", "worker-1", areasync.SyncRequest{WorkerID: "worker-1", AreaIDToUpdate: "5f0c6b8e-7a76-4c0e-9a43-0b8f3c7d9e11", Polygon: square}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/service-areas/sync", tc.user, tc.req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSync_RateLimited(t *testing.T) {
	s := newTestServer(nil, middleware.NewRateLimiter(60, 1))
	req := areasync.SyncRequest{WorkerID: "worker-1", ZipCodes: []string{"60614"}, Polygon: square}

	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", req).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", req).Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/workers/worker-1/service-areas", "worker-1", nil).Code)
}

func TestAreaLifecycle(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", AreaName: "Loop", ZipCodes: []string{"60601"}, Polygon: square,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[areasync.SyncResult](t, rec).AreaID

	rec = s.do(t, http.MethodGet, "/service-areas/"+id, "worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	area := decode[ServiceArea](t, rec)
	assert.Equal(t, "Loop", area.AreaName)
	assert.Equal(t, 1, area.ZipCount)
	assert.Len(t, area.Polygon, 4)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/service-areas/not-a-uuid", "worker-1", nil).Code)

	rec = s.do(t, http.MethodPatch, "/service-areas/"+id, "worker-2", map[string]bool{"isActive": false})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodPatch, "/service-areas/"+id, "worker-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPatch, "/service-areas/"+id, "worker-1", map[string]bool{"isActive": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ServiceArea](t, rec).IsActive)

	rec = s.do(t, http.MethodGet, "/workers/worker-1/service-areas", "worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ServiceArea](t, rec), 1)

	s.cache.invalidated = nil
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/service-areas/"+id, "worker-1", nil).Code)
	assert.Equal(t, []string{"60601"}, s.cache.invalidated)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/service-areas/"+id+"/zips", "worker-1", nil).Code)
}

func TestCoverage_ByZipUsesCache(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", AreaName: "North Side", ZipCodes: []string{"60614"}, Polygon: square,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	for range 2 {
		rec = s.do(t, http.MethodGet, "/coverage?zip=60614-2201", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		cov := decode[areasync.CoverageResponse](t, rec)
		assert.Equal(t, "60614", cov.Zip)
		assert.True(t, cov.Covered)
		require.Len(t, cov.Providers, 1)
		assert.Equal(t, "worker-1", cov.Providers[0].WorkerID)
	}
	assert.Equal(t, 1, s.store.coverageCalls)

	rec = s.do(t, http.MethodGet, "/coverage?zip=10001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[areasync.CoverageResponse](t, rec)
	assert.False(t, cov.Covered)
	assert.NotNil(t, cov.Providers)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/coverage?zip=123", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/coverage", "", nil).Code)
}

func TestCoverage_ByPoint(t *testing.T) {
	at := geo.Point{Lat: 41.92, Lng: -87.65}
	s := newTestServer(stubIndex{ready: true, at: map[geo.Point]string{at: "60614"}}, nil)
	rec := s.do(t, http.MethodPost, "/service-areas/sync", "worker-1", areasync.SyncRequest{
		WorkerID: "worker-1", Polygon: square,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	s.store.zips[decode[areasync.SyncResult](t, rec).AreaID] = []string{"60614"}

	rec = s.do(t, http.MethodGet, "/coverage?lat=41.92&lng=-87.65", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[areasync.CoverageResponse](t, rec)
	assert.Equal(t, "60614", cov.Zip)
	assert.True(t, cov.Covered)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/coverage?lat=91&lng=0", "", nil).Code)
}

func TestCoverage_ByPointFallsBackToPostGIS(t *testing.T) {
	s := newTestServer(nil, nil)
	s.store.pointHits = []areasync.Provider{{WorkerID: "worker-9", AreaID: "a-9"}}

	rec := s.do(t, http.MethodGet, "/coverage?lat=41.92&lng=-87.65", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[areasync.CoverageResponse](t, rec)
	assert.Empty(t, cov.Zip)
	assert.True(t, cov.Covered)
	assert.Equal(t, "worker-9", cov.Providers[0].WorkerID)
}

type fakeGeocoder map[string]*geocoding.Result

func (f fakeGeocoder) Geocode(_ context.Context, address string) (*geocoding.Result, error) {
	res, ok := f[address]
	switch {
	case !ok:
		return nil, errors.New("status=ZERO_RESULTS")
	case res.Zip == "":
		return res, geocoding.ErrNoZip
	}
	return res, nil
}

func TestCoverage_ByAddress(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := s.do(t, http.MethodGet, "/coverage?address=anywhere", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	store := newMemStore()
	store.pointHits = []areasync.Provider{{WorkerID: "worker-9"}}
	h := NewHandlers(store, nil, nil, zcta.MatchOptions{}, nil).WithGeocoder(fakeGeocoder{
		"2430 N Cannon Dr": {Zip: "60614", Location: geo.Point{Lat: 41.9255, Lng: -87.6366}},
		"Lincoln Park":     {Location: geo.Point{Lat: 41.92, Lng: -87.65}},
	})
	srv := SetupRoutes(h, cookieSessions{}, nil)
	get := func(q string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coverage?"+q, nil))
		return rec
	}

	rec = get("address=2430+N+Cannon+Dr")
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[areasync.CoverageResponse](t, rec)
	assert.Equal(t, "60614", cov.Zip)
	assert.False(t, cov.Covered)

	rec = get("address=Lincoln+Park")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[areasync.CoverageResponse](t, rec).Covered)

	assert.Equal(t, http.StatusBadGateway, get("address=the+moon").Code)
}

func TestCoverage_AddressLookupsAreRateLimited(t *testing.T) {
	h := NewHandlers(newMemStore(), nil, nil, zcta.MatchOptions{}, nil).WithGeocoder(fakeGeocoder{
		"2430 N Cannon Dr": {Zip: "60614", Location: geo.Point{Lat: 41.9255, Lng: -87.6366}},
	})
	srv := SetupRoutes(h, cookieSessions{}, middleware.NewRateLimiter(60, 1))
	get := func(q string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coverage?"+q, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("address=2430+N+Cannon+Dr").Code)
	limited := get("address=2430+N+Cannon+Dr")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	// zip lookups never reach the geocoder and stay unlimited
	assert.Equal(t, http.StatusOK, get("zip=60614").Code)
	assert.Equal(t, http.StatusOK, get("zip=60614").Code)
}
