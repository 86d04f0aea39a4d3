package servicearea

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/mountly/mountly-backend/internal/zcta"
	"github.com/samber/lo"
)

// memStore is an in-memory Store.
type memStore struct {
	mu            sync.Mutex
	areas         map[string]ServiceArea
	zips          map[string][]string
	saves         []SaveInput
	coverageCalls int
	pointHits     []areasync.Provider
}

func newMemStore() *memStore {
	return &memStore{areas: map[string]ServiceArea{}, zips: map[string][]string{}}
}

func (m *memStore) SaveArea(_ context.Context, in SaveInput) (*SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, in)

	var area ServiceArea
	var prev []string
	if in.AreaID == "" {
		area = ServiceArea{ID: uuid.New(), WorkerID: in.WorkerID, IsActive: true, CreatedAt: time.Now()}
	} else {
		var ok bool
		if area, ok = m.areas[in.AreaID]; !ok {
			return nil, ErrNotFound
		}
		if area.WorkerID != in.WorkerID {
			return nil, ErrWorkerMismatch
		}
		if in.SyncTimestamp < area.LastSyncTimestamp {
			return nil, ErrStaleSync
		}
		prev = m.zips[in.AreaID]
	}
	area.AreaName = in.AreaName
	area.Polygon = in.Polygon
	area.ZipCount = len(in.ZipCodes)
	area.LastSyncTimestamp = in.SyncTimestamp
	area.UpdatedAt = time.Now()
	m.areas[area.ID.String()] = area
	m.zips[area.ID.String()] = append([]string{}, in.ZipCodes...)
	return &SaveResult{Area: area, PreviousZips: prev}, nil
}

func (m *memStore) GetArea(_ context.Context, id string) (*ServiceArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *memStore) ListAreasByWorker(_ context.Context, workerID string) ([]ServiceArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(lo.Values(m.areas), func(a ServiceArea, _ int) bool { return a.WorkerID == workerID }), nil
}

func (m *memStore) ListZips(_ context.Context, areaID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.zips[areaID]...), nil
}

func (m *memStore) CountZips(_ context.Context, areaID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.zips[areaID]), nil
}

func (m *memStore) SetActive(_ context.Context, areaID, workerID string, active bool) (*ServiceArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[areaID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.WorkerID != workerID {
		return nil, ErrWorkerMismatch
	}
	a.IsActive = active
	m.areas[areaID] = a
	return &a, nil
}

func (m *memStore) DeleteArea(_ context.Context, areaID, workerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[areaID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.WorkerID != workerID {
		return nil, ErrWorkerMismatch
	}
	zips := m.zips[areaID]
	delete(m.areas, areaID)
	delete(m.zips, areaID)
	return zips, nil
}

func (m *memStore) CoverageByZips(_ context.Context, zips []string) (map[string][]areasync.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coverageCalls++
	out := map[string][]areasync.Provider{}
	for id, list := range m.zips {
		a := m.areas[id]
		if !a.IsActive {
			continue
		}
		for _, z := range lo.Intersect(list, zips) {
			out[z] = append(out[z], areasync.Provider{WorkerID: a.WorkerID, AreaID: id, AreaName: a.AreaName})
		}
	}
	return out, nil
}

func (m *memStore) CoverageByPoint(context.Context, geo.Point) ([]areasync.Provider, error) {
	return append([]areasync.Provider{}, m.pointHits...), nil
}

type stubIndex struct {
	ready bool
	zips  []string
	at    map[geo.Point]string
}

func (s stubIndex) IsReady() bool { return s.ready }

func (s stubIndex) ZipsInPolygon(ring []geo.Point, _ zcta.MatchOptions) ([]string, error) {
	if err := geo.ValidateRing(ring); err != nil {
		return nil, zcta.ErrInvalidPolygon
	}
	return append([]string{}, s.zips...), nil
}

func (s stubIndex) FindZipcodeAt(p geo.Point) (string, bool) {
	z, ok := s.at[p]
	return z, ok
}

// recordingCache is a map-backed CoverageCache that remembers invalidations.
type recordingCache struct {
	mu          sync.Mutex
	entries     map[string][]areasync.Provider
	invalidated []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string][]areasync.Provider{}}
}

func (c *recordingCache) Get(_ context.Context, zip string) ([]areasync.Provider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[zip]
	return p, ok
}

func (c *recordingCache) Set(_ context.Context, zip string, p []areasync.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[zip] = p
}

func (c *recordingCache) Invalidate(_ context.Context, zips ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, z := range zips {
		delete(c.entries, z)
	}
	c.invalidated = append(c.invalidated, zips...)
}
