// Package areasync keeps a worker's drawn service area and its postal codes
// in step with the backend. A Controller computes the ZIP set locally from
// the spatial index, pushes it to the backend through a trailing-edge
// throttle, validates what the backend stored, and exposes progress and
// errors as state for whatever UI is driving it.
package areasync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/mountly/mountly-backend/internal/zcta"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultThrottleDelay is the quiet period before a queued edit is processed.
const DefaultThrottleDelay = 1000 * time.Millisecond

var (
	ErrMissingWorkerID = errors.New("workerId is required")
	ErrMissingAreaID   = errors.New("areaId is required")
	ErrClosed          = errors.New("sync controller is closed")
)

// ZipIndex is the part of the spatial index the controller needs.
type ZipIndex interface {
	Load(ctx context.Context, force bool) error
	IsReady() bool
	ZipsInPolygon(ring []geo.Point, opts zcta.MatchOptions) ([]string, error)
}

// Backend is the authoritative store.
type Backend interface {
	SyncArea(ctx context.Context, req SyncRequest) (*SyncResult, error)
	CountZips(ctx context.Context, areaID string) (int, error)
}

type Options struct {
	ThrottleDelay time.Duration
	// Match is the default matching used by ComputeZipCodes.
	MatchOptions  zcta.MatchOptions
	OnSynced      func(SyncResult)
	OnError       func(error)
	OnStateChange func(SyncState)
	Logger        *zap.Logger
	Now           func() time.Time
}

// AreaRef identifies the area being edited. An empty AreaID means the area
// has not been created yet; the controller remembers the ID the backend
// assigns on the first sync.
type AreaRef struct {
	AreaID   string
	WorkerID string
	AreaName string
}

// PendingSync is a queued polygon edit.
type PendingSync struct {
	Area     AreaRef
	Vertices []geo.Point
}

// SyncInput is one explicit push to the backend.
type SyncInput struct {
	AreaID   string
	WorkerID string
	AreaName string
	ZipCodes []string
	Polygon  []geo.Point
}

// ValidationResult compares the backend's stored count with an expectation.
type ValidationResult struct {
	AreaID   string `json:"areaId"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
	InSync   bool   `json:"inSync"`
}

// Controller owns the SyncState of one editing session. It is safe for
// concurrent use; throttled runs never overlap.
type Controller struct {
	index   ZipIndex
	backend Backend
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	state   SyncState
	closed  bool
	pending *PendingSync
	timer   *time.Timer
	// timerGen identifies the armed timer; a callback from an older one is ignored
	timerGen uint64

	// runMu serializes throttled runs and flushes
	runMu sync.Mutex
}

func New(index ZipIndex, backend Backend, opts Options) *Controller {
	if opts.ThrottleDelay <= 0 {
		opts.ThrottleDelay = DefaultThrottleDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		index:   index,
		backend: backend,
		opts:    opts,
		log:     opts.Logger,
		state:   SyncState{Phase: PhaseIdle},
	}
}

// State returns a copy of the current state.
func (c *Controller) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// update mutates state unless the controller was closed, then notifies the
// state listener outside the lock.
func (c *Controller) update(fn func(*SyncState)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(snapshot)
	}
	return true
}

// ComputeZipCodes assigns postal codes to the drawn polygon, loading the
// index first if needed. opts overrides the controller's default matching.
// Failures are appended to Errors and leave the previous ComputedZips alone.
func (c *Controller) ComputeZipCodes(ctx context.Context, vertices []geo.Point, opts *zcta.MatchOptions) ([]string, error) {
	if !c.update(func(s *SyncState) {
		s.Phase = PhaseComputing
		s.IsComputing = true
		s.Progress = 0
	}) {
		return nil, ErrClosed
	}

	if !c.index.IsReady() {
		if err := c.index.Load(ctx, false); err != nil {
			return nil, c.failCompute(fmt.Errorf("load zcta index: %w", err))
		}
	}
	c.update(func(s *SyncState) { s.Progress = 25 })

	match := c.opts.MatchOptions
	if opts != nil {
		match = *opts
	}
	zips, err := c.index.ZipsInPolygon(vertices, match)
	if err != nil {
		return nil, c.failCompute(fmt.Errorf("compute zip codes: %w", err))
	}
	c.update(func(s *SyncState) { s.Progress = 75 })

	if !c.update(func(s *SyncState) {
		s.ComputedZips = zips
		s.IsComputing = false
		s.Phase = PhaseComputed
		s.Progress = 100
	}) {
		return nil, ErrClosed
	}
	c.log.Debug("computed service area zips", zap.Int("count", len(zips)), zap.String("mode", string(match.Mode)))
	return slices.Clone(zips), nil
}

func (c *Controller) failCompute(err error) error {
	if !c.update(func(s *SyncState) {
		s.IsComputing = false
		s.Phase = PhaseError
		s.Errors = append(s.Errors, err.Error())
	}) {
		return ErrClosed
	}
	c.log.Warn("zip computation failed", zap.Error(err))
	return err
}

// SyncToBackend pushes a computed set. An empty set is valid but skipped.
// A missing worker ID is a caller bug and is returned without touching state.
func (c *Controller) SyncToBackend(ctx context.Context, in SyncInput) error {
	if strings.TrimSpace(in.WorkerID) == "" {
		return ErrMissingWorkerID
	}
	if len(in.ZipCodes) == 0 {
		c.log.Debug("skipping sync of empty zip set", zap.String("worker_id", in.WorkerID))
		return nil
	}

	c.mu.Lock()
	areaID := in.AreaID
	if areaID == "" {
		areaID = c.state.AreaID
	}
	c.mu.Unlock()

	req := SyncRequest{
		WorkerID:       in.WorkerID,
		AreaIDToUpdate: areaID,
		AreaName:       in.AreaName,
		ZipCodes:       slices.Clone(in.ZipCodes),
		Polygon:        slices.Clone(in.Polygon),
		Mode:           ModeCreate,
		SyncTimestamp:  c.opts.Now().UnixMilli(),
	}
	if areaID != "" {
		req.Mode = ModeUpdate
	}

	if !c.update(func(s *SyncState) {
		s.Phase = PhaseSyncing
		s.IsSyncing = true
	}) {
		return ErrClosed
	}

	res, err := c.backend.SyncArea(ctx, req)
	if err != nil {
		if !c.update(func(s *SyncState) {
			s.IsSyncing = false
			s.Phase = PhaseError
			s.Errors = append(s.Errors, "sync failed: "+err.Error())
		}) {
			return ErrClosed
		}
		c.log.Warn("service area sync failed", zap.String("area_id", areaID), zap.Error(err))
		if c.opts.OnError != nil {
			c.opts.OnError(err)
		}
		return fmt.Errorf("sync service area: %w", err)
	}

	synced := res.ZipCodes
	if synced == nil {
		synced = req.ZipCodes
	}
	missing, extra := lo.Difference(req.ZipCodes, synced)
	if !c.update(func(s *SyncState) {
		s.IsSyncing = false
		s.Phase = PhaseSynced
		s.AreaID = res.AreaID
		s.SyncedZips = slices.Clone(synced)
		s.LastSyncTime = c.opts.Now()
		s.Errors = nil
		if len(missing) > 0 || len(extra) > 0 {
			s.Errors = append(s.Errors, fmt.Sprintf(
				"backend stored %d postal codes, %d computed locally (%d missing, %d extra)",
				len(synced), len(req.ZipCodes), len(missing), len(extra)))
		}
	}) {
		return ErrClosed
	}

	c.log.Info("service area synced",
		zap.String("area_id", res.AreaID),
		zap.String("mode", string(req.Mode)),
		zap.Int("zips", len(synced)),
		zap.Bool("recomputed", res.Recomputed))
	if c.opts.OnSynced != nil {
		c.opts.OnSynced(*res)
	}
	return nil
}

// HandlePolygonChange queues an edit of the area's polygon.
func (c *Controller) HandlePolygonChange(area AreaRef, vertices []geo.Point) {
	c.QueueSync(PendingSync{Area: area, Vertices: slices.Clone(vertices)})
}

// QueueSync replaces any pending edit with p and restarts the throttle
// window. Only the last edit queued before the window elapses is computed
// and synced; earlier ones are discarded.
func (c *Controller) QueueSync(p PendingSync) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = &p
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.opts.ThrottleDelay, func() { c.fire(gen) })
}

// takePending removes the pending edit. A gen of zero takes it
// unconditionally; otherwise only the timer armed as gen may take it.
func (c *Controller) takePending(gen uint64) *PendingSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != 0 && gen != c.timerGen {
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	p := c.pending
	c.pending = nil
	if c.closed {
		return nil
	}
	return p
}

func (c *Controller) fire(gen uint64) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	p := c.takePending(gen)
	if p == nil {
		return
	}
	if err := c.process(context.Background(), *p); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Debug("throttled sync did not complete", zap.Error(err))
	}
}

// Flush waits for a throttled run already in progress, then processes the
// pending edit now instead of waiting for the timer.
func (c *Controller) Flush(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	p := c.takePending(0)
	if p == nil {
		return nil
	}
	return c.process(ctx, *p)
}

// process computes and syncs one edit. Callers hold runMu.
func (c *Controller) process(ctx context.Context, p PendingSync) error {
	zips, err := c.ComputeZipCodes(ctx, p.Vertices, nil)
	if err != nil {
		return err
	}
	return c.SyncToBackend(ctx, SyncInput{
		AreaID:   p.Area.AreaID,
		WorkerID: p.Area.WorkerID,
		AreaName: p.Area.AreaName,
		ZipCodes: zips,
		Polygon:  p.Vertices,
	})
}

// ValidateSyncState re-reads the backend's count for the area. A mismatch
// is recorded as a warning in Errors, not returned as an error.
func (c *Controller) ValidateSyncState(ctx context.Context, areaID string, expected int) (ValidationResult, error) {
	if areaID == "" {
		return ValidationResult{}, ErrMissingAreaID
	}
	actual, err := c.backend.CountZips(ctx, areaID)
	if err != nil {
		c.update(func(s *SyncState) {
			s.Errors = append(s.Errors, "validation failed: "+err.Error())
		})
		return ValidationResult{}, fmt.Errorf("validate area %s: %w", areaID, err)
	}

	res := ValidationResult{AreaID: areaID, Expected: expected, Actual: actual, InSync: actual == expected}
	if !res.InSync {
		c.update(func(s *SyncState) {
			s.Errors = append(s.Errors, fmt.Sprintf(
				"validation mismatch for area %s: expected %d postal codes, backend has %d",
				areaID, expected, actual))
		})
		c.log.Warn("service area out of sync",
			zap.String("area_id", areaID), zap.Int("expected", expected), zap.Int("actual", actual))
	}
	return res, nil
}

// ClearErrors empties the error list.
func (c *Controller) ClearErrors() {
	c.update(func(s *SyncState) { s.Errors = nil })
}

// Reset drops any pending edit and returns to idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.mu.Unlock()
	c.update(func(s *SyncState) { *s = SyncState{Phase: PhaseIdle} })
}

// Close stops the throttle. Results of calls still in flight are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
