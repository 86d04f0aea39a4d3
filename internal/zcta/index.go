// Package zcta loads ZIP Code Tabulation Area boundaries into an in-memory
// spatial index and answers bounds, point and polygon queries against it.
//
// An Index is built once per process from a single bulk GeoJSON file. The
// built Snapshot is swapped in atomically, so readers never see a partial
// index and a forced reload keeps the previous snapshot serving until the
// new one is complete.
package zcta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotReady     = errors.New("zcta index is not ready")
	ErrEmptyDataset = errors.New("zcta dataset contained no valid features")
)

// Status is the index lifecycle state.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
)

const (
	loadKey = "zcta"

	// at most this many dropped features are logged one by one
	maxDropLogs = 20
	// processing progress is emitted every this many features
	progressEvery = 2000
)

// Index is the process-wide ZIP boundary cache. Construct one with New and
// pass it to whatever needs it.
type Index struct {
	fetcher Fetcher
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time

	snap      atomic.Pointer[Snapshot]
	group     singleflight.Group
	loading   atomic.Int32
	listeners listenerSet

	// builds are numbered so a superseded build finishing late cannot
	// replace a newer snapshot
	genMu     sync.Mutex
	gen       uint64
	storedGen uint64
}

type Option func(*Index)

func WithLogger(l *zap.Logger) Option { return func(ix *Index) { ix.log = l } }

// WithTimeout bounds each load, download included.
func WithTimeout(d time.Duration) Option { return func(ix *Index) { ix.timeout = d } }

func WithClock(now func() time.Time) Option { return func(ix *Index) { ix.now = now } }

func New(fetcher Fetcher, opts ...Option) *Index {
	ix := &Index{
		fetcher: fetcher,
		log:     zap.NewNop(),
		timeout: DefaultDownloadTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Subscribe registers a progress listener and returns its unsubscribe func.
func (ix *Index) Subscribe(fn func(Progress)) func() {
	return ix.listeners.add(fn)
}

// Status reports loading while any build is running, even if an older
// snapshot is still being served.
func (ix *Index) Status() Status {
	if ix.loading.Load() > 0 {
		return StatusLoading
	}
	if ix.snap.Load() != nil {
		return StatusReady
	}
	return StatusUninitialized
}

// IsReady is true once a snapshot has been completely built.
func (ix *Index) IsReady() bool { return ix.snap.Load() != nil }

// Snapshot returns the current snapshot or nil.
func (ix *Index) Snapshot() *Snapshot { return ix.snap.Load() }

// Len is the number of indexed features.
func (ix *Index) Len() int {
	if s := ix.snap.Load(); s != nil {
		return len(s.Features)
	}
	return 0
}

// LoadedAt is the build time of the current snapshot.
func (ix *Index) LoadedAt() time.Time {
	if s := ix.snap.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// Load makes sure a snapshot exists. Without force it returns immediately
// when ready, and concurrent callers share one in-flight download. With force
// it always starts a fresh download; the current snapshot keeps serving until
// the new one is indexed.
//
// The build itself is detached from ctx so one caller giving up does not
// abort a load others are waiting on; ctx only bounds this caller's wait.
func (ix *Index) Load(ctx context.Context, force bool) error {
	if !force && ix.IsReady() {
		return nil
	}
	if force {
		ix.group.Forget(loadKey)
	}
	ch := ix.group.DoChan(loadKey, func() (any, error) {
		return nil, ix.build(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (ix *Index) build(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	ix.loading.Add(1)
	defer ix.loading.Add(-1)

	ix.genMu.Lock()
	ix.gen++
	gen := ix.gen
	ix.genMu.Unlock()

	started := ix.now()
	ix.listeners.emit(Progress{Phase: PhaseDownloading, Percent: 0, Message: "Downloading ZIP code boundaries"})

	data, err := ix.download(ctx)
	if err != nil {
		ix.log.Error("zcta download failed", zap.Error(err))
		return fmt.Errorf("load zcta dataset: %w", err)
	}
	ix.listeners.emit(Progress{Phase: PhaseDownloading, Percent: 100,
		Message: fmt.Sprintf("Downloaded %d bytes", len(data))})

	features, err := ix.process(ctx, data)
	if err != nil {
		ix.log.Error("zcta parse failed", zap.Error(err))
		return fmt.Errorf("load zcta dataset: %w", err)
	}

	ix.listeners.emit(Progress{Phase: PhaseIndexing, Percent: 0,
		Message: fmt.Sprintf("Indexing %d ZIP codes", len(features))})
	snap := newSnapshot(features, ix.now())
	ix.listeners.emit(Progress{Phase: PhaseIndexing, Percent: 100, Message: "Index built"})

	ix.genMu.Lock()
	if gen > ix.storedGen {
		ix.storedGen = gen
		ix.snap.Store(snap)
	}
	ix.genMu.Unlock()

	ix.log.Info("zcta index ready",
		zap.Int("features", len(features)),
		zap.Duration("took", ix.now().Sub(started)))
	ix.listeners.emit(Progress{Phase: PhaseComplete, Percent: 100,
		Message: fmt.Sprintf("Loaded %d ZIP codes", len(features))})
	return nil
}

func (ix *Index) download(ctx context.Context) ([]byte, error) {
	rc, err := ix.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return data, nil
}

// process turns the raw collection into validated features. Invalid features
// are dropped and logged; only a broken document fails the load.
func (ix *Index) process(ctx context.Context, data []byte) ([]Feature, error) {
	ix.listeners.emit(Progress{Phase: PhaseProcessing, Percent: 0, Message: "Processing boundaries"})

	var features []Feature
	seen := make(map[string]struct{})
	dropped, n := 0, 0
	for raw, err := range decodeFeatures(bytes.NewReader(data)) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n++

		f, ferr := buildFeature(raw.Data)
		if ferr == nil {
			if _, dup := seen[f.PostalCode]; dup {
				ferr = fmt.Errorf("duplicate zip %s", f.PostalCode)
			}
		}
		if ferr != nil {
			dropped++
			if dropped <= maxDropLogs {
				ix.log.Warn("dropping zcta feature", zap.Int("feature", n-1), zap.Error(ferr))
			}
			continue
		}
		seen[f.PostalCode] = struct{}{}
		features = append(features, f)

		if n%progressEvery == 0 && len(data) > 0 {
			pct := int(raw.Offset * 100 / int64(len(data)))
			ix.listeners.emit(Progress{Phase: PhaseProcessing, Percent: min(pct, 99),
				Message: fmt.Sprintf("Processed %d features", n)})
		}
	}
	if dropped > 0 {
		ix.log.Warn("zcta features dropped", zap.Int("dropped", dropped), zap.Int("total", n))
	}
	if len(features) == 0 {
		return nil, ErrEmptyDataset
	}
	ix.listeners.emit(Progress{Phase: PhaseProcessing, Percent: 100,
		Message: fmt.Sprintf("Processed %d features", n)})
	return features, nil
}

// FindZipcodesInBounds lists ZIPs whose bounding box overlaps the viewport.
// Matches are bbox-approximate. Empty when not ready.
func (ix *Index) FindZipcodesInBounds(b orb.Bound) []string {
	s := ix.snap.Load()
	if s == nil {
		return []string{}
	}
	return s.InBounds(b)
}

// GetZipcodeBoundary looks a ZIP up after normalizing it.
func (ix *Index) GetZipcodeBoundary(zip string) (*Feature, bool) {
	s := ix.snap.Load()
	if s == nil {
		return nil, false
	}
	return s.Lookup(NormalizeZip(zip))
}

// FindZipcodeAt reverse-geocodes a coordinate to the ZIP containing it.
func (ix *Index) FindZipcodeAt(p geo.Point) (string, bool) {
	s := ix.snap.Load()
	if s == nil {
		return "", false
	}
	return s.At(p)
}
