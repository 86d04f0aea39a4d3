package zcta

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

type funcFetcher func(ctx context.Context) (io.ReadCloser, error)

func (f funcFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

func staticFetcher(doc string) Fetcher {
	return funcFetcher(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(doc)), nil
	})
}

// countingFetcher serves docs[i] on the i-th call (the last one repeats) and
// optionally blocks each call until release is closed.
type countingFetcher struct {
	docs    []string
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	n := int(f.calls.Add(1))
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	doc := f.docs[min(n, len(f.docs))-1]
	return io.NopCloser(strings.NewReader(doc)), nil
}

func square(zip string, lng, lat, half float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"ZCTA5CE20":%q},"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		zip,
		lng-half, lat-half, lng+half, lat-half, lng+half, lat+half, lng-half, lat+half, lng-half, lat-half)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","name":"zcta520","features":[` + strings.Join(features, ",") + `]}`
}
