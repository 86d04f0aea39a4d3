package zcta

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFetcher_Gzip(t *testing.T) {
	doc := collection(square("60614", -87.65, 41.92, 0.02))
	path := filepath.Join(t.TempDir(), "zcta.geojson.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	ix := New(NewFetcher(path, time.Second))
	require.NoError(t, ix.Load(context.Background(), false))
	assert.Equal(t, 1, ix.Len())
}

func TestFileFetcher_Missing(t *testing.T) {
	_, err := FileFetcher{Path: filepath.Join(t.TempDir(), "nope.geojson")}.Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	doc := collection(square("60614", -87.65, 41.92, 0.02))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zcta.geojson" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = io.WriteString(w, doc)
	}))
	defer srv.Close()

	rc, err := NewFetcher(srv.URL+"/zcta.geojson", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, doc, string(body))

	_, err = NewHTTPFetcher(srv.URL+"/missing", time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
