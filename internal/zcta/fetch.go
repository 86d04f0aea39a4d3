package zcta

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultDownloadTimeout bounds a dataset download.
const DefaultDownloadTimeout = 30 * time.Second

// Fetcher opens the bulk boundary dataset. Each call returns a new stream.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// NewFetcher picks an HTTP or file fetcher from the source string.
func NewFetcher(source string, timeout time.Duration) Fetcher {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return NewHTTPFetcher(source, timeout)
	}
	return FileFetcher{Path: source}
}

// HTTPFetcher downloads the dataset from a URL, typically object storage.
type HTTPFetcher struct {
	url    string
	client *resty.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/geo+json, application/json")
	return &HTTPFetcher{url: url, client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(f.url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.url, err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		body.Close()
		return nil, fmt.Errorf("download %s: HTTP %d", f.url, resp.StatusCode())
	}
	return maybeGunzip(f.url, body)
}

// FileFetcher reads the dataset from local disk.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return maybeGunzip(f.Path, file)
}

type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g gzipReadCloser) Close() error {
	gerr := g.Reader.Close()
	if err := g.src.Close(); err != nil {
		return err
	}
	return gerr
}

func maybeGunzip(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	if !strings.HasSuffix(strings.ToLower(name), ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gunzip %s: %w", name, err)
	}
	return gzipReadCloser{Reader: zr, src: rc}, nil
}
