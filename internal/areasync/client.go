package areasync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultSyncTimeout bounds one backend round trip.
const DefaultSyncTimeout = 10 * time.Second

const SessionCookie = "session_id"

// ErrEmptyResult is returned when a successful answer carries no usable body.
var ErrEmptyResult = errors.New("backend returned an empty result")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPBackend talks to the service-area API over HTTP. Reads are retried on
// transport errors and 5xx answers; syncs are not, because a create that
// reached the server must not be replayed.
type HTTPBackend struct {
	client *resty.Client
}

func NewHTTPBackend(baseURL, sessionID string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if sessionID != "" {
		c.SetCookie(&http.Cookie{Name: SessionCookie, Value: sessionID})
	}
	return &HTTPBackend{client: c}
}

// request decodes the body as JSON whatever Content-Type the server sent.
func (b *HTTPBackend) request(ctx context.Context, out any) *resty.Request {
	return b.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(out)
}

func (b *HTTPBackend) SyncArea(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	var out SyncResult
	resp, err := b.request(ctx, &out).
		SetBody(req).
		Post("/service-areas/sync")
	if err != nil {
		return nil, fmt.Errorf("post sync: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	if out.AreaID == "" {
		return nil, fmt.Errorf("post sync: %w", ErrEmptyResult)
	}
	return &out, nil
}

func (b *HTTPBackend) CountZips(ctx context.Context, areaID string) (int, error) {
	var out ZipsResponse
	resp, err := b.request(ctx, &out).
		SetPathParam("id", areaID).
		Get("/service-areas/{id}/zips")
	if err != nil {
		return 0, fmt.Errorf("get zips: %w", err)
	}
	if resp.IsError() {
		return 0, statusError(resp)
	}
	if out.AreaID == "" {
		return 0, fmt.Errorf("get zips: %w", ErrEmptyResult)
	}
	return out.Count, nil
}

// Coverage asks which workers serve a postal code.
func (b *HTTPBackend) Coverage(ctx context.Context, zip string) (*CoverageResponse, error) {
	var out CoverageResponse
	resp, err := b.request(ctx, &out).
		SetQueryParam("zip", zip).
		Get("/coverage")
	if err != nil {
		return nil, fmt.Errorf("get coverage: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return &out, nil
}

func statusError(resp *resty.Response) error {
	return &StatusError{StatusCode: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
}
