// Package geocoding resolves free-form addresses through the Google Maps
// Geocoding API.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mountly/mountly-backend/internal/geo"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api"

var ErrNoZip = errors.New("no ZIP code found in geocoding result")

// Result holds structured data from a Google Maps geocoding response.
type Result struct {
	Zip       string    `json:"zip"`
	State     string    `json:"state"` // 2-letter state abbreviation
	City      string    `json:"city"`
	Formatted string    `json:"formatted"`
	Location  geo.Point `json:"location"`
}

// Client wraps the Google Maps Geocoding API.
type Client struct {
	apiKey string
	http   *resty.Client
}

// NewClient returns nil when apiKey is empty so callers can degrade
// gracefully.
func NewClient(apiKey, baseURL string) *Client {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second).
			SetRetryCount(1),
	}
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
	Status  string          `json:"status"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          struct {
		Location geo.Point `json:"location"`
	} `json:"geometry"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Geocode converts an address into a location and postal code.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	var body geocodeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"address": address, "key": c.apiKey}).
		SetResult(&body).
		Get("/geocode/json")
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocoding API returned HTTP %d", resp.StatusCode())
	}
	if body.Status != "OK" {
		return nil, fmt.Errorf("geocoding failed: status=%s", body.Status)
	}
	if len(body.Results) == 0 {
		return nil, fmt.Errorf("geocoding returned no results for address")
	}

	first := body.Results[0]
	out := &Result{Formatted: first.FormattedAddress, Location: first.Geometry.Location}
	for _, comp := range first.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "postal_code":
				out.Zip = comp.ShortName
			case "administrative_area_level_1":
				out.State = comp.ShortName
			case "locality":
				out.City = comp.LongName
			}
		}
	}
	if out.Zip == "" {
		return out, ErrNoZip
	}
	return out, nil
}
