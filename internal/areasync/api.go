package areasync

import (
	"time"

	"github.com/mountly/mountly-backend/internal/geo"
)

// Mode tells the backend whether a sync creates a new area or updates one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// SyncRequest is the body of POST /service-areas/sync.
type SyncRequest struct {
	WorkerID       string      `json:"workerId"`
	AreaIDToUpdate string      `json:"areaIdToUpdate,omitempty"`
	AreaName       string      `json:"areaName"`
	ZipCodes       []string    `json:"zipCodes"`
	Polygon        []geo.Point `json:"polygon"`
	Mode           Mode        `json:"mode"`
	// SyncTimestamp is Unix milliseconds at the client when the sync was sent.
	SyncTimestamp int64 `json:"syncTimestamp"`
}

// SyncResult is what the backend stored.
type SyncResult struct {
	AreaID     string    `json:"areaId"`
	ZipCodes   []string  `json:"zipCodes"`
	ZipCount   int       `json:"zipCount"`
	Recomputed bool      `json:"recomputed"`
	SyncedAt   time.Time `json:"syncedAt"`
}

// ZipsResponse is the body of GET /service-areas/{id}/zips.
type ZipsResponse struct {
	AreaID   string   `json:"areaId"`
	ZipCodes []string `json:"zipCodes"`
	Count    int      `json:"count"`
}

// Provider is one worker covering a ZIP.
type Provider struct {
	WorkerID string `json:"workerId"`
	AreaID   string `json:"areaId"`
	AreaName string `json:"areaName"`
}

// CoverageResponse is the body of GET /coverage.
type CoverageResponse struct {
	Zip       string     `json:"zip,omitempty"`
	Covered   bool       `json:"covered"`
	Providers []Provider `json:"providers"`
}
