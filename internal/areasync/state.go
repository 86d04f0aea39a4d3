package areasync

import (
	"slices"
	"time"
)

// Phase is the primary state of a polygon-editing session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseComputing Phase = "computing"
	PhaseComputed  Phase = "computed"
	PhaseSyncing   Phase = "syncing"
	PhaseSynced    Phase = "synced"
	PhaseError     Phase = "error"
)

// SyncState is the controller's working state for one polygon. Errors are
// kept apart from Phase: a failed sync leaves ComputedZips and SyncedZips
// as they were.
type SyncState struct {
	Phase        Phase     `json:"phase"`
	IsComputing  bool      `json:"isComputing"`
	IsSyncing    bool      `json:"isSyncing"`
	AreaID       string    `json:"areaId,omitempty"`
	ComputedZips []string  `json:"computedZips"`
	SyncedZips   []string  `json:"syncedZips"`
	Progress     int       `json:"progress"`
	Errors       []string  `json:"errors"`
	LastSyncTime time.Time `json:"lastSyncTime,omitzero"`
}

// InSync reports whether the backend acknowledged exactly what was computed.
func (s SyncState) InSync() bool {
	return s.SyncedZips != nil && slices.Equal(s.ComputedZips, s.SyncedZips)
}

func (s SyncState) clone() SyncState {
	s.ComputedZips = slices.Clone(s.ComputedZips)
	s.SyncedZips = slices.Clone(s.SyncedZips)
	s.Errors = slices.Clone(s.Errors)
	return s
}
