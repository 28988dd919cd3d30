package models

import (
	"time"

	"github.com/google/uuid"
)

// Resolution status values for an ErrorGroup. Forward transitions
// (new -> acknowledged -> resolved) are operator-initiated; the only
// automatic transition is resolved -> new when a fresh event reopens
// the group.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// ValidStatus reports whether s is a known resolution status.
func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// ErrorGroup is the unit of operator triage: all events sharing a
// fingerprint within the correlation window. A group is created implicitly
// by the first event with a novel fingerprint and absorbs matching events
// until its window lapses.
type ErrorGroup struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	Fingerprint      string     `db:"fingerprint"       json:"-"`
	RepresentativeID uuid.UUID  `db:"representative_id" json:"representative_id"`
	ResolutionStatus string     `db:"resolution_status" json:"resolution_status"`
	ResolvedBy       *string    `db:"resolved_by"       json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `db:"resolved_at"       json:"resolved_at,omitempty"`
	ResolutionNotes  *string    `db:"resolution_notes"  json:"resolution_notes,omitempty"`
	FirstSeenAt      time.Time  `db:"first_seen_at"     json:"first_seen_at"`
	LastSeenAt       time.Time  `db:"last_seen_at"      json:"last_seen_at"`
	EventCount       int        `db:"event_count"       json:"event_count"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}
