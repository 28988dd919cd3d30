// Package models contains shared data models used across the errorscope codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Category values for the classification taxonomy. Every captured error is
// assigned exactly one of these; unclassifiable input falls back to
// CategoryInternal.
const (
	CategoryAuthentication  = "authentication"
	CategoryAuthorization   = "authorization"
	CategoryValidation      = "validation"
	CategoryDatabase        = "database"
	CategoryNetwork         = "network"
	CategoryExternalService = "external_service"
	CategoryFileOperation   = "file_operation"
	CategoryPayment         = "payment"
	CategoryRateLimit       = "rate_limit"
	CategoryResource        = "resource"
	CategoryInternal        = "internal"
	CategoryConfiguration   = "configuration"
)

// Severity values. Critical means user-facing functionality is fully blocked;
// error means a single operation failed; warning is a non-blocking anomaly;
// info is diagnostic-only and excluded from trend volume.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Categories lists all valid taxonomy categories.
func Categories() []string {
	return []string{
		CategoryAuthentication, CategoryAuthorization, CategoryValidation,
		CategoryDatabase, CategoryNetwork, CategoryExternalService,
		CategoryFileOperation, CategoryPayment, CategoryRateLimit,
		CategoryResource, CategoryInternal, CategoryConfiguration,
	}
}

// ValidCategory reports whether c is a known taxonomy category.
func ValidCategory(c string) bool {
	for _, v := range Categories() {
		if v == c {
			return true
		}
	}
	return false
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// RequestContext is an optional snapshot of the HTTP request that produced
// an error, captured client-side and stored verbatim for operators.
type RequestContext struct {
	Endpoint    string            `json:"endpoint,omitempty"`
	Method      string            `json:"method,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
}

// ErrorEvent is one observed failure instance. The id is a UUIDv7 assigned
// at ingestion, so event ids sort by capture time. Both id and created_at
// are immutable once written.
type ErrorEvent struct {
	ID               uuid.UUID       `db:"id"                json:"id"`
	GroupID          uuid.UUID       `db:"group_id"          json:"group_id"`
	ErrorType        string          `db:"error_type"        json:"error_type"`
	Category         string          `db:"category"          json:"category"`
	Severity         string          `db:"severity"          json:"severity"`
	TechnicalMessage string          `db:"technical_message" json:"technical_message,omitempty"`
	UserMessage      string          `db:"user_message"      json:"user_message,omitempty"`
	StackTrace       string          `db:"stack_trace"       json:"stack_trace,omitempty"`
	RequestContext   *RequestContext `db:"request_context"   json:"request_context,omitempty"`
	UserID           string          `db:"user_id"           json:"user_id,omitempty"`
	SessionID        string          `db:"session_id"        json:"session_id,omitempty"`
	Environment      string          `db:"environment"       json:"environment"`
	Details          map[string]any  `db:"details"           json:"details,omitempty"`
	Fingerprint      string          `db:"fingerprint"       json:"-"`
	CreatedAt        time.Time       `db:"created_at"        json:"created_at"`
}

// RelatedError is the bounded view of a sibling event returned alongside
// a detail response. Full payloads are only fetched one event at a time.
type RelatedError struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ErrorType string    `db:"error_type" json:"error_type"`
	Severity  string    `db:"severity"   json:"severity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
