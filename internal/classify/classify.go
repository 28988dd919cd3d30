// Package classify maps raw error signals onto the fixed taxonomy of
// categories and severities. All functions are pure and deterministic, and
// always return values within the taxonomy — unclassifiable input falls
// back to (internal, error) rather than being dropped.
package classify

import (
	"strings"

	"github.com/razaq-yassine/errorscope/pkg/models"
)

// categoryRule matches keywords against the combined lowercase signal.
// Rules are checked in order; the first hit wins.
type categoryRule struct {
	category string
	keywords []string
}

// Ordering matters: more specific concerns (payment, rate limiting) are
// checked before broad ones (network, internal).
var categoryRules = []categoryRule{
	{models.CategoryPayment, []string{"payment", "stripe", "card", "charge", "invoice", "declined", "billing"}},
	{models.CategoryRateLimit, []string{"rate limit", "ratelimit", "too many requests", "429", "throttl", "quota exceeded"}},
	{models.CategoryAuthentication, []string{"authentication", "unauthenticated", "login", "credential", "token expired", "invalid token", "jwt", "session expired", "401"}},
	{models.CategoryAuthorization, []string{"authorization", "forbidden", "permission", "not allowed", "access denied", "403"}},
	{models.CategoryValidation, []string{"validation", "invalid input", "malformed", "required field", "must be", "unprocessable", "bad request", "422"}},
	{models.CategoryDatabase, []string{"database", "sql", "postgres", "pgx", "deadlock", "constraint", "duplicate key", "connection pool", "transaction"}},
	{models.CategoryConfiguration, []string{"configuration", "config", "env var", "environment variable", "missing setting", "misconfigur"}},
	{models.CategoryFileOperation, []string{"file", "upload", "download", "disk", "no such file", "permission denied", "enoent", "read-only"}},
	{models.CategoryResource, []string{"out of memory", "oom", "resource exhausted", "too large", "capacity", "no space left"}},
	{models.CategoryExternalService, []string{"external", "upstream", "third-party", "third party", "api error", "bad gateway", "502", "503", "service unavailable", "openai", "webhook"}},
	{models.CategoryNetwork, []string{"network", "timeout", "timed out", "connection refused", "connection reset", "dns", "unreachable", "fetch failed", "econn", "socket"}},
}

// error_type name fragments that decide category before message keywords.
var typeRules = []categoryRule{
	{models.CategoryPayment, []string{"payment", "card", "billing"}},
	{models.CategoryRateLimit, []string{"ratelimit", "throttle"}},
	{models.CategoryAuthentication, []string{"auth", "login", "credential", "token"}},
	{models.CategoryAuthorization, []string{"forbidden", "permission", "access"}},
	{models.CategoryValidation, []string{"validation", "invalid", "parse"}},
	{models.CategoryDatabase, []string{"database", "sql", "query", "db"}},
	{models.CategoryConfiguration, []string{"config"}},
	{models.CategoryFileOperation, []string{"file", "upload", "io"}},
	{models.CategoryResource, []string{"memory", "resource", "capacity"}},
	{models.CategoryExternalService, []string{"upstream", "gateway", "external"}},
	{models.CategoryNetwork, []string{"network", "timeout", "connection", "fetch"}},
}

// Severity defaults per category. Keyword overrides in Classify can raise
// or lower these for individual events.
var categorySeverity = map[string]string{
	models.CategoryAuthentication:  models.SeverityWarning,
	models.CategoryAuthorization:   models.SeverityWarning,
	models.CategoryValidation:      models.SeverityWarning,
	models.CategoryDatabase:        models.SeverityCritical,
	models.CategoryNetwork:         models.SeverityError,
	models.CategoryExternalService: models.SeverityError,
	models.CategoryFileOperation:   models.SeverityError,
	models.CategoryPayment:         models.SeverityError,
	models.CategoryRateLimit:       models.SeverityWarning,
	models.CategoryResource:        models.SeverityCritical,
	models.CategoryInternal:        models.SeverityError,
	models.CategoryConfiguration:   models.SeverityCritical,
}

var criticalMarkers = []string{"panic", "fatal", "out of memory", "data loss", "corrupt"}
var infoMarkers = []string{"deprecated", "diagnostic", "debug"}

// Classify maps (error type name, message, originating subsystem) to a
// (category, severity) pair within the fixed taxonomy. source is the
// subsystem that raised the error (e.g. "checkout", "api") and participates
// in keyword matching only.
func Classify(errorType, message, source string) (category, severity string) {
	lowType := strings.ToLower(errorType)
	signal := lowType + " " + strings.ToLower(message) + " " + strings.ToLower(source)

	category = models.CategoryInternal
	matched := false
	for _, rule := range typeRules {
		if containsAny(lowType, rule.keywords) {
			category = rule.category
			matched = true
			break
		}
	}
	if !matched {
		for _, rule := range categoryRules {
			if containsAny(signal, rule.keywords) {
				category = rule.category
				break
			}
		}
	}

	severity = categorySeverity[category]
	if severity == "" {
		severity = models.SeverityError
	}
	switch {
	case containsAny(signal, criticalMarkers):
		severity = models.SeverityCritical
	case containsAny(signal, infoMarkers):
		severity = models.SeverityInfo
	}
	return category, severity
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
