// Package correlate derives the stable fingerprint that groups repeats of
// the same underlying defect. The fingerprint covers the error type, the
// assigned category, and the normalized first line of the stack trace (or
// the technical message when no trace is present) with volatile tokens
// stripped, so retries of one defect hash identically across processes.
package correlate

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reLongNum    = regexp.MustCompile(`\b\d{4,}\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const maxNormalizedBytes = 500

// Fingerprint computes the SHA-256 hex fingerprint for an event.
// signal should be the stack trace when available, otherwise the technical
// message; only its first line participates.
func Fingerprint(errorType, category, signal string) string {
	input := errorType + "\x00" + category + "\x00" + NormalizeSignal(signal)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// NormalizeSignal reduces a stack trace or message to its stable first line:
// timestamps, memory addresses, UUIDs, and numeric ids are replaced with
// placeholders so volatile tokens never split a group.
func NormalizeSignal(signal string) string {
	line := FirstLine(signal)
	line = reDatetime.ReplaceAllString(line, "TIME")
	line = reHexAddr.ReplaceAllString(line, "0xADDR")
	line = reUUID.ReplaceAllString(line, "UUID")
	line = reBracketNum.ReplaceAllString(line, "[N]")
	line = reParenNum.ReplaceAllString(line, "(N)")
	line = reLongNum.ReplaceAllString(line, "N")
	line = reWhitespace.ReplaceAllString(line, " ")
	line = strings.ToLower(line)
	line = strings.TrimSpace(line)
	return truncateString(line, maxNormalizedBytes)
}

// FirstLine returns the first non-empty line of s.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
