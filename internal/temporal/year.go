// Package temporal normalizes free-text historical date tags into signed
// calendar years and defines when a dated feature is active.
package temporal

import (
	"database/sql"
	"strconv"
	"strings"
)

// ParseYear converts a raw date tag into a signed calendar year.
//
// Accepted forms: "1850", "1850-06", "1850-06-15", "-0500", "-0500-01-01",
// "500 BCE", "500 BC", "500 CE" and any of those prefixed with "~".
// Positive years are CE, negative years are BCE. The second return value is
// false when the input carries no usable year; it is never an error.
func ParseYear(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	s = strings.TrimSpace(strings.TrimLeft(s, "~"))
	if s == "" {
		return 0, false
	}

	if rest, ok := cutSuffixFold(s, "BCE", "BC"); ok {
		n, ok := parseInt(rest)
		if !ok {
			return 0, false
		}
		if n > 0 {
			n = -n
		}
		return n, true
	}

	if rest, ok := cutSuffixFold(s, "CE"); ok {
		return parseInt(rest)
	}

	if strings.HasPrefix(s, "-") {
		n, ok := parseInt(firstSegment(s[1:]))
		if !ok {
			return 0, false
		}
		return -n, true
	}

	return parseInt(firstSegment(s))
}

// ParseNullYear is ParseYear shaped for a nullable integer column.
func ParseNullYear(raw string) sql.NullInt64 {
	year, ok := ParseYear(raw)
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(year), Valid: true}
}

// cutSuffixFold strips the first matching suffix, compared case-insensitively,
// when it is preceded by whitespace. The remainder is returned trimmed.
func cutSuffixFold(s string, suffixes ...string) (string, bool) {
	for _, suffix := range suffixes {
		if len(s) <= len(suffix) {
			continue
		}
		head, tail := s[:len(s)-len(suffix)], s[len(s)-len(suffix):]
		if !strings.EqualFold(tail, suffix) {
			continue
		}
		if strings.TrimRight(head, " \t\r\n\v\f") == head {
			continue
		}
		return strings.TrimSpace(head), true
	}
	return "", false
}

func firstSegment(s string) string {
	seg, _, _ := strings.Cut(s, "-")
	return seg
}

// parseInt accepts an optionally signed decimal that fits a 32-bit column.
func parseInt(s string) (int, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
