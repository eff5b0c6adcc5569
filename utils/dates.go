package utils

import (
	"strings"
	"time"
)

const (
	BusinessDateLayout = "2006-01-02"
	gatewayDateLayout  = "02-01-2006"
	clockLayout        = "15:04:05"
)

var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseBusinessDate validates a YYYY-MM-DD business day and returns it normalized.
func ParseBusinessDate(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", NewValidationError("%s is required", field)
	}
	t, err := time.Parse(BusinessDateLayout, value)
	if err != nil {
		return "", NewValidationError("%s must be YYYY-MM-DD", field)
	}
	return t.Format(BusinessDateLayout), nil
}

// ValidateDateRange parses both bounds; an inverted range is an InvalidRangeError.
func ValidateDateRange(from, to string) (string, string, error) {
	f, err := ParseBusinessDate("from_date", from)
	if err != nil {
		return "", "", err
	}
	t, err := ParseBusinessDate("to_date", to)
	if err != nil {
		return "", "", err
	}
	// Normalized YYYY-MM-DD compares lexically.
	if t < f {
		return "", "", NewInvalidRangeError(f, t)
	}
	return f, t, nil
}

// ParseGatewayDate converts the gateway's DD-MM-YYYY into a business day.
func ParseGatewayDate(value string) (string, error) {
	t, err := time.Parse(gatewayDateLayout, strings.TrimSpace(value))
	if err != nil {
		return "", NewValidationError("transactionDate must be DD-MM-YYYY")
	}
	return t.Format(BusinessDateLayout), nil
}

func ParseClock(field, value string) (string, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(value))
	if err != nil {
		return "", NewValidationError("%s must be HH:MM:SS", field)
	}
	return t.Format(clockLayout), nil
}

// CombineDateTime joins a business day and a clock time as a UTC instant.
func CombineDateTime(date, clock string) (time.Time, error) {
	return time.ParseInLocation(BusinessDateLayout+" "+clockLayout, date+" "+clock, time.UTC)
}

// ParseSince reads a feed cursor timestamp. Offset-less values are taken as UTC.
// A "+" in an unescaped query string arrives as a space, so " 05:30" suffixes are repaired.
func ParseSince(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, NewValidationError("since is empty")
	}
	if n := len(s); n > 6 && s[n-6] == ' ' && s[n-3] == ':' {
		s = s[:n-6] + "+" + s[n-5:]
	}
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError("since must be an ISO-8601 timestamp")
}

func FormatCursorTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func TodayIn(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format(BusinessDateLayout)
}
