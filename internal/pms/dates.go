package pms

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
	"02/01/2006",
}

// ParseDate coerces a PMS date string to a time. Empty or unparseable input
// yields nil rather than an error; a bad date on one record must not fail a sync.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.IsZero() {
				return nil
			}
			return &t
		}
	}
	return nil
}
