package quota

import (
	"strings"
	"time"
)

// Appointment is the subset of a synced appointment the quota rules read.
type Appointment struct {
	Type   string
	Status string
	Date   *time.Time
}

// IsCompletedStatus reports whether a PMS status counts as a delivered session.
func IsCompletedStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "attended", "finished":
		return true
	default:
		return false
	}
}

// IsCancelledStatus reports whether a PMS status marks a cancelled or missed visit.
func IsCancelledStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "no_show", "no-show", "did_not_arrive", "dna":
		return true
	default:
		return false
	}
}

// ActiveYear is the EPC counting window: the calendar year, in the clinic's
// location, of its most recent completed appointment, or now's year when
// there is none. A nil loc means UTC.
func ActiveYear(latestCompleted *time.Time, now time.Time, loc *time.Location) int {
	if latestCompleted != nil && !latestCompleted.IsZero() {
		return yearIn(*latestCompleted, loc)
	}
	return yearIn(now, loc)
}

func yearIn(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Year()
}

// Counts are sessions used per scheme for one patient.
type Counts struct {
	WC  int
	EPC int
}

// CountSessions counts completed funded sessions. WC sessions are counted
// regardless of date; EPC sessions only when dated within activeYear as
// seen from loc.
func CountSessions(appts []Appointment, classifier *Classifier, activeYear int, loc *time.Location) Counts {
	var counts Counts
	for _, appt := range appts {
		if !IsCompletedStatus(appt.Status) {
			continue
		}
		switch classifier.Classify(appt.Type) {
		case SchemeWC:
			counts.WC++
		case SchemeEPC:
			if appt.Date != nil && yearIn(*appt.Date, loc) == activeYear {
				counts.EPC++
			}
		}
	}
	return counts
}

// LatestCompleted returns the most recent dated completed appointment, if any.
func LatestCompleted(appts []Appointment) *Appointment {
	var latest *Appointment
	for i := range appts {
		appt := &appts[i]
		if !IsCompletedStatus(appt.Status) || appt.Date == nil {
			continue
		}
		if latest == nil || appt.Date.After(*latest.Date) {
			latest = appt
		}
	}
	return latest
}

// NextScheduled returns the earliest non-cancelled, non-completed appointment after now.
func NextScheduled(appts []Appointment, now time.Time) *Appointment {
	var next *Appointment
	for i := range appts {
		appt := &appts[i]
		if appt.Date == nil || !appt.Date.After(now) {
			continue
		}
		if IsCompletedStatus(appt.Status) || IsCancelledStatus(appt.Status) {
			continue
		}
		if next == nil || appt.Date.Before(*next.Date) {
			next = appt
		}
	}
	return next
}
