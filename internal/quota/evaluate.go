package quota

import "time"

// Program is the funding program recorded on a patient.
type Program string

const (
	ProgramUnset   Program = ""
	ProgramWC      Program = "WC"
	ProgramEPC     Program = "EPC"
	ProgramPrivate Program = "Private"
)

// Rules is the per-clinic configuration the pipeline runs with.
type Rules struct {
	Tags   Tags
	Quotas Quotas
	// Location sets calendar-year boundaries for EPC counting. Nil means UTC.
	Location *time.Location
}

// Outcome is the evaluated quota state for one patient.
type Outcome struct {
	Counts       Counts
	Program      Program
	Scheme       Scheme
	Eligible     bool
	SessionsUsed int
	Quota        int
	Remaining    int
	Derivation   Derivation
	LastVisit    *Appointment
	NextVisit    *Appointment
}

// Evaluator runs classification, counting, resolution and status derivation
// for the patients of one clinic within a single sync.
type Evaluator struct {
	classifier *Classifier
	quotas     Quotas
	activeYear int
	loc        *time.Location
	now        time.Time
}

// NewEvaluator binds clinic rules to the sync's active year.
func NewEvaluator(rules Rules, activeYear int, now time.Time) *Evaluator {
	return &Evaluator{
		classifier: NewClassifier(rules.Tags),
		quotas:     DefaultQuotas().Merge(rules.Quotas),
		activeYear: activeYear,
		loc:        rules.Location,
		now:        now,
	}
}

// ActiveYear returns the EPC window this evaluator counts against.
func (e *Evaluator) ActiveYear() int {
	return e.activeYear
}

// Evaluate computes a patient's outcome. A patient with any WC session is
// tracked under WC; otherwise under EPC when EPC sessions exist. Patients with
// neither keep their prior program (Private when unset) and are not eligible
// for a case.
func (e *Evaluator) Evaluate(prior Program, appts []Appointment) Outcome {
	counts := CountSessions(appts, e.classifier, e.activeYear, e.loc)
	out := Outcome{
		Counts:    counts,
		LastVisit: LatestCompleted(appts),
		NextVisit: NextScheduled(appts, e.now),
	}

	switch {
	case counts.WC > 0:
		out.Scheme = SchemeWC
		out.SessionsUsed = counts.WC
	case counts.EPC > 0:
		out.Scheme = SchemeEPC
		out.SessionsUsed = counts.EPC
	default:
		out.Program = prior
		if prior == ProgramUnset {
			out.Program = ProgramPrivate
		}
		return out
	}

	out.Eligible = true
	out.Program = Program(out.Scheme)
	out.Quota, out.Remaining = Resolve(out.Scheme, out.SessionsUsed, e.quotas)
	out.Derivation = Derive(out.Scheme, out.Remaining)
	return out
}
