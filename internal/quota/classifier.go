// Package quota holds the session-quota rules for funded physiotherapy programs.
// Workers Compensation entitlements are counted per injury with no date bound;
// Enhanced Primary Care entitlements reset every calendar year.
package quota

import "strings"

// Scheme is a funding scheme an appointment can be billed under.
type Scheme string

const (
	SchemeNone Scheme = ""
	SchemeWC   Scheme = "WC"
	SchemeEPC  Scheme = "EPC"
)

// Tags are the clinic-configured appointment type labels for each scheme.
type Tags struct {
	WC  []string `json:"wc_tags"`
	EPC []string `json:"epc_tags"`
}

// Overlap returns the normalized tags present in both lists.
func (t Tags) Overlap() []string {
	wc := tagSet(t.WC)
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range t.EPC {
		key := normalizeType(tag)
		if key == "" {
			continue
		}
		if _, ok := wc[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Classifier labels appointment types with a scheme.
// Matching is exact after trimming and lowercasing. WC is checked before EPC,
// so a type configured under both schemes is classified as WC.
type Classifier struct {
	wc  map[string]struct{}
	epc map[string]struct{}
}

// NewClassifier builds a classifier from the clinic's tag lists.
func NewClassifier(tags Tags) *Classifier {
	return &Classifier{
		wc:  tagSet(tags.WC),
		epc: tagSet(tags.EPC),
	}
}

// Classify returns the scheme for an appointment type, or SchemeNone.
func (c *Classifier) Classify(appointmentType string) Scheme {
	key := normalizeType(appointmentType)
	if key == "" || c == nil {
		return SchemeNone
	}
	if _, ok := c.wc[key]; ok {
		return SchemeWC
	}
	if _, ok := c.epc[key]; ok {
		return SchemeEPC
	}
	return SchemeNone
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if key := normalizeType(tag); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func normalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
