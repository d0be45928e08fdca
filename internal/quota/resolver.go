package quota

const (
	DefaultWCQuota  = 8
	DefaultEPCQuota = 5
)

// Quotas are the session entitlements per scheme.
type Quotas struct {
	WC  int `json:"wc"`
	EPC int `json:"epc"`
}

// DefaultQuotas returns the system-wide entitlements.
func DefaultQuotas() Quotas {
	return Quotas{WC: DefaultWCQuota, EPC: DefaultEPCQuota}
}

// Merge layers positive override values on top of q.
func (q Quotas) Merge(override Quotas) Quotas {
	if override.WC > 0 {
		q.WC = override.WC
	}
	if override.EPC > 0 {
		q.EPC = override.EPC
	}
	return q
}

// For returns the entitlement for a scheme, zero for SchemeNone.
func (q Quotas) For(scheme Scheme) int {
	switch scheme {
	case SchemeWC:
		return q.WC
	case SchemeEPC:
		return q.EPC
	default:
		return 0
	}
}

// Resolve returns the quota for a scheme and the sessions left, never negative.
func Resolve(scheme Scheme, used int, quotas Quotas) (total, remaining int) {
	total = quotas.For(scheme)
	remaining = total - used
	if remaining < 0 {
		remaining = 0
	}
	return total, remaining
}
