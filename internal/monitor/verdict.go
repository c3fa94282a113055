package monitor

import "fmt"

// Verdict classifies a feed's arrival status for one COB date.
type Verdict string

const (
	VerdictReceived Verdict = "received"
	VerdictDelayed  Verdict = "delayed"
	VerdictMissing  Verdict = "missing"
	VerdictPartial  Verdict = "partial"
	VerdictFailed   Verdict = "failed"
	VerdictUnknown  Verdict = "unknown"
)

// severity ranks verdicts for alerting: received < delayed < partial <
// missing < failed. Unknown carries no rank.
var severity = map[Verdict]int{
	VerdictReceived: 0,
	VerdictDelayed:  1,
	VerdictPartial:  2,
	VerdictMissing:  3,
	VerdictFailed:   4,
}

// ParseVerdict converts a stored string back into a Verdict.
func ParseVerdict(value string) (Verdict, error) {
	switch v := Verdict(value); v {
	case VerdictReceived, VerdictDelayed, VerdictMissing, VerdictPartial, VerdictFailed, VerdictUnknown:
		return v, nil
	default:
		return VerdictUnknown, fmt.Errorf("unknown verdict %q", value)
	}
}

// String implements fmt.Stringer.
func (v Verdict) String() string {
	return string(v)
}

// Anomalous reports whether the verdict should be considered for alerting.
func (v Verdict) Anomalous() bool {
	return v == VerdictDelayed || v == VerdictMissing || v == VerdictPartial || v == VerdictFailed
}

// Severity returns the alerting rank and whether the verdict is comparable.
func (v Verdict) Severity() (int, bool) {
	rank, ok := severity[v]
	return rank, ok
}

// MoreSevereThan compares two verdicts on the severity order. Unknown
// is never more severe than anything.
func (v Verdict) MoreSevereThan(other Verdict) bool {
	left, ok := v.Severity()
	if !ok {
		return false
	}
	right, ok := other.Severity()
	if !ok {
		return true
	}
	return left > right
}
