package governor

import (
	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
)

// RecordOutcome counts one attempt of the stage and bumps the session-wide
// fail or reject counter. Counters never decrease.
func RecordOutcome(st *session.State, key session.StageKey, v Verdict) error {
	rt := st.Stage(key)
	if rt == nil {
		return failure.Programming("UNKNOWN_STAGE_KEY", "stage %s is not part of session %s", key, st.SessionID)
	}
	switch v {
	case VerdictPass, VerdictIssues:
	case VerdictFail:
		st.FailCount++
	case VerdictReject:
		st.RejectCount++
	default:
		return failure.Programming("INVALID_VERDICT", "invalid verdict %q", v)
	}
	rt.Attempts++
	return nil
}

// Counter returns the session counter that a verdict feeds, or 0 for
// verdicts that are not retried
func Counter(st *session.State, v Verdict) int {
	switch v {
	case VerdictFail:
		return st.FailCount
	case VerdictReject:
		return st.RejectCount
	default:
		return 0
	}
}

// CheckThreshold reports whether automatic retries are exhausted.
// Exceeding it calls for escalation, not another retry.
func CheckThreshold(counter, maxRetries int) bool {
	return maxRetries > 0 && counter >= maxRetries
}

// IsRetryable reports whether a verdict sends the stage back for another attempt
func IsRetryable(v Verdict) bool {
	return v == VerdictFail || v == VerdictReject
}
