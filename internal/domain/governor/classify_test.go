package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

func TestClassifyStructured(t *testing.T) {
	tests := []struct {
		name   string
		report string
		kind   workflow.StageKind
		want   Verdict
	}{
		{
			name:   "verdict line wins over keywords",
			report: "Found 3 failures in legacy code, all pre-existing.\nVERDICT: PASS",
			kind:   workflow.KindVerification,
			want:   VerdictPass,
		},
		{
			name:   "markdown verdict",
			report: "Summary\n**Verdict**: REJECT",
			kind:   workflow.KindReview,
			want:   VerdictReject,
		},
		{
			name:   "last verdict line wins",
			report: "VERDICT: FAIL\nre-ran after fix\nVERDICT: PASS",
			kind:   workflow.KindVerification,
			want:   VerdictPass,
		},
		{
			name:   "xml tag",
			report: "done <verdict>issues</verdict>",
			kind:   workflow.KindRetrospective,
			want:   VerdictIssues,
		},
		{
			name:   "json line",
			report: "log output\n{\"verdict\": \"fail\", \"tests\": 12}",
			kind:   workflow.KindVerification,
			want:   VerdictFail,
		},
		{
			name:   "review decision needs changes",
			report: "Looks mostly good\nDECISION: NEEDS_CHANGES",
			kind:   workflow.KindReview,
			want:   VerdictReject,
		},
		{
			name:   "decision needs changes on verification",
			report: "DECISION: NEEDS_CHANGES",
			kind:   workflow.KindVerification,
			want:   VerdictFail,
		},
		{
			name:   "decision needs changes on advisory still passes",
			report: "DECISION: NEEDS_CHANGES",
			kind:   workflow.KindAdvisory,
			want:   VerdictPass,
		},
		{
			name:   "decision needs changes on plan passes",
			report: "DECISION: NEEDS_CHANGES",
			kind:   workflow.KindPlan,
			want:   VerdictPass,
		},
		{
			name:   "decision ok",
			report: "DECISION: OK",
			kind:   workflow.KindReview,
			want:   VerdictPass,
		},
		{
			name:   "full-width verdict is normalized",
			report: "ＶＥＲＤＩＣＴ： ＦＡＩＬ",
			kind:   workflow.KindVerification,
			want:   VerdictFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyOutcome(tt.report, tt.kind)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, SourceStructured, got.Source)
			assert.NotEmpty(t, got.Evidence)
		})
	}
}

func TestClassifyHeuristic(t *testing.T) {
	tests := []struct {
		name   string
		report string
		kind   workflow.StageKind
		want   Verdict
	}{
		{name: "review rejection", report: "I reject this change: the API is unsafe.", kind: workflow.KindReview, want: VerdictReject},
		{name: "review changes requested", report: "Changes requested on two files.", kind: workflow.KindReview, want: VerdictReject},
		{name: "review negated rejection", report: "No rejection, approved.", kind: workflow.KindReview, want: VerdictPass},
		{name: "review clean", report: "LGTM", kind: workflow.KindReview, want: VerdictPass},
		{name: "tests failed", report: "3 tests failed", kind: workflow.KindVerification, want: VerdictFail},
		{name: "zero failed", report: "Tests: 42 passed, 0 failed", kind: workflow.KindVerification, want: VerdictPass},
		{name: "no failures", report: "All green, no failures.", kind: workflow.KindVerification, want: VerdictPass},
		{name: "bare error", report: "build stopped with an error in main.go", kind: workflow.KindVerification, want: VerdictFail},
		{name: "safe error phrases", report: "Improved error handling; output is error-free and there were no errors.", kind: workflow.KindVerification, want: VerdictPass},
		{name: "negation in earlier clause does not leak", report: "No failures in unit. E2E failed.", kind: workflow.KindVerification, want: VerdictFail},
		{name: "advisory always passes", report: "critical failure, reject everything", kind: workflow.KindAdvisory, want: VerdictPass},
		{name: "retro suggestions", report: "Suggestion: split the module next time.", kind: workflow.KindRetrospective, want: VerdictIssues},
		{name: "retro no issues", report: "No issues found.", kind: workflow.KindRetrospective, want: VerdictPass},
		{name: "retro zero issues", report: "0 issues", kind: workflow.KindRetrospective, want: VerdictPass},
		{name: "unknown kind passes", report: "failed failed failed", kind: workflow.KindUnknown, want: VerdictPass},
		{name: "build kind passes", report: "error", kind: workflow.KindBuild, want: VerdictPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyOutcome(tt.report, tt.kind)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, SourceHeuristic, got.Source)
		})
	}
}
