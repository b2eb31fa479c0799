package governor

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Verdict is a classified stage outcome; it is stored as the stage result
type Verdict = session.Result

const (
	VerdictPass   = session.ResultPass
	VerdictFail   = session.ResultFail
	VerdictReject = session.ResultReject
	VerdictIssues = session.ResultIssues
)

// Source tells which parser produced a classification
type Source string

const (
	SourceStructured Source = "structured"
	SourceHeuristic  Source = "heuristic"
)

// Classification is the outcome of ClassifyOutcome
type Classification struct {
	Verdict  Verdict `json:"verdict"`
	Source   Source  `json:"source"`
	Evidence string  `json:"evidence,omitempty"`
}

var (
	verdictLineRe  = regexp.MustCompile(`(?i)^[\s*#>_-]*verdict[*_]*\s*[:=]\s*[*_]*\s*([a-z_]+)`)
	decisionLineRe = regexp.MustCompile(`(?i)^DECISION:\s+(OK|NEEDS_CHANGES)\s*$`)
	verdictTagRe   = regexp.MustCompile(`(?i)<verdict>\s*([a-z_]+)\s*</verdict>`)
)

// ClassifyOutcome turns an executor report into a verdict. An explicit verdict
// embedded in the report wins; otherwise a heuristic keyed by the stage kind is used.
func ClassifyOutcome(report string, kind workflow.StageKind) Classification {
	if v, line, ok := ParseStructuredVerdict(report, kind); ok {
		return Classification{Verdict: v, Source: SourceStructured, Evidence: line}
	}
	return classifyHeuristic(normalize(report), kind)
}

// ParseStructuredVerdict scans the report from the bottom for an explicit verdict:
// "VERDICT: <v>", "<verdict>v</verdict>", a JSON line {"verdict": "v"}, or a
// review "DECISION: OK|NEEDS_CHANGES" line.
func ParseStructuredVerdict(report string, kind workflow.StageKind) (Verdict, string, bool) {
	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(norm.NFKC.String(lines[i]))
		if line == "" {
			continue
		}

		if m := verdictLineRe.FindStringSubmatch(line); len(m) >= 2 {
			if v, ok := parseVerdictWord(m[1]); ok {
				return v, line, true
			}
		}
		if m := verdictTagRe.FindStringSubmatch(line); len(m) >= 2 {
			if v, ok := parseVerdictWord(m[1]); ok {
				return v, line, true
			}
		}
		if strings.HasPrefix(line, "{") {
			var payload struct {
				Verdict string `json:"verdict"`
			}
			if err := json.Unmarshal([]byte(line), &payload); err == nil && payload.Verdict != "" {
				if v, ok := parseVerdictWord(payload.Verdict); ok {
					return v, line, true
				}
			}
		}
		if m := decisionLineRe.FindStringSubmatch(line); len(m) >= 2 {
			if strings.EqualFold(m[1], "OK") {
				return VerdictPass, line, true
			}
			return needsChangesVerdict(kind), line, true
		}
	}
	return "", "", false
}

func parseVerdictWord(s string) (Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "ok", "approved", "success", "succeeded":
		return VerdictPass, true
	case "fail", "failed", "failure":
		return VerdictFail, true
	case "reject", "rejected", "needs_changes":
		return VerdictReject, true
	case "issues", "issue":
		return VerdictIssues, true
	default:
		return "", false
	}
}

// needsChangesVerdict maps a review-style NEEDS_CHANGES decision onto the verdict
// the stage kind understands. Kinds whose heuristic always passes (advisory,
// plan) keep passing so the decision never feeds a retry counter.
func needsChangesVerdict(kind workflow.StageKind) Verdict {
	switch kind {
	case workflow.KindReview:
		return VerdictReject
	case workflow.KindVerification, workflow.KindBuild:
		return VerdictFail
	case workflow.KindRetrospective:
		return VerdictIssues
	default:
		return VerdictPass
	}
}

func normalize(report string) string {
	return strings.ToLower(norm.NFKC.String(report))
}
