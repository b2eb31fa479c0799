package governor

import (
	"regexp"
	"strings"

	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Keyword patterns run against NFKC-normalized, lower-cased text
var (
	rejectRe  = regexp.MustCompile(`\b(reject(?:ed|ion|ions|s)?|changes requested|request(?:ed|ing)? changes|needs[ _]changes)\b`)
	failRe    = regexp.MustCompile(`\b(fail(?:ed|ure|ures|ing|s)?|broken|panic(?:ked|s)?)\b`)
	errorRe   = regexp.MustCompile(`\berrors?\b`)
	safeErrRe = regexp.MustCompile(`\b(?:no|0|zero|without)\s+errors?\b|\berrors?[- ](?:handling|free|messages?|cases?|paths?|codes?)\b`)
	issuesRe  = regexp.MustCompile(`\b(issues?|improve(?:ment|ments|d)?|suggest(?:ion|ions|ed)?|recommend(?:ation|ations|ed)?)\b`)
)

// negators are words that cancel a keyword when they directly precede it
var negators = map[string]struct{}{
	"no": {}, "not": {}, "without": {}, "zero": {}, "0": {}, "never": {}, "none": {},
}

// classifyHeuristic is the fallback when the report carries no explicit verdict
func classifyHeuristic(text string, kind workflow.StageKind) Classification {
	c := Classification{Verdict: VerdictPass, Source: SourceHeuristic}

	switch kind {
	case workflow.KindReview:
		if ev, ok := firstUnnegated(text, rejectRe); ok {
			c.Verdict, c.Evidence = VerdictReject, ev
		}
	case workflow.KindVerification:
		if ev, ok := firstUnnegated(text, failRe); ok {
			c.Verdict, c.Evidence = VerdictFail, ev
		} else if ev, ok := firstUnnegated(safeErrRe.ReplaceAllString(text, " "), errorRe); ok {
			c.Verdict, c.Evidence = VerdictFail, ev
		}
	case workflow.KindRetrospective:
		if ev, ok := firstUnnegated(text, issuesRe); ok {
			c.Verdict, c.Evidence = VerdictIssues, ev
		}
	}
	return c
}

// firstUnnegated returns the first keyword match not directly preceded by a
// negating word (at most one filler word may sit between them, as in "no new issues").
func firstUnnegated(text string, re *regexp.Regexp) (string, bool) {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if negated(text[:loc[0]]) {
			continue
		}
		return text[loc[0]:loc[1]], true
	}
	return "", false
}

func negated(prefix string) bool {
	// Only look inside the current clause
	if i := strings.LastIndexAny(prefix, ".;!?\n"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := strings.FieldsFunc(prefix, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
	for i := len(words) - 1; i >= 0 && i >= len(words)-2; i-- {
		if _, ok := negators[words[i]]; ok {
			return true
		}
	}
	return false
}
