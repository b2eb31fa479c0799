package timeline

import (
	"sort"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
)

// StageReliability is pass@k for one stage base
type StageReliability struct {
	Stage    string           `json:"stage"`
	Attempts []session.Result `json:"attempts"`
	Pass1    bool             `json:"pass1"`
	Pass3    bool             `json:"pass3"`
	// PassConsecutive3 is nil until the stage has three attempts
	PassConsecutive3 *bool `json:"pass_consecutive3"`
}

// Reliability aggregates pass@k across all stage bases of a session
type Reliability struct {
	Stages                []StageReliability `json:"stages"`
	StageCount            int                `json:"stage_count"`
	TotalAttempts         int                `json:"total_attempts"`
	Pass1Count            int                `json:"pass1_count"`
	Pass3Count            int                `json:"pass3_count"`
	Consecutive3Evaluated int                `json:"consecutive3_evaluated"`
	Consecutive3Count     int                `json:"consecutive3_count"`
	Pass1Rate             float64            `json:"pass1_rate"`
	Pass3Rate             float64            `json:"pass3_rate"`
	Consecutive3Rate      float64            `json:"consecutive3_rate"`
}

// ComputeReliability derives pass@k from stage.verdict events in log order.
// Events carry the stage key in payload "stage" and the verdict in "verdict";
// suffixed keys count toward their base.
func ComputeReliability(events []Event) Reliability {
	attempts := map[string][]session.Result{}
	var order []string

	for _, e := range events {
		if e.Type != TypeStageVerdict {
			continue
		}
		v := session.Result(e.StringField("verdict"))
		if !v.IsValid() || v == session.ResultNone {
			continue
		}
		base := e.StringField("stage")
		if k, err := session.ParseStageKey(base); err == nil {
			base = k.Base
		}
		if base == "" {
			continue
		}
		if _, ok := attempts[base]; !ok {
			order = append(order, base)
		}
		attempts[base] = append(attempts[base], v)
	}

	rel := Reliability{Stages: make([]StageReliability, 0, len(order))}
	for _, base := range order {
		sr := StageReliabilityOf(base, attempts[base])
		rel.Stages = append(rel.Stages, sr)

		rel.TotalAttempts += len(sr.Attempts)
		if sr.Pass1 {
			rel.Pass1Count++
		}
		if sr.Pass3 {
			rel.Pass3Count++
		}
		if sr.PassConsecutive3 != nil {
			rel.Consecutive3Evaluated++
			if *sr.PassConsecutive3 {
				rel.Consecutive3Count++
			}
		}
	}
	sort.SliceStable(rel.Stages, func(i, j int) bool { return rel.Stages[i].Stage < rel.Stages[j].Stage })

	rel.StageCount = len(rel.Stages)
	rel.Pass1Rate = rate(rel.Pass1Count, rel.StageCount)
	rel.Pass3Rate = rate(rel.Pass3Count, rel.StageCount)
	rel.Consecutive3Rate = rate(rel.Consecutive3Count, rel.Consecutive3Evaluated)
	return rel
}

// StageReliabilityOf computes pass@k over one ordered attempt list
func StageReliabilityOf(base string, attempts []session.Result) StageReliability {
	sr := StageReliability{Stage: base, Attempts: append([]session.Result{}, attempts...)}
	if len(attempts) == 0 {
		return sr
	}

	sr.Pass1 = attempts[0] == session.ResultPass
	for i := 0; i < len(attempts) && i < 3; i++ {
		if attempts[i] == session.ResultPass {
			sr.Pass3 = true
			break
		}
	}
	if len(attempts) >= 3 {
		all := true
		for _, a := range attempts[len(attempts)-3:] {
			if a != session.ResultPass {
				all = false
				break
			}
		}
		sr.PassConsecutive3 = &all
	}
	return sr
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
