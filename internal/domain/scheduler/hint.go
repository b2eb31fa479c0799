package scheduler

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// HintStage is one stage surfaced by a next-step hint
type HintStage struct {
	Key      session.StageKey `json:"key"`
	Label    string           `json:"label,omitempty"`
	Icon     string           `json:"icon,omitempty"`
	Executor string           `json:"executor"`
}

// Hint tells the driver what to run next
type Hint struct {
	Done     bool        `json:"done"`
	Parallel bool        `json:"parallel"`
	Group    string      `json:"group,omitempty"`
	Stages   []HintStage `json:"stages,omitempty"`
}

// String renders the hint as a continuation instruction
func (h Hint) String() string {
	if h.Done || len(h.Stages) == 0 {
		return "no stages remain"
	}
	if !h.Parallel {
		s := h.Stages[0]
		return fmt.Sprintf("run %s with executor %s", s.Key, s.Executor)
	}
	parts := make([]string, len(h.Stages))
	for i, s := range h.Stages {
		parts[i] = fmt.Sprintf("%s (%s)", s.Key, s.Executor)
	}
	return fmt.Sprintf("run in parallel [%s]: %s", h.Group, strings.Join(parts, ", "))
}

// NextStepHint computes what to run next. When the current stage starts a
// contiguous run of pending stages from one parallel group that became eligible
// (its "after" stage completed earlier), the whole run is surfaced jointly.
// Otherwise the single current stage is surfaced.
func NextStepHint(st *session.State, tpl workflow.WorkflowTemplate, reg Registry) Hint {
	if st.CurrentStage == nil {
		return Hint{Done: true}
	}
	cur := *st.CurrentStage
	start := -1
	for i, rt := range st.Stages {
		if rt.Key == cur {
			start = i
			break
		}
	}
	if start < 0 {
		return Hint{Done: true}
	}

	for _, name := range tpl.ParallelGroups {
		group, err := reg.ParallelGroup(name)
		if err != nil || !group.HasMember(cur.Base) {
			continue
		}
		if !groupEligible(st, group, start) {
			continue
		}

		var run []session.StageKey
		for _, rt := range st.Stages[start:] {
			if rt.Status != session.StatusPending || !group.HasMember(rt.Key.Base) {
				break
			}
			run = append(run, rt.Key)
		}
		if len(run) >= 2 {
			h := Hint{Parallel: true, Group: name}
			for _, k := range run {
				h.Stages = append(h.Stages, hintStage(reg, k))
			}
			return h
		}
	}

	return Hint{Stages: []HintStage{hintStage(reg, cur)}}
}

// groupEligible reports whether the group's "after" stage completed before index start
func groupEligible(st *session.State, group workflow.ParallelGroupDefinition, start int) bool {
	if group.After == "" {
		return true
	}
	for _, rt := range st.Stages[:start] {
		if rt.Key.Base == group.After && rt.Status == session.StatusCompleted {
			return true
		}
	}
	return false
}

func hintStage(reg Registry, key session.StageKey) HintStage {
	hs := HintStage{Key: key}
	if def, err := reg.StageDefinition(key.Base); err == nil {
		hs.Label = def.Label
		hs.Icon = def.Icon
		hs.Executor = def.Executor
	}
	return hs
}
