package scheduler

import (
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Convergence describes a parallel group whose members all completed
type Convergence struct {
	Group string
	Keys  []session.StageKey
}

// DetectParallelConvergence reports the first group of the template whose member
// keys (at least two present) are all completed, and only when justCompleted is
// the member that completed last. Later unrelated completions report nothing, so
// each group converges once.
func DetectParallelConvergence(st *session.State, tpl workflow.WorkflowTemplate, reg Registry, justCompleted session.StageKey) (Convergence, bool) {
	last := st.Stage(justCompleted)
	if last == nil || last.Status != session.StatusCompleted || last.CompletedAt == nil {
		return Convergence{}, false
	}

	for _, name := range tpl.ParallelGroups {
		group, err := reg.ParallelGroup(name)
		if err != nil {
			continue
		}

		var keys []session.StageKey
		member, converged := false, true
		for _, rt := range st.Stages {
			if !group.HasMember(rt.Key.Base) {
				continue
			}
			keys = append(keys, rt.Key)
			if rt.Key == justCompleted {
				member = true
			}
			if rt.Status != session.StatusCompleted || rt.CompletedAt == nil {
				converged = false
				continue
			}
			if rt.CompletedAt.After(*last.CompletedAt) {
				converged = false
			}
		}

		if len(keys) >= 2 && member && converged {
			return Convergence{Group: name, Keys: keys}, true
		}
	}
	return Convergence{}, false
}
