package state

import (
	"encoding/json"
	"fmt"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/validator/common"
)

var (
	validStatuses = map[string]bool{
		string(session.StatusPending):   true,
		string(session.StatusActive):    true,
		string(session.StatusCompleted): true,
	}
	validResults = map[string]bool{
		string(session.ResultNone):   true,
		string(session.ResultPass):   true,
		string(session.ResultFail):   true,
		string(session.ResultReject): true,
		string(session.ResultIssues): true,
	}
	validStopReasons = map[string]bool{
		string(session.StopManual):            true,
		string(session.StopMaxIterations):     true,
		string(session.StopConsecutiveErrors): true,
		string(session.StopCompletedClean):    true,
		string(session.StopCompletedAborted):  true,
	}
)

// ValidateWorkflow checks a workflow.json document for the given session
func ValidateWorkflow(sessionID string, data []byte) common.FileResult {
	result := common.FileResult{File: "workflow.json"}
	var issues common.Issues

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		issues.Errorf("", "invalid JSON: %v", err)
		result.Issues = issues
		return result
	}
	common.ValidateRequiredKeys(raw, []string{"session_id", "workflow_type", "revision", "updated_at", "stages", "fail_count", "reject_count"}, &issues)
	if rev, ok := raw["revision"]; ok {
		common.ValidateMinInt(rev, "revision", 1, &issues)
	}
	if ts, ok := raw["updated_at"]; ok {
		common.ValidateTimestampUTC(ts, "updated_at", &issues)
	}
	if len(issues) > 0 {
		result.Issues = issues
		return result
	}

	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		issues.Errorf("", "type validation failed: %v", err)
		result.Issues = issues
		return result
	}
	validateState(sessionID, &st, &issues)
	result.Issues = issues
	return result
}

func validateState(sessionID string, st *session.State, issues *common.Issues) {
	if st.SessionID != sessionID {
		issues.Errorf("session_id", "session_id %q does not match directory %q", st.SessionID, sessionID)
	}
	if st.FailCount < 0 || st.RejectCount < 0 {
		issues.Errorf("fail_count", "counters must not be negative")
	}

	seen := make(map[session.StageKey]bool, len(st.Stages))
	occurrences := make(map[string]int)
	executors := 0
	for i, rt := range st.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if seen[rt.Key] {
			issues.Errorf(field, "duplicate stage key %s", rt.Key)
		}
		seen[rt.Key] = true
		occurrences[rt.Key.Base]++
		if rt.Key.Occurrence != occurrences[rt.Key.Base] {
			issues.Errorf(field, "stage key %s breaks the occurrence order of %s", rt.Key, rt.Key.Base)
		}
		common.ValidateEnum(string(rt.Status), field+".status", validStatuses, issues)
		common.ValidateEnum(string(rt.Result), field+".result", validResults, issues)
		if rt.Status == session.StatusCompleted && rt.Result == session.ResultNone {
			issues.Errorf(field, "completed stage %s has no result", rt.Key)
		}
		if rt.Status == session.StatusActive && rt.Executor != "" {
			executors++
		}
	}

	want := st.Clone()
	want.RecomputeCurrent()
	if !sameKey(want.CurrentStage, st.CurrentStage) {
		issues.Errorf("current_stage", "current_stage is %s, expected %s", keyString(st.CurrentStage), keyString(want.CurrentStage))
	}
	if len(st.ActiveExecutors) != executors {
		issues.Warnf("active_executors", "%d active executors recorded for %d active stages", len(st.ActiveExecutors), executors)
	}
	if st.Escalation != nil && st.Stage(st.Escalation.Stage) == nil {
		issues.Errorf("escalation", "escalated stage %s is not part of the session", st.Escalation.Stage)
	}
}

// ValidateLoop checks a loop.json document
func ValidateLoop(data []byte) common.FileResult {
	result := common.FileResult{File: "loop.json"}
	var issues common.Issues

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		issues.Errorf("", "invalid JSON: %v", err)
		result.Issues = issues
		return result
	}
	common.ValidateRequiredKeys(raw, []string{"session_id", "revision", "iteration", "stopped", "consecutive_errors", "started_at"}, &issues)
	if it, ok := raw["iteration"]; ok {
		common.ValidateMinInt(it, "iteration", 0, &issues)
	}
	if ce, ok := raw["consecutive_errors"]; ok {
		common.ValidateMinInt(ce, "consecutive_errors", 0, &issues)
	}
	if len(issues) > 0 {
		result.Issues = issues
		return result
	}

	var ls session.LoopState
	if err := json.Unmarshal(data, &ls); err != nil {
		issues.Errorf("", "type validation failed: %v", err)
		result.Issues = issues
		return result
	}
	if ls.Stopped {
		common.ValidateEnum(string(ls.StopReason), "stop_reason", validStopReasons, &issues)
		if ls.StoppedAt == nil {
			issues.Warnf("stopped_at", "stopped loop has no stopped_at")
		}
	} else if ls.StopReason != "" {
		issues.Errorf("stop_reason", "running loop carries stop reason %s", ls.StopReason)
	}
	result.Issues = issues
	return result
}

func sameKey(a, b *session.StageKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func keyString(k *session.StageKey) string {
	if k == nil {
		return "null"
	}
	return k.String()
}
