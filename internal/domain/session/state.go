package session

import (
	"time"

	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Status is a stage's position in its pending → active → completed lifecycle
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Result is the recorded outcome of a stage
type Result string

const (
	ResultNone   Result = "none"
	ResultPass   Result = "pass"
	ResultFail   Result = "fail"
	ResultReject Result = "reject"
	ResultIssues Result = "issues"
)

// IsValid returns true if the result is a known value
func (r Result) IsValid() bool {
	switch r {
	case ResultNone, ResultPass, ResultFail, ResultReject, ResultIssues:
		return true
	default:
		return false
	}
}

// Mode distinguishes verification stages that write specs from those that verify a build
type Mode string

const (
	ModeNone   Mode = ""
	ModeSpec   Mode = "spec"
	ModeVerify Mode = "verify"
)

// StageRuntime is one stage's runtime status
type StageRuntime struct {
	Key         StageKey   `json:"key"`
	Status      Status     `json:"status"`
	Result      Result     `json:"result"`
	Mode        Mode       `json:"mode,omitempty"`
	Executor    string     `json:"executor,omitempty"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Escalation marks a session that exceeded its retry ceiling and needs a human
type Escalation struct {
	Stage   StageKey  `json:"stage"`
	Verdict Result    `json:"verdict"`
	Counter int       `json:"counter"`
	Limit   int       `json:"limit"`
	At      time.Time `json:"at"`
}

// State is the durable workflow state of one session
type State struct {
	SessionID       string            `json:"session_id"`
	WorkflowType    string            `json:"workflow_type"`
	Revision        int64             `json:"revision"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CurrentStage    *StageKey         `json:"current_stage"`
	Stages          []StageRuntime    `json:"stages"`
	ActiveExecutors []string          `json:"active_executors"`
	FailCount       int               `json:"fail_count"`
	RejectCount     int               `json:"reject_count"`
	Feature         string            `json:"feature,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Escalation      *Escalation       `json:"escalation,omitempty"`
}

// InitOptions carries the optional extras of Initialize
type InitOptions struct {
	Feature  string
	Metadata map[string]string
}

// NewState builds the initial state for a session. Stage bases are expanded with
// the duplicate-suffix rule; verification stages placed after a build stage run in
// verify mode, earlier ones in spec mode.
func NewState(sessionID, workflowType string, bases []string, kindOf func(string) workflow.StageKind, opts InitOptions, now time.Time) *State {
	keys := ExpandStageKeys(bases)
	st := &State{
		SessionID:       sessionID,
		WorkflowType:    workflowType,
		CreatedAt:       now,
		UpdatedAt:       now,
		Stages:          make([]StageRuntime, 0, len(keys)),
		ActiveExecutors: []string{},
		Feature:         opts.Feature,
	}
	if len(opts.Metadata) > 0 {
		st.Metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			st.Metadata[k] = v
		}
	}

	buildSeen := false
	for _, k := range keys {
		kind := kindOf(k.Base)
		rt := StageRuntime{Key: k, Status: StatusPending, Result: ResultNone}
		if kind == workflow.KindVerification {
			rt.Mode = ModeSpec
			if buildSeen {
				rt.Mode = ModeVerify
			}
		}
		if kind == workflow.KindBuild {
			buildSeen = true
		}
		st.Stages = append(st.Stages, rt)
	}
	st.RecomputeCurrent()
	return st
}

// Stage returns a pointer to the runtime of key, or nil
func (s *State) Stage(key StageKey) *StageRuntime {
	for i := range s.Stages {
		if s.Stages[i].Key == key {
			return &s.Stages[i]
		}
	}
	return nil
}

// Keys returns the stage keys in insertion order
func (s *State) Keys() []StageKey {
	keys := make([]StageKey, len(s.Stages))
	for i, rt := range s.Stages {
		keys[i] = rt.Key
	}
	return keys
}

// RecomputeCurrent sets CurrentStage to the first pending key, or nil
func (s *State) RecomputeCurrent() {
	s.CurrentStage = nil
	for _, rt := range s.Stages {
		if rt.Status == StatusPending {
			k := rt.Key
			s.CurrentStage = &k
			return
		}
	}
}

// AllCompleted reports whether every stage reached completed
func (s *State) AllCompleted() bool {
	for _, rt := range s.Stages {
		if rt.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// HasResult reports whether any stage recorded the given result
func (s *State) HasResult(r Result) bool {
	for _, rt := range s.Stages {
		if rt.Result == r {
			return true
		}
	}
	return false
}

// Escalated reports whether the retry ceiling was exceeded
func (s *State) Escalated() bool {
	return s.Escalation != nil
}

// Clone returns a deep copy so transforms can never alias stored state
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentStage != nil {
		k := *s.CurrentStage
		c.CurrentStage = &k
	}
	c.Stages = make([]StageRuntime, len(s.Stages))
	for i, rt := range s.Stages {
		c.Stages[i] = rt
		if rt.StartedAt != nil {
			t := *rt.StartedAt
			c.Stages[i].StartedAt = &t
		}
		if rt.CompletedAt != nil {
			t := *rt.CompletedAt
			c.Stages[i].CompletedAt = &t
		}
	}
	c.ActiveExecutors = append([]string{}, s.ActiveExecutors...)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.Escalation != nil {
		e := *s.Escalation
		c.Escalation = &e
	}
	return &c
}
