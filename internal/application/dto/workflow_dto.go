package dto

// InitializeRequest starts (or restarts) a session
type InitializeRequest struct {
	SessionID    string            `json:"session_id"`
	WorkflowType string            `json:"workflow_type"`
	Stages       []string          `json:"stages,omitempty"` // empty uses the template
	Feature      string            `json:"feature,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// StartStageRequest marks a stage active for an executor
type StartStageRequest struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`              // base key or suffixed key
	Executor  string `json:"executor,omitempty"` // defaults to the stage definition
}

// ReportOutcomeRequest carries an executor's completion report
type ReportOutcomeRequest struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Report    string `json:"report"`
	Verdict   string `json:"verdict,omitempty"` // explicit verdict, skips classification
}

// Outcome actions
const (
	ActionAdvanced  = "advanced"
	ActionRetry     = "retry"
	ActionEscalated = "escalated"
	ActionIgnored   = "ignored"
)

// ConvergenceDTO reports a parallel group whose members all completed
type ConvergenceDTO struct {
	Group  string   `json:"group"`
	Stages []string `json:"stages"`
}

// OutcomeResponse is the result of ReportOutcome
type OutcomeResponse struct {
	Ignored      bool            `json:"ignored"`
	Reason       string          `json:"reason,omitempty"`
	Stage        string          `json:"stage,omitempty"`
	Verdict      string          `json:"verdict,omitempty"`
	Source       string          `json:"source,omitempty"`
	Action       string          `json:"action"`
	FailCount    int             `json:"fail_count"`
	RejectCount  int             `json:"reject_count"`
	Converged    *ConvergenceDTO `json:"converged,omitempty"`
	CurrentStage string          `json:"current_stage,omitempty"`
	Hint         string          `json:"hint,omitempty"`
}

// Loop actions
const (
	LoopExit     = "exit"
	LoopContinue = "continue"
)

// LoopDecision is the result of one loop check
type LoopDecision struct {
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Category  string `json:"category,omitempty"`
	Detail    string `json:"detail"`
	Iteration int    `json:"iteration"`
	Hint      string `json:"hint,omitempty"`
}
