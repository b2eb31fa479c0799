package session

import "time"

// StopReason explains why a loop stopped
type StopReason string

const (
	StopManual            StopReason = "manual"
	StopMaxIterations     StopReason = "max-iterations"
	StopConsecutiveErrors StopReason = "consecutive-errors"
	StopCompletedClean    StopReason = "completed-clean"
	StopCompletedAborted  StopReason = "completed-aborted"
)

// Category groups stop reasons for reporting
func (r StopReason) Category() string {
	switch r {
	case StopCompletedClean, StopCompletedAborted:
		return "completed"
	case StopMaxIterations, StopConsecutiveErrors:
		return "limit"
	case StopManual:
		return "manual"
	default:
		return "unknown"
	}
}

// LoopState tracks the bounded continuation cycle of a session.
// It is terminal once Stopped is set.
type LoopState struct {
	SessionID         string     `json:"session_id"`
	Revision          int64      `json:"revision"`
	Iteration         int        `json:"iteration"`
	Stopped           bool       `json:"stopped"`
	StopRequested     bool       `json:"stop_requested"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	StartedAt         time.Time  `json:"started_at"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
	StopReason        StopReason `json:"stop_reason,omitempty"`
	StopNote          string     `json:"stop_note,omitempty"`
}

// NewLoopState creates a running loop state
func NewLoopState(sessionID string, now time.Time) *LoopState {
	return &LoopState{SessionID: sessionID, StartedAt: now}
}

// Stop marks the loop stopped with the given reason; a stopped loop keeps its first reason
func (l *LoopState) Stop(reason StopReason, now time.Time) {
	if l.Stopped {
		return
	}
	l.Stopped = true
	l.StopReason = reason
	t := now
	l.StoppedAt = &t
}

// Clone returns a copy of the loop state
func (l *LoopState) Clone() *LoopState {
	if l == nil {
		return nil
	}
	c := *l
	if l.StoppedAt != nil {
		t := *l.StoppedAt
		c.StoppedAt = &t
	}
	return &c
}
