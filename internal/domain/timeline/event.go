// Package timeline holds the audit trail model of a session and the
// reliability metric derived from it.
package timeline

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types appended by the driver. The registry owns the closed set; these
// constants only name the ones the code emits itself.
const (
	TypeWorkflowInitialized = "workflow.initialized"
	TypeStageStarted        = "stage.started"
	TypeStageCompleted      = "stage.completed"
	TypeStageVerdict        = "stage.verdict"
	TypeStageRetry          = "stage.retry"
	TypeStageEscalated      = "stage.escalated"
	TypeParallelConverged   = "parallel.converged"
	TypeReportIgnored       = "report.ignored"
	TypeLoopContinued       = "loop.continued"
	TypeLoopStopped         = "loop.stopped"
	TypeLoopError           = "loop.error"
)

// Event is one audit record. It is immutable once appended.
type Event struct {
	ID        string                 `json:"id"`
	Seq       int64                  `json:"seq"`
	Timestamp time.Time              `json:"ts"`
	Type      string                 `json:"type"`
	Category  string                 `json:"category"`
	Label     string                 `json:"label,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	Type     string
	Category string
	Limit    int // most recent N; 0 means all
}

// Matches reports whether the event passes the type and category filters
func (f Filter) Matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	return true
}

// Apply filters events (oldest first) and keeps the most recent Limit
func (f Filter) Apply(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// NewEventID generates an event id using ULID
func NewEventID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// StringField reads a string payload value
func (e Event) StringField(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}
