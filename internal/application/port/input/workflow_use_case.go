package input

import (
	"context"

	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
)

// WorkflowUseCase defines the request/response operations exposed to a driver
type WorkflowUseCase interface {
	// Initialize creates or restarts a session; the session loop starts fresh
	Initialize(ctx context.Context, req dto.InitializeRequest) (*session.State, error)

	// Read returns the session state; NotFound for unknown sessions
	Read(ctx context.Context, sessionID string) (*session.State, error)

	// StartStage activates the stage an executor is about to run
	StartStage(ctx context.Context, req dto.StartStageRequest) (*session.State, error)

	// ReportOutcome classifies a report and advances, retries or escalates the stage
	ReportOutcome(ctx context.Context, req dto.ReportOutcomeRequest) (*dto.OutcomeResponse, error)

	// Events queries the session timeline
	Events(ctx context.Context, sessionID string, filter timeline.Filter) ([]timeline.Event, error)

	// Trim caps the session timeline
	Trim(ctx context.Context, sessionID string, maxCount int) (int, error)

	// Reliability computes pass@k from the session timeline
	Reliability(ctx context.Context, sessionID string) (*timeline.Reliability, error)
}

// LoopUseCase defines the bounded continuation operations
type LoopUseCase interface {
	// CheckAndAdvance evaluates the stop conditions and either stops or continues the loop
	CheckAndAdvance(ctx context.Context, sessionID string) (*dto.LoopDecision, error)

	// Read returns the loop state
	Read(ctx context.Context, sessionID string) (*session.LoopState, error)

	// ExitManually forces the loop to stop
	ExitManually(ctx context.Context, sessionID, note string) (*session.LoopState, error)

	// RecordError counts one failed iteration
	RecordError(ctx context.Context, sessionID, message string) (*session.LoopState, error)

	// ResetErrors clears the consecutive error counter
	ResetErrors(ctx context.Context, sessionID string) (*session.LoopState, error)

	// Reset starts a fresh loop for a restarted session
	Reset(ctx context.Context, sessionID string) (*session.LoopState, error)
}
