package repository

import (
	"context"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
)

// StateTransform computes the next workflow state from the current one.
// It receives a private copy; returning a nil state is a programming error.
type StateTransform func(st *session.State) (*session.State, error)

// StateRepository manages durable per-session workflow state
type StateRepository interface {
	// Initialize creates (or explicitly restarts) a session. An empty stage list
	// uses the workflow template's own list.
	Initialize(ctx context.Context, sessionID, workflowType string, stageKeys []string, opts session.InitOptions) (*session.State, error)

	// Read returns the state or a NotFound error
	Read(ctx context.Context, sessionID string) (*session.State, error)

	// Mutate applies fn under the session lock and persists the result only if
	// the on-disk revision is unchanged, retrying on conflict
	Mutate(ctx context.Context, sessionID string, fn StateTransform) (*session.State, error)

	// Replace writes st only if the stored revision still equals st.Revision
	Replace(ctx context.Context, st *session.State) (*session.State, error)
}
