package repository

import (
	"context"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
)

// LoopTransform computes the next loop state
type LoopTransform func(ls *session.LoopState) (*session.LoopState, error)

// LoopRepository manages the bounded continuation state of a session
type LoopRepository interface {
	// Read returns the loop state or a NotFound error
	Read(ctx context.Context, sessionID string) (*session.LoopState, error)

	// Mutate applies fn to the loop state, creating a running one first when
	// the session has none yet
	Mutate(ctx context.Context, sessionID string, fn LoopTransform) (*session.LoopState, error)
}
