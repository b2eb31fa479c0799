package repository

import (
	"context"

	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
)

// TimelineRepository manages the append-only audit trail of each session
type TimelineRepository interface {
	// Append records one event. Unknown event types are a programming error.
	Append(ctx context.Context, sessionID, eventType string, payload map[string]interface{}) (*timeline.Event, error)

	// Query returns matching events oldest first; Limit keeps the most recent N
	Query(ctx context.Context, sessionID string, filter timeline.Filter) ([]timeline.Event, error)

	// Trim keeps only the most recent maxCount events and returns how many were dropped
	Trim(ctx context.Context, sessionID string, maxCount int) (int, error)
}
