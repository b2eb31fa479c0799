package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/repository"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

const (
	DefaultTimelineMaxEvents = 2000
	DefaultTimelineTrimEvery = 50
)

// EventTypes is the closed set of event types an append is validated against
type EventTypes interface {
	EventType(eventType string) (workflow.EventTypeDefinition, error)
}

// TimelineOptions bound the size of each session log
type TimelineOptions struct {
	MaxEvents int // retained after an automatic trim
	TrimEvery int // trim when seq is a multiple of this; 0 disables
}

// TimelineRepositoryImpl implements repository.TimelineRepository using
// NDJSON file-based storage
type TimelineRepositoryImpl struct {
	fs     afero.Fs
	root   string
	types  EventTypes
	locker *fs.Locker
	opts   TimelineOptions
	now    func() time.Time
}

var _ repository.TimelineRepository = (*TimelineRepositoryImpl)(nil)

// NewTimelineRepositoryImpl creates an NDJSON-based timeline repository
func NewTimelineRepositoryImpl(afs afero.Fs, sessionsRoot string, types EventTypes, locker *fs.Locker, opts TimelineOptions) *TimelineRepositoryImpl {
	if locker == nil {
		locker = fs.NewLocker(afs)
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultTimelineMaxEvents
	}
	if opts.TrimEvery < 0 {
		opts.TrimEvery = 0
	}
	return &TimelineRepositoryImpl{fs: afs, root: sessionsRoot, types: types, locker: locker, opts: opts, now: time.Now}
}

// SetClock replaces the time source
func (r *TimelineRepositoryImpl) SetClock(now func() time.Time) {
	r.now = now
}

// Append stamps and writes one event under the timeline lock
func (r *TimelineRepositoryImpl) Append(ctx context.Context, sessionID, eventType string, payload map[string]interface{}) (*timeline.Event, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	def, err := r.types.EventType(eventType)
	if err != nil {
		return nil, failure.Programming("UNKNOWN_EVENT_TYPE", "event type %q is not registered", eventType)
	}

	files := filesFor(r.root, sessionID)
	release, err := r.locker.Acquire(ctx, files.timelineLock)
	if err != nil {
		return nil, err
	}
	defer release()

	lines, err := fs.ReadLines(r.fs, files.timeline)
	if err != nil {
		return nil, err
	}
	lastSeq := lastSeqOf(lines)

	now := r.now().UTC()
	e := timeline.Event{
		ID:        timeline.NewEventID(now),
		Seq:       lastSeq + 1,
		Timestamp: now,
		Type:      def.Type,
		Category:  def.Category,
		Label:     def.Label,
		Payload:   copyPayload(payload),
	}
	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := fs.AppendLine(r.fs, files.timeline, line); err != nil {
		return nil, fmt.Errorf("failed to append timeline event: %w", err)
	}

	if r.opts.TrimEvery > 0 && e.Seq%int64(r.opts.TrimEvery) == 0 {
		events, err := r.load(files.timeline)
		if err != nil {
			return nil, err
		}
		if _, err := r.trimLocked(files.timeline, events, r.opts.MaxEvents); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Query returns matching events oldest first
func (r *TimelineRepositoryImpl) Query(ctx context.Context, sessionID string, filter timeline.Filter) ([]timeline.Event, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	events, err := r.load(filesFor(r.root, sessionID).timeline)
	if err != nil {
		return nil, err
	}
	return filter.Apply(events), nil
}

// Trim keeps the most recent maxCount events in original order
func (r *TimelineRepositoryImpl) Trim(ctx context.Context, sessionID string, maxCount int) (int, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return 0, err
	}
	if maxCount < 1 {
		return 0, failure.Programming("INVALID_TRIM_COUNT", "trim %s: max count must be positive, got %d", sessionID, maxCount)
	}

	files := filesFor(r.root, sessionID)
	release, err := r.locker.Acquire(ctx, files.timelineLock)
	if err != nil {
		return 0, err
	}
	defer release()

	events, err := r.load(files.timeline)
	if err != nil {
		return 0, err
	}
	return r.trimLocked(files.timeline, events, maxCount)
}

func (r *TimelineRepositoryImpl) trimLocked(path string, events []timeline.Event, maxCount int) (int, error) {
	if len(events) <= maxCount {
		return 0, nil
	}
	dropped := len(events) - maxCount
	kept := events[dropped:]

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("failed to marshal event: %w", err)
		}
	}
	if err := fs.WriteFileAtomic(r.fs, path, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to rewrite timeline: %w", err)
	}
	fs.GetLogger().Debug("trimmed %d events from %s", dropped, path)
	return dropped, nil
}

// load reads every event, skipping corrupted lines with a warning
func (r *TimelineRepositoryImpl) load(path string) ([]timeline.Event, error) {
	lines, err := fs.ReadLines(r.fs, path)
	if err != nil {
		return nil, err
	}

	events := make([]timeline.Event, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e timeline.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			fs.GetLogger().Warn("skipping corrupted timeline line %d in %s: %v", i+1, path, err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// lastSeqOf returns the seq of the last readable line, or 0 for an empty log
func lastSeqOf(lines []string) int64 {
	for i := len(lines) - 1; i >= 0; i-- {
		var head struct {
			Seq int64 `json:"seq"`
		}
		if err := json.Unmarshal([]byte(lines[i]), &head); err == nil && head.Seq > 0 {
			return head.Seq
		}
	}
	return 0
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
