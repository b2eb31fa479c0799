package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/application/port/input"
	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/governor"
	"github.com/YoshitsuguKoike/deestage/internal/domain/repository"
	"github.com/YoshitsuguKoike/deestage/internal/domain/scheduler"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Registry is the part of the workflow registry the use case reads
type Registry interface {
	scheduler.Registry
	WorkflowTemplate(workflowType string) (workflow.WorkflowTemplate, error)
	KindOf(key string) workflow.StageKind
	Defaults() workflow.Defaults
}

// ignoredReport aborts a transform without writing when a report matches no stage
type ignoredReport struct {
	stage  string
	reason string
}

func (e *ignoredReport) Error() string {
	return fmt.Sprintf("report for %s ignored: %s", e.stage, e.reason)
}

// WorkflowUseCaseImpl implements workflow use cases
type WorkflowUseCaseImpl struct {
	states   repository.StateRepository
	loops    repository.LoopRepository
	timeline repository.TimelineRepository
	registry Registry
	maxTrim  int
	now      func() time.Time
}

var _ input.WorkflowUseCase = (*WorkflowUseCaseImpl)(nil)

// NewWorkflowUseCaseImpl creates a new workflow use case implementation.
// maxTrim is the cap used when Trim is called without an explicit count.
func NewWorkflowUseCaseImpl(
	states repository.StateRepository,
	loops repository.LoopRepository,
	events repository.TimelineRepository,
	registry Registry,
	maxTrim int,
) *WorkflowUseCaseImpl {
	return &WorkflowUseCaseImpl{
		states:   states,
		loops:    loops,
		timeline: events,
		registry: registry,
		maxTrim:  maxTrim,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (uc *WorkflowUseCaseImpl) SetClock(now func() time.Time) {
	uc.now = now
}

// Initialize creates the session state and records it on the timeline.
// Restarting a session also starts a fresh loop so a previous stop does not carry over.
func (uc *WorkflowUseCaseImpl) Initialize(ctx context.Context, req dto.InitializeRequest) (*session.State, error) {
	st, err := uc.states.Initialize(ctx, req.SessionID, req.WorkflowType, req.Stages, session.InitOptions{
		Feature:  req.Feature,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if _, err := uc.loops.Mutate(ctx, st.SessionID, func(*session.LoopState) (*session.LoopState, error) {
		return session.NewLoopState(st.SessionID, uc.now().UTC()), nil
	}); err != nil {
		return nil, fmt.Errorf("failed to reset loop for session %s: %w", st.SessionID, err)
	}

	keys := make([]string, 0, len(st.Stages))
	for _, k := range st.Keys() {
		keys = append(keys, k.String())
	}
	uc.emit(ctx, st.SessionID, timeline.TypeWorkflowInitialized, map[string]interface{}{
		"workflow_type": st.WorkflowType,
		"stages":        keys,
		"revision":      st.Revision,
	})
	return st, nil
}

// Read returns the current session state
func (uc *WorkflowUseCaseImpl) Read(ctx context.Context, sessionID string) (*session.State, error) {
	return uc.states.Read(ctx, sessionID)
}

// StartStage activates the stage an executor is about to run
func (uc *WorkflowUseCaseImpl) StartStage(ctx context.Context, req dto.StartStageRequest) (*session.State, error) {
	var key session.StageKey
	var executor string

	st, err := uc.states.Mutate(ctx, req.SessionID, func(st *session.State) (*session.State, error) {
		k, reason, ok := resolveKey(st, req.Stage)
		if !ok {
			return nil, failure.Programming("STAGE_NOT_STARTABLE", "cannot start %s: %s", req.Stage, reason)
		}
		key = k
		executor = req.Executor
		if executor == "" {
			executor = uc.defaultExecutor(k.Base)
		}
		if err := scheduler.Activate(st, k, executor, uc.now().UTC()); err != nil {
			return nil, err
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}

	uc.emit(ctx, st.SessionID, timeline.TypeStageStarted, map[string]interface{}{
		"stage":    key.String(),
		"executor": executor,
	})
	return st, nil
}

// ReportOutcome classifies an executor report and applies it: pass and issues
// complete the stage, fail and reject retry it until the session counter
// reaches the retry ceiling, at which point the stage completes with the
// failing result and the session is escalated.
func (uc *WorkflowUseCaseImpl) ReportOutcome(ctx context.Context, req dto.ReportOutcomeRequest) (*dto.OutcomeResponse, error) {
	maxRetries := uc.registry.Defaults().MaxRetries

	var (
		resp      dto.OutcomeResponse
		key       session.StageKey
		class     governor.Classification
		counter   int
		converged *scheduler.Convergence
	)

	st, err := uc.states.Mutate(ctx, req.SessionID, func(st *session.State) (*session.State, error) {
		// the transform may run again after a revision conflict
		resp = dto.OutcomeResponse{}
		converged = nil

		if st.Escalated() {
			return nil, &ignoredReport{stage: req.Stage, reason: "session is escalated"}
		}
		k, reason, ok := resolveKey(st, req.Stage)
		if !ok {
			return nil, &ignoredReport{stage: req.Stage, reason: reason}
		}
		key = k
		now := uc.now().UTC()

		if st.Stage(k).Status == session.StatusPending {
			if err := scheduler.Activate(st, k, uc.defaultExecutor(k.Base), now); err != nil {
				return nil, err
			}
		}

		c, err := uc.classify(req, k)
		if err != nil {
			return nil, err
		}
		class = c
		if err := governor.RecordOutcome(st, k, c.Verdict); err != nil {
			return nil, err
		}
		counter = governor.Counter(st, c.Verdict)

		switch {
		case governor.IsRetryable(c.Verdict) && governor.CheckThreshold(counter, maxRetries):
			if err := scheduler.AdvanceOnCompletion(st, k, c.Verdict, now); err != nil {
				return nil, err
			}
			st.Escalation = &session.Escalation{Stage: k, Verdict: c.Verdict, Counter: counter, Limit: maxRetries, At: now}
			resp.Action = dto.ActionEscalated
		case governor.IsRetryable(c.Verdict):
			if err := scheduler.Retry(st, k, now); err != nil {
				return nil, err
			}
			resp.Action = dto.ActionRetry
		default:
			if err := scheduler.AdvanceOnCompletion(st, k, c.Verdict, now); err != nil {
				return nil, err
			}
			resp.Action = dto.ActionAdvanced
		}

		if resp.Action != dto.ActionRetry {
			if tpl, err := uc.registry.WorkflowTemplate(st.WorkflowType); err == nil {
				if conv, ok := scheduler.DetectParallelConvergence(st, tpl, uc.registry, k); ok {
					converged = &conv
				}
			}
		}
		return st, nil
	})

	var ignored *ignoredReport
	if errors.As(err, &ignored) {
		return uc.ignore(ctx, req, ignored.reason), nil
	}
	if err != nil {
		return nil, err
	}

	stage := key.String()
	resp.Stage = stage
	resp.Verdict = string(class.Verdict)
	resp.Source = string(class.Source)
	resp.FailCount = st.FailCount
	resp.RejectCount = st.RejectCount
	resp.CurrentStage = currentStage(st)
	resp.Hint = uc.hint(st).String()

	uc.emit(ctx, st.SessionID, timeline.TypeStageVerdict, map[string]interface{}{
		"stage":    stage,
		"verdict":  string(class.Verdict),
		"source":   string(class.Source),
		"evidence": class.Evidence,
		"attempt":  st.Stage(key).Attempts,
	})
	switch resp.Action {
	case dto.ActionRetry:
		uc.emit(ctx, st.SessionID, timeline.TypeStageRetry, map[string]interface{}{
			"stage": stage, "verdict": string(class.Verdict), "counter": counter, "limit": maxRetries,
		})
	case dto.ActionEscalated:
		app.GetLogger().Warn("session %s escalated: %s reached %d %s verdicts (limit %d)", st.SessionID, stage, counter, class.Verdict, maxRetries)
		uc.emit(ctx, st.SessionID, timeline.TypeStageEscalated, map[string]interface{}{
			"stage": stage, "verdict": string(class.Verdict), "counter": counter, "limit": maxRetries,
		})
	default:
		uc.emit(ctx, st.SessionID, timeline.TypeStageCompleted, map[string]interface{}{
			"stage": stage, "result": string(class.Verdict),
		})
	}
	if converged != nil {
		keys := make([]string, len(converged.Keys))
		for i, k := range converged.Keys {
			keys[i] = k.String()
		}
		resp.Converged = &dto.ConvergenceDTO{Group: converged.Group, Stages: keys}
		uc.emit(ctx, st.SessionID, timeline.TypeParallelConverged, map[string]interface{}{
			"group": converged.Group, "stages": keys,
		})
	}
	return &resp, nil
}

// Events queries the session timeline
func (uc *WorkflowUseCaseImpl) Events(ctx context.Context, sessionID string, filter timeline.Filter) ([]timeline.Event, error) {
	return uc.timeline.Query(ctx, sessionID, filter)
}

// Trim caps the session timeline; a non-positive count uses the configured cap
func (uc *WorkflowUseCaseImpl) Trim(ctx context.Context, sessionID string, maxCount int) (int, error) {
	if maxCount <= 0 {
		maxCount = uc.maxTrim
	}
	return uc.timeline.Trim(ctx, sessionID, maxCount)
}

// Reliability computes pass@k from the recorded verdicts
func (uc *WorkflowUseCaseImpl) Reliability(ctx context.Context, sessionID string) (*timeline.Reliability, error) {
	events, err := uc.timeline.Query(ctx, sessionID, timeline.Filter{Type: timeline.TypeStageVerdict})
	if err != nil {
		return nil, err
	}
	r := timeline.ComputeReliability(events)
	return &r, nil
}

// Hint returns the next-step hint for a state
func (uc *WorkflowUseCaseImpl) Hint(st *session.State) scheduler.Hint {
	return uc.hint(st)
}

func (uc *WorkflowUseCaseImpl) hint(st *session.State) scheduler.Hint {
	tpl, err := uc.registry.WorkflowTemplate(st.WorkflowType)
	if err != nil {
		tpl = workflow.WorkflowTemplate{Key: st.WorkflowType}
	}
	return scheduler.NextStepHint(st, tpl, uc.registry)
}

func (uc *WorkflowUseCaseImpl) classify(req dto.ReportOutcomeRequest, key session.StageKey) (governor.Classification, error) {
	kind := uc.registry.KindOf(key.Base)
	if req.Verdict == "" {
		return governor.ClassifyOutcome(req.Report, kind), nil
	}
	v := governor.Verdict(strings.ToLower(strings.TrimSpace(req.Verdict)))
	if !v.IsValid() || v == session.ResultNone {
		return governor.Classification{}, failure.Programming("INVALID_VERDICT", "verdict %q is not one of pass, fail, reject, issues", req.Verdict)
	}
	return governor.Classification{Verdict: v, Source: governor.SourceStructured, Evidence: "explicit verdict"}, nil
}

func (uc *WorkflowUseCaseImpl) ignore(ctx context.Context, req dto.ReportOutcomeRequest, reason string) *dto.OutcomeResponse {
	app.GetLogger().Info("ignoring report for %s in session %s: %s", req.Stage, req.SessionID, reason)
	resp := &dto.OutcomeResponse{Ignored: true, Reason: reason, Stage: req.Stage, Action: dto.ActionIgnored}
	if st, err := uc.states.Read(ctx, req.SessionID); err == nil {
		resp.FailCount = st.FailCount
		resp.RejectCount = st.RejectCount
		resp.CurrentStage = currentStage(st)
		resp.Hint = uc.hint(st).String()
	}
	uc.emit(ctx, req.SessionID, timeline.TypeReportIgnored, map[string]interface{}{
		"stage": req.Stage, "reason": reason,
	})
	return resp
}

func (uc *WorkflowUseCaseImpl) defaultExecutor(base string) string {
	def, err := uc.registry.StageDefinition(base)
	if err != nil {
		return ""
	}
	return def.Executor
}

// emit appends a timeline event after the state was committed. The state is
// authoritative, so a failed append is logged and not returned.
func (uc *WorkflowUseCaseImpl) emit(ctx context.Context, sessionID, eventType string, payload map[string]interface{}) {
	if _, err := uc.timeline.Append(ctx, sessionID, eventType, payload); err != nil {
		app.GetLogger().Warn("failed to append %s for session %s: %v", eventType, sessionID, err)
	}
}

// resolveKey maps a reported stage to a concrete key. Suffixed keys are taken
// literally; base keys resolve to the active occurrence or the next pending one.
func resolveKey(st *session.State, stage string) (session.StageKey, string, bool) {
	k, err := session.ParseStageKey(stage)
	if err != nil {
		return session.StageKey{}, "malformed stage key", false
	}
	if k.IsSuffixed() {
		rt := st.Stage(k)
		if rt == nil {
			return k, "stage is not part of the session", false
		}
		if rt.Status == session.StatusCompleted {
			return k, "stage is already completed", false
		}
		return k, "", true
	}
	found, ok := scheduler.FindActiveOrNextPendingKey(st, k.Base)
	if !ok {
		return k, "no active or pending stage", false
	}
	return found, "", true
}

func currentStage(st *session.State) string {
	if st.CurrentStage == nil {
		return ""
	}
	return st.CurrentStage.String()
}
