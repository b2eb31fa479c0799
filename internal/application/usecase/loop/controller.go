// Package loop bounds the continue/stop cycle of a session. Each check either
// stops the loop with a reason or counts one more iteration and hands the
// driver its next step.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/application/port/input"
	"github.com/YoshitsuguKoike/deestage/internal/domain/repository"
	"github.com/YoshitsuguKoike/deestage/internal/domain/scheduler"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Registry is the part of the workflow registry used to build hints
type Registry interface {
	scheduler.Registry
	WorkflowTemplate(workflowType string) (workflow.WorkflowTemplate, error)
}

// Limits are the loop ceilings; zero disables a ceiling
type Limits struct {
	MaxIterations        int
	MaxConsecutiveErrors int
}

// Controller implements input.LoopUseCase
type Controller struct {
	loops    repository.LoopRepository
	states   repository.StateRepository
	timeline repository.TimelineRepository
	registry Registry
	limits   Limits
	now      func() time.Time
}

var _ input.LoopUseCase = (*Controller)(nil)

// NewController creates a loop controller
func NewController(
	loops repository.LoopRepository,
	states repository.StateRepository,
	events repository.TimelineRepository,
	registry Registry,
	limits Limits,
) *Controller {
	return &Controller{
		loops:    loops,
		states:   states,
		timeline: events,
		registry: registry,
		limits:   limits,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// CheckAndAdvance evaluates the stop conditions in priority order: manual,
// max-iterations, consecutive-errors, completion. When none holds the
// iteration counter is incremented and the next-step hint is returned.
func (c *Controller) CheckAndAdvance(ctx context.Context, sessionID string) (*dto.LoopDecision, error) {
	st, err := c.states.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var (
		decision     dto.LoopDecision
		stoppedNow   bool
		alreadyFinal bool
	)
	ls, err := c.loops.Mutate(ctx, sessionID, func(ls *session.LoopState) (*session.LoopState, error) {
		decision, stoppedNow, alreadyFinal = dto.LoopDecision{}, false, false
		now := c.now().UTC()

		if ls.Stopped {
			alreadyFinal = true
			decision = exitDecision(ls.StopReason, "loop already stopped")
			return ls, nil
		}

		reason, detail, stop := c.stopCondition(ls, st)
		if stop {
			ls.Stop(reason, now)
			stoppedNow = true
			decision = exitDecision(reason, detail)
			return ls, nil
		}

		ls.Iteration++
		hint := c.hint(st)
		decision = dto.LoopDecision{
			Action: dto.LoopContinue,
			Detail: hint.String(),
			Hint:   hint.String(),
		}
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	decision.Iteration = ls.Iteration

	switch {
	case alreadyFinal:
	case stoppedNow:
		app.GetLogger().Info("loop %s stopped: %s (%s)", sessionID, decision.Reason, decision.Detail)
		c.emit(ctx, sessionID, timeline.TypeLoopStopped, map[string]interface{}{
			"reason": decision.Reason, "category": decision.Category, "detail": decision.Detail, "iteration": ls.Iteration,
		})
	default:
		c.emit(ctx, sessionID, timeline.TypeLoopContinued, map[string]interface{}{
			"iteration": ls.Iteration, "hint": decision.Hint,
		})
	}
	return &decision, nil
}

func (c *Controller) stopCondition(ls *session.LoopState, st *session.State) (session.StopReason, string, bool) {
	switch {
	case ls.StopRequested:
		detail := "stop requested"
		if ls.StopNote != "" {
			detail = ls.StopNote
		}
		return session.StopManual, detail, true
	case c.limits.MaxIterations > 0 && ls.Iteration >= c.limits.MaxIterations:
		return session.StopMaxIterations, fmt.Sprintf("iteration %d reached limit %d", ls.Iteration, c.limits.MaxIterations), true
	case c.limits.MaxConsecutiveErrors > 0 && ls.ConsecutiveErrors >= c.limits.MaxConsecutiveErrors:
		return session.StopConsecutiveErrors, fmt.Sprintf("%d consecutive errors reached limit %d", ls.ConsecutiveErrors, c.limits.MaxConsecutiveErrors), true
	case st.Escalated():
		e := st.Escalation
		return session.StopCompletedAborted, fmt.Sprintf("escalated at %s after %d %s verdicts", e.Stage, e.Counter, e.Verdict), true
	case st.AllCompleted():
		if st.HasResult(session.ResultFail) {
			return session.StopCompletedAborted, "all stages completed with failures", true
		}
		return session.StopCompletedClean, "all stages completed", true
	}
	return "", "", false
}

// Read returns the loop state; NotFound before the first check
func (c *Controller) Read(ctx context.Context, sessionID string) (*session.LoopState, error) {
	return c.loops.Read(ctx, sessionID)
}

// ExitManually forces the loop to stop with reason manual
func (c *Controller) ExitManually(ctx context.Context, sessionID, note string) (*session.LoopState, error) {
	if err := c.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	stoppedNow := false
	ls, err := c.loops.Mutate(ctx, sessionID, func(ls *session.LoopState) (*session.LoopState, error) {
		stoppedNow = !ls.Stopped
		ls.StopRequested = true
		if note != "" {
			ls.StopNote = note
		}
		ls.Stop(session.StopManual, c.now().UTC())
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	if stoppedNow {
		c.emit(ctx, sessionID, timeline.TypeLoopStopped, map[string]interface{}{
			"reason": string(session.StopManual), "category": session.StopManual.Category(), "detail": note, "iteration": ls.Iteration,
		})
	}
	return ls, nil
}

// RecordError counts one failed iteration
func (c *Controller) RecordError(ctx context.Context, sessionID, message string) (*session.LoopState, error) {
	if err := c.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ls, err := c.loops.Mutate(ctx, sessionID, func(ls *session.LoopState) (*session.LoopState, error) {
		ls.ConsecutiveErrors++
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, sessionID, timeline.TypeLoopError, map[string]interface{}{
		"message": message, "consecutive_errors": ls.ConsecutiveErrors,
	})
	return ls, nil
}

// ResetErrors clears the consecutive error counter after a successful iteration
func (c *Controller) ResetErrors(ctx context.Context, sessionID string) (*session.LoopState, error) {
	if err := c.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.loops.Mutate(ctx, sessionID, func(ls *session.LoopState) (*session.LoopState, error) {
		ls.ConsecutiveErrors = 0
		return ls, nil
	})
}

// Reset replaces the loop with a fresh running one; the revision keeps increasing
func (c *Controller) Reset(ctx context.Context, sessionID string) (*session.LoopState, error) {
	if err := c.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.loops.Mutate(ctx, sessionID, func(ls *session.LoopState) (*session.LoopState, error) {
		return session.NewLoopState(sessionID, c.now().UTC()), nil
	})
}

// requireSession keeps loop writes from creating a loop for a session that was never initialized
func (c *Controller) requireSession(ctx context.Context, sessionID string) error {
	_, err := c.states.Read(ctx, sessionID)
	return err
}

func (c *Controller) hint(st *session.State) scheduler.Hint {
	tpl, err := c.registry.WorkflowTemplate(st.WorkflowType)
	if err != nil {
		tpl = workflow.WorkflowTemplate{Key: st.WorkflowType}
	}
	return scheduler.NextStepHint(st, tpl, c.registry)
}

func (c *Controller) emit(ctx context.Context, sessionID, eventType string, payload map[string]interface{}) {
	if _, err := c.timeline.Append(ctx, sessionID, eventType, payload); err != nil {
		app.GetLogger().Warn("failed to append %s for session %s: %v", eventType, sessionID, err)
	}
}

func exitDecision(reason session.StopReason, detail string) dto.LoopDecision {
	return dto.LoopDecision{
		Action:   dto.LoopExit,
		Reason:   string(reason),
		Category: reason.Category(),
		Detail:   detail,
	}
}
