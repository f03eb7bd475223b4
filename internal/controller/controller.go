// Package controller implements the submission/verification state
// machine that drives one student submission cycle: submit content,
// receive a generated follow-up question, collect the response within a
// bounded countdown, and report the outcome.
//
// The controller owns its cycle state and its single timer exclusively.
// It talks to the outside world only through the View, Service, and
// Scheduler interfaces, so the whole machine can be exercised headlessly.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pavelanni/thoughtcaptcha/internal/i18n"
	"github.com/pavelanni/thoughtcaptcha/internal/model"
)

// ErrCycleInFlight is returned by Submit when a cycle is already running.
var ErrCycleInFlight = errors.New("submission cycle already in flight")

// Surface identifies a status message area.
type Surface string

const (
	// SurfaceSubmission is the status area next to the submit control.
	SurfaceSubmission Surface = "submission"
	// SurfaceVerification is the status area inside the question overlay.
	SurfaceVerification Surface = "verification"
)

// Control identifies a user-triggerable control.
type Control string

const (
	// ControlSubmit triggers the initial content submission.
	ControlSubmit Control = "submit"
	// ControlVerify submits the verification response.
	ControlVerify Control = "verify"
)

// View is the capability surface the controller renders through.
// Implementations must be safe for calls from timer goroutines.
type View interface {
	ShowStatus(surface Surface, message string, isError bool)
	ClearStatus(surface Surface)
	SetControlEnabled(control Control, enabled bool)
	ShowAssignment(a *model.Assignment)
	ShowQuestion(question string)
	HideQuestion()
	ShowTimeRemaining(seconds int)
	ResponseText() string
	ResetResponse()
}

// Service is the slice of the backend contract the student flow needs.
type Service interface {
	CurrentAssignment(ctx context.Context) (*model.Assignment, error)
	SubmitAssignment(ctx context.Context, content string, assignmentID *int64) (int64, error)
	GenerateQuestion(ctx context.Context, submissionID int64) (string, error)
	VerifyResponse(ctx context.Context, submissionID int64, response string) (string, error)
}

// Scheduler abstracts time so tests can drive ticks deterministically.
// Cancel functions must be idempotent. A cancelled schedule may still
// deliver one already-dispatched tick; the controller's generation
// counter discards it.
type Scheduler interface {
	Schedule(interval time.Duration, onTick func()) (cancel func())
	After(d time.Duration, fn func()) (cancel func())
}

// Config holds the timing constants of the verification flow.
type Config struct {
	// VerificationTimeout is the full countdown window.
	VerificationTimeout time.Duration
	// TickInterval is the countdown resolution.
	TickInterval time.Duration
	// FinalizeDelay is how long outcome messages stay on screen before
	// the cycle resets to idle.
	FinalizeDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = 60 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.FinalizeDelay <= 0 {
		c.FinalizeDelay = 3 * time.Second
	}
	return c
}

// Controller runs at most one submission cycle at a time.
type Controller struct {
	view  View
	svc   Service
	sched Scheduler
	cfg   Config

	mu           sync.Mutex
	cycle        model.Cycle
	assignmentID *int64
	timeLeft     int
	timerGen     uint64
	cancelTimer  func()
	cancelFinal  func()
	onFinalized  func(hadIssue bool)
}

// Option configures a Controller.
type Option func(*Controller)

// WithFinalizedHook registers a callback invoked after every cycle
// finalization, with the issue flag of that cycle.
func WithFinalizedHook(fn func(hadIssue bool)) Option {
	return func(c *Controller) { c.onFinalized = fn }
}

// New creates a Controller in the idle phase.
func New(view View, svc Service, sched Scheduler, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		view:  view,
		svc:   svc,
		sched: sched,
		cfg:   cfg.withDefaults(),
	}
	c.cycle.Phase = model.PhaseIdle
	for _, o := range opts {
		o(c)
	}
	return c
}

// Phase returns the current cycle phase.
func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle.Phase
}

// LoadAssignment fetches the current assignment and shows it. A missing
// assignment is a normal empty state; any other failure is surfaced as a
// warning and never blocks the submission flow.
func (c *Controller) LoadAssignment(ctx context.Context) {
	a, err := c.svc.CurrentAssignment(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.assignmentID = nil
		c.view.ShowAssignment(nil)
		c.view.ShowStatus(SurfaceSubmission,
			i18n.Td(ctx, "AssignmentLoadError", map[string]any{"Error": err.Error()}), true)
		return
	}
	if a == nil {
		c.assignmentID = nil
		c.view.ShowAssignment(nil)
		return
	}
	id := a.ID
	c.assignmentID = &id
	c.view.ShowAssignment(a)
}

// Submit starts a submission cycle with the given content. Valid only
// from the idle phase; the submit control stays disabled until the cycle
// finalizes. On success the follow-up question is requested immediately.
func (c *Controller) Submit(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.cycle.Phase != model.PhaseIdle {
		c.mu.Unlock()
		return ErrCycleInFlight
	}
	c.cycle.Phase = model.PhaseSubmitting
	c.cycle.AssignmentID = c.assignmentID
	assignmentID := c.assignmentID
	c.view.SetControlEnabled(ControlSubmit, false)
	c.view.ClearStatus(SurfaceSubmission)
	c.view.ShowStatus(SurfaceSubmission, i18n.T(ctx, "SubmittingResponse"), false)
	c.mu.Unlock()

	id, err := c.svc.SubmitAssignment(ctx, content, assignmentID)

	c.mu.Lock()
	if err != nil {
		c.view.ShowStatus(SurfaceSubmission,
			i18n.Td(ctx, "SubmissionError", map[string]any{"Error": err.Error()}), true)
		c.view.SetControlEnabled(ControlSubmit, true)
		c.cycle.Reset()
		c.mu.Unlock()
		return err
	}
	c.cycle.SubmissionID = &id
	c.cycle.Phase = model.PhaseAwaitingQuestion
	c.view.ShowStatus(SurfaceSubmission,
		i18n.Td(ctx, "SubmissionSuccessful", map[string]any{"ID": id}), false)
	c.mu.Unlock()

	c.generateQuestion(ctx, id)
	return nil
}

// generateQuestion requests the follow-up question. A failure here is
// non-fatal: the submission is already recorded, so the cycle degrades
// to "verification skipped" instead of blocking the student's work.
func (c *Controller) generateQuestion(ctx context.Context, submissionID int64) {
	question, err := c.svc.GenerateQuestion(ctx, submissionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.view.ShowStatus(SurfaceSubmission,
			i18n.Td(ctx, "QuestionError", map[string]any{"Error": err.Error()}), true)
		c.cycle.Phase = model.PhaseFinalizing
		c.scheduleFinalizeLocked(ctx, true)
		return
	}

	c.view.ClearStatus(SurfaceSubmission)
	c.view.ClearStatus(SurfaceVerification)
	c.view.ResetResponse()
	c.view.ShowQuestion(question)
	c.view.SetControlEnabled(ControlVerify, true)
	c.startTimerLocked(ctx)
}

// startTimerLocked starts the countdown. Any previously running timer is
// cancelled first; the generation counter guarantees a stray tick from a
// cancelled timer is discarded even if it was already dispatched.
func (c *Controller) startTimerLocked(ctx context.Context) {
	c.stopTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.timeLeft = int(c.cfg.VerificationTimeout / c.cfg.TickInterval)
	c.view.ShowTimeRemaining(c.timeLeft)
	c.cancelTimer = c.sched.Schedule(c.cfg.TickInterval, func() {
		c.tick(ctx, gen)
	})
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

func (c *Controller) tick(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timeLeft--
	c.view.ShowTimeRemaining(c.timeLeft)
	if c.timeLeft > 0 {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.view.ShowStatus(SurfaceVerification, i18n.T(ctx, "TimeRanOut"), true)
	c.mu.Unlock()

	c.Verify(ctx)
}

// Verify submits the current response text. Both the manual action and
// timer expiry land here; the phase guard lets only the first through,
// the loser finds the phase already advanced and is a no-op.
func (c *Controller) Verify(ctx context.Context) {
	c.mu.Lock()
	if c.cycle.Phase != model.PhaseAwaitingQuestion {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.view.SetControlEnabled(ControlVerify, false)
	c.view.ClearStatus(SurfaceVerification)

	if c.cycle.SubmissionID == nil {
		// Defensive: unreachable under correct operation.
		c.view.ShowStatus(SurfaceVerification, i18n.T(ctx, "MissingSubmissionID"), true)
		c.view.SetControlEnabled(ControlVerify, true)
		c.mu.Unlock()
		return
	}
	submissionID := *c.cycle.SubmissionID
	c.cycle.Phase = model.PhaseVerifying
	c.view.ShowStatus(SurfaceVerification, i18n.T(ctx, "SubmittingVerification"), false)
	response := c.view.ResponseText()
	c.mu.Unlock()

	message, err := c.svc.VerifyResponse(ctx, submissionID, response)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle.Phase != model.PhaseVerifying {
		// Dismissed while the call was in flight; finalization is
		// already scheduled.
		return
	}
	if err != nil {
		c.view.ShowStatus(SurfaceVerification,
			i18n.Td(ctx, "VerificationError", map[string]any{"Error": err.Error()}), true)
		c.view.SetControlEnabled(ControlVerify, true)
		c.cycle.Phase = model.PhaseAwaitingQuestion
		c.scheduleFinalizeLocked(ctx, true)
		return
	}
	if message == "" {
		message = i18n.T(ctx, "VerificationSuccess")
	}
	c.view.ShowStatus(SurfaceVerification, message, false)
	c.cycle.Phase = model.PhaseFinalizing
	c.scheduleFinalizeLocked(ctx, false)
}

// Dismiss cancels the in-progress verification step: the user closed the
// question overlay without answering. The timer stops and the cycle
// finalizes with the issue flag set.
func (c *Controller) Dismiss(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle.Phase != model.PhaseAwaitingQuestion && c.cycle.Phase != model.PhaseVerifying {
		return
	}
	c.stopTimerLocked()
	c.view.HideQuestion()
	c.cycle.Phase = model.PhaseFinalizing
	c.scheduleFinalizeLocked(ctx, true)
}

// scheduleFinalizeLocked arms the finalize delay, replacing any pending
// one. The issue flag of the latest schedule wins: a successful retry
// after a failed verification finalizes clean.
func (c *Controller) scheduleFinalizeLocked(ctx context.Context, hadIssue bool) {
	c.cycle.HadIssue = hadIssue
	if c.cancelFinal != nil {
		c.cancelFinal()
	}
	c.cancelFinal = c.sched.After(c.cfg.FinalizeDelay, func() {
		c.finalize(ctx)
	})
}

// finalize resets the cycle to idle and reports the terminal status.
func (c *Controller) finalize(ctx context.Context) {
	c.mu.Lock()
	if c.cycle.Phase == model.PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.cancelFinal = nil
	hadIssue := c.cycle.HadIssue

	c.view.HideQuestion()
	c.view.ResetResponse()
	c.view.SetControlEnabled(ControlSubmit, true)
	if hadIssue {
		c.view.ShowStatus(SurfaceSubmission, i18n.T(ctx, "FinalWithIssues"), true)
	} else {
		c.view.ShowStatus(SurfaceSubmission, i18n.T(ctx, "FinalSuccess"), false)
	}
	c.cycle.Reset()
	hook := c.onFinalized
	c.mu.Unlock()

	if hook != nil {
		hook(hadIssue)
	}
}
