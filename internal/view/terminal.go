// Package view renders the student flow on a terminal.
package view

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pavelanni/thoughtcaptcha/internal/controller"
	"github.com/pavelanni/thoughtcaptcha/internal/i18n"
	"github.com/pavelanni/thoughtcaptcha/internal/model"
)

// Terminal implements controller.View on a line-oriented terminal.
// Status messages and the question overlay are printed to out; the
// response field is fed by the command loop via SetResponse.
type Terminal struct {
	out io.Writer
	ctx context.Context

	mu       sync.Mutex
	response string
	enabled  map[controller.Control]bool
	counting bool
}

// NewTerminal creates a terminal view. ctx carries the localizer used
// for labels the view renders on its own (assignment heading, countdown).
func NewTerminal(out io.Writer, ctx context.Context) *Terminal {
	return &Terminal{
		out: out,
		ctx: ctx,
		enabled: map[controller.Control]bool{
			controller.ControlSubmit: true,
		},
	}
}

// ShowStatus prints a status message, flagging errors.
func (t *Terminal) ShowStatus(_ controller.Surface, message string, isError bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endCountdownLocked()
	if isError {
		fmt.Fprintf(t.out, "! %s\n", message)
		return
	}
	fmt.Fprintf(t.out, "%s\n", message)
}

// ClearStatus is a no-op on a scrolling terminal.
func (t *Terminal) ClearStatus(controller.Surface) {}

// SetControlEnabled records control availability; the command loop
// consults it before forwarding user input.
func (t *Terminal) SetControlEnabled(c controller.Control, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled[c] = on
}

// Enabled reports whether a control currently accepts input.
func (t *Terminal) Enabled(c controller.Control) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled[c]
}

// ShowAssignment prints the assignment heading and prompt, or the
// free-form submission hint when no assignment is active.
func (t *Terminal) ShowAssignment(a *model.Assignment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a == nil {
		fmt.Fprintf(t.out, "=== %s ===\n%s\n%s\n",
			i18n.T(t.ctx, "SubmitYourWork"),
			i18n.T(t.ctx, "NoActiveAssignment"),
			i18n.T(t.ctx, "EnterSubmission"))
		return
	}
	fmt.Fprintf(t.out, "=== %s ===\n%s\n\n%s\n",
		i18n.T(t.ctx, "AssignmentHeading"),
		a.PromptText,
		i18n.T(t.ctx, "RespondToAssignment"))
}

// ShowQuestion prints the verification question block.
func (t *Terminal) ShowQuestion(question string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n%s\n--- %s ---\n%s\n> ",
		strings.Repeat("-", 40),
		i18n.T(t.ctx, "VerificationQuestion"),
		question)
}

// HideQuestion closes the question block.
func (t *Terminal) HideQuestion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endCountdownLocked()
	fmt.Fprintf(t.out, "%s\n", strings.Repeat("-", 40))
}

// ShowTimeRemaining rewrites the countdown on a single line.
func (t *Terminal) ShowTimeRemaining(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counting = true
	fmt.Fprintf(t.out, "\r%s   ",
		i18n.Td(t.ctx, "TimeRemaining", map[string]any{"Seconds": seconds}))
}

// SetResponse stores the text the user typed for the response field.
func (t *Terminal) SetResponse(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.response = text
}

// ResponseText returns whatever currently occupies the response field.
func (t *Terminal) ResponseText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response
}

// ResetResponse clears the response field.
func (t *Terminal) ResetResponse() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.response = ""
}

// endCountdownLocked terminates a countdown line so the next message
// starts on a fresh one.
func (t *Terminal) endCountdownLocked() {
	if t.counting {
		fmt.Fprintln(t.out)
		t.counting = false
	}
}
