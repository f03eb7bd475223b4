package view

import (
	"context"
	"strings"
	"testing"

	"github.com/pavelanni/thoughtcaptcha/internal/controller"
	"github.com/pavelanni/thoughtcaptcha/internal/i18n"
	"github.com/pavelanni/thoughtcaptcha/internal/model"
)

func newTestTerminal(t *testing.T) (*Terminal, *strings.Builder) {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	ctx := i18n.WithLocalizer(context.Background(), i18n.NewLocalizer("en"))
	var out strings.Builder
	return NewTerminal(&out, ctx), &out
}

func TestShowAssignment(t *testing.T) {
	term, out := newTestTerminal(t)

	term.ShowAssignment(&model.Assignment{ID: 1, PromptText: "Describe your favorite place."})
	if !strings.Contains(out.String(), "Describe your favorite place.") {
		t.Errorf("output missing assignment prompt:\n%s", out.String())
	}
}

func TestShowAssignmentEmptyState(t *testing.T) {
	term, out := newTestTerminal(t)

	term.ShowAssignment(nil)
	if !strings.Contains(out.String(), "No specific assignment prompt is currently active.") {
		t.Errorf("output missing empty-state hint:\n%s", out.String())
	}
}

func TestErrorStatusIsMarked(t *testing.T) {
	term, out := newTestTerminal(t)

	term.ShowStatus(controller.SurfaceSubmission, "something broke", true)
	if !strings.Contains(out.String(), "! something broke") {
		t.Errorf("error status not marked:\n%s", out.String())
	}
}

func TestCountdownRewritesOneLine(t *testing.T) {
	term, out := newTestTerminal(t)

	term.ShowTimeRemaining(60)
	term.ShowTimeRemaining(59)
	got := out.String()
	if strings.Count(got, "\n") != 0 {
		t.Errorf("countdown emitted newlines: %q", got)
	}
	if strings.Count(got, "\r") != 2 {
		t.Errorf("countdown did not rewrite in place: %q", got)
	}

	// A status after the countdown must start on a fresh line.
	term.ShowStatus(controller.SurfaceVerification, "done", false)
	if !strings.Contains(out.String(), "\ndone\n") {
		t.Errorf("status did not terminate the countdown line: %q", out.String())
	}
}

func TestResponseField(t *testing.T) {
	term, _ := newTestTerminal(t)

	term.SetResponse("my answer")
	if got := term.ResponseText(); got != "my answer" {
		t.Errorf("ResponseText = %q", got)
	}
	term.ResetResponse()
	if got := term.ResponseText(); got != "" {
		t.Errorf("ResponseText after reset = %q", got)
	}
}

func TestControlGating(t *testing.T) {
	term, _ := newTestTerminal(t)

	if !term.Enabled(controller.ControlSubmit) {
		t.Error("submit should start enabled")
	}
	if term.Enabled(controller.ControlVerify) {
		t.Error("verify should start disabled")
	}
	term.SetControlEnabled(controller.ControlVerify, true)
	if !term.Enabled(controller.ControlVerify) {
		t.Error("verify not enabled after SetControlEnabled")
	}
}
