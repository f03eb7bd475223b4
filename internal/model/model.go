package model

import (
	"time"
)

// Phase represents the stage of a submission cycle.
type Phase string

const (
	// PhaseIdle means no cycle is in flight.
	PhaseIdle Phase = "idle"
	// PhaseSubmitting means the initial content submission is in flight.
	PhaseSubmitting Phase = "submitting"
	// PhaseAwaitingQuestion means a question has been requested or is on
	// screen with the countdown running.
	PhaseAwaitingQuestion Phase = "awaiting_question"
	// PhaseVerifying means the verification response is in flight.
	PhaseVerifying Phase = "verifying"
	// PhaseFinalizing means the cycle outcome is being reported before
	// the reset to idle.
	PhaseFinalizing Phase = "finalizing"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Cycle is the transient state of one student attempt, from initial
// submission through the final verification outcome. It is owned
// exclusively by the controller and reset to the zero value when the
// cycle finalizes.
type Cycle struct {
	SubmissionID *int64
	AssignmentID *int64
	Phase        Phase
	HadIssue     bool
}

// Reset returns the cycle to its idle zero state.
func (c *Cycle) Reset() {
	c.SubmissionID = nil
	c.AssignmentID = nil
	c.Phase = PhaseIdle
	c.HadIssue = false
}

// Assignment is a teacher-authored assignment prompt.
type Assignment struct {
	ID         int64     `json:"id"`
	PromptText string    `json:"prompt_text"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
}

// Submission is a stored student submission with its verification
// artifacts, as returned by the submissions listing.
type Submission struct {
	ID                int64     `json:"id"`
	AssignmentID      *int64    `json:"assignment_id,omitempty"`
	OriginalContent   string    `json:"original_content"`
	GeneratedQuestion string    `json:"generated_question,omitempty"`
	StudentResponse   string    `json:"student_response,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SystemPrompt is the instruction text used for question generation.
type SystemPrompt struct {
	PromptText string `json:"prompt_text"`
}
