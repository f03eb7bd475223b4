package store

import (
	"database/sql"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubmissionLifecycle(t *testing.T) {
	s := newTestStore(t)

	subs, err := s.ListSubmissions()
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected empty list, got %d", len(subs))
	}

	id, err := s.CreateSubmission("My essay about channels.", nil)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	sub, err := s.GetSubmission(id)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.OriginalContent != "My essay about channels." {
		t.Errorf("unexpected content %q", sub.OriginalContent)
	}
	if sub.AssignmentID != nil {
		t.Errorf("expected nil assignment id, got %v", *sub.AssignmentID)
	}
	if sub.GeneratedQuestion != "" || sub.StudentResponse != "" {
		t.Error("expected empty verification fields on a fresh submission")
	}

	// Not found.
	if _, err := s.GetSubmission(9999); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	// Verification artifacts.
	if err := s.SetGeneratedQuestion(id, "Why channels?"); err != nil {
		t.Fatalf("SetGeneratedQuestion: %v", err)
	}
	if err := s.SetStudentResponse(id, "Because goroutines."); err != nil {
		t.Fatalf("SetStudentResponse: %v", err)
	}
	sub, _ = s.GetSubmission(id)
	if sub.GeneratedQuestion != "Why channels?" {
		t.Errorf("unexpected question %q", sub.GeneratedQuestion)
	}
	if sub.StudentResponse != "Because goroutines." {
		t.Errorf("unexpected response %q", sub.StudentResponse)
	}

	// Newest first.
	id2, _ := s.CreateSubmission("Second", nil)
	subs, err = s.ListSubmissions()
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	if subs[0].ID != id2 {
		t.Errorf("expected newest submission first, got id %d", subs[0].ID)
	}
}

func TestSubmissionWithAssignment(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateAssignment("Write about goroutines.", true)
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	id, err := s.CreateSubmission("content", &a.ID)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	sub, _ := s.GetSubmission(id)
	if sub.AssignmentID == nil || *sub.AssignmentID != a.ID {
		t.Errorf("expected assignment id %d, got %v", a.ID, sub.AssignmentID)
	}
}

func TestSingleCurrentAssignment(t *testing.T) {
	s := newTestStore(t)

	// No assignment yet.
	cur, err := s.CurrentAssignment()
	if err != nil {
		t.Fatalf("CurrentAssignment: %v", err)
	}
	if cur != nil {
		t.Error("expected no current assignment")
	}

	a1, _ := s.CreateAssignment("First", true)
	a2, _ := s.CreateAssignment("Second", false)

	cur, _ = s.CurrentAssignment()
	if cur == nil || cur.ID != a1.ID {
		t.Fatalf("expected assignment %d current, got %v", a1.ID, cur)
	}

	// Promoting another demotes the previous one.
	if err := s.SetCurrentAssignment(a2.ID); err != nil {
		t.Fatalf("SetCurrentAssignment: %v", err)
	}
	cur, _ = s.CurrentAssignment()
	if cur == nil || cur.ID != a2.ID {
		t.Fatalf("expected assignment %d current, got %v", a2.ID, cur)
	}
	all, _ := s.ListAssignments()
	currentCount := 0
	for _, a := range all {
		if a.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Errorf("expected exactly 1 current assignment, got %d", currentCount)
	}

	// Creating a new current assignment also demotes.
	a3, _ := s.CreateAssignment("Third", true)
	cur, _ = s.CurrentAssignment()
	if cur == nil || cur.ID != a3.ID {
		t.Fatalf("expected assignment %d current, got %v", a3.ID, cur)
	}

	// Unknown ID.
	if err := s.SetCurrentAssignment(9999); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestSystemPromptRoundTrip(t *testing.T) {
	s := newTestStore(t)

	text, err := s.GetSystemPrompt()
	if err != nil {
		t.Fatalf("GetSystemPrompt: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty prompt, got %q", text)
	}

	if err := s.SetSystemPrompt("Ask one short question."); err != nil {
		t.Fatalf("SetSystemPrompt: %v", err)
	}
	text, _ = s.GetSystemPrompt()
	if text != "Ask one short question." {
		t.Errorf("unexpected prompt %q", text)
	}

	// Upsert.
	if err := s.SetSystemPrompt("Updated."); err != nil {
		t.Fatalf("SetSystemPrompt update: %v", err)
	}
	text, _ = s.GetSystemPrompt()
	if text != "Updated." {
		t.Errorf("unexpected prompt %q", text)
	}
}
