package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/thoughtcaptcha/internal/model"
)

func TestSubmitAssignmentRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submit-assignment" {
			t.Errorf("request = %s %s, want POST /submit-assignment", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": 17})
	}))
	defer srv.Close()

	assignmentID := int64(3)
	id, err := New(srv.URL).SubmitAssignment(context.Background(), "My essay.", &assignmentID)
	if err != nil {
		t.Fatalf("SubmitAssignment: %v", err)
	}
	if id != 17 {
		t.Errorf("id = %d, want 17", id)
	}
	if got["original_content"] != "My essay." {
		t.Errorf("original_content = %v", got["original_content"])
	}
	if got["assignment_id"] != float64(3) {
		t.Errorf("assignment_id = %v, want 3", got["assignment_id"])
	}
}

func TestSubmitAssignmentNilAssignmentID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]int64{"id": 1})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).SubmitAssignment(context.Background(), "Free-form.", nil); err != nil {
		t.Fatalf("SubmitAssignment: %v", err)
	}
	if v, present := got["assignment_id"]; !present || v != nil {
		t.Errorf("assignment_id = %v (present=%v), want explicit null", v, present)
	}
}

func TestCurrentAssignmentNotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "No current assignment set."})
	}))
	defer srv.Close()

	a, err := New(srv.URL).CurrentAssignment(context.Background())
	if err != nil {
		t.Fatalf("CurrentAssignment: %v", err)
	}
	if a != nil {
		t.Errorf("assignment = %+v, want nil", a)
	}
}

func TestCurrentAssignmentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "database locked"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).CurrentAssignment(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Detail != "database locked" {
		t.Errorf("error = %+v", apiErr)
	}
}

func TestErrorDetailFromNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GenerateQuestion(context.Background(), 1)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", apiErr.Status)
	}
	if apiErr.Detail != "" {
		t.Errorf("detail = %q, want empty for unparseable body", apiErr.Detail)
	}
	if apiErr.Error() != "502 Bad Gateway" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestVerifyResponseReturnsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["submission_id"] != float64(9) || req["student_response"] != "Because tides matter." {
			t.Errorf("request body = %v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "Verification response recorded."})
	}))
	defer srv.Close()

	msg, err := New(srv.URL).VerifyResponse(context.Background(), 9, "Because tides matter.")
	if err != nil {
		t.Fatalf("VerifyResponse: %v", err)
	}
	if msg != "Verification response recorded." {
		t.Errorf("message = %q", msg)
	}
}

func TestBasicAuthCredentialsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "teacher" || pass != "chalkboard" {
			t.Errorf("basic auth = %q/%q (ok=%v)", user, pass, ok)
		}
		json.NewEncoder(w).Encode([]model.Submission{})
	}))
	defer srv.Close()

	c := New(srv.URL, WithBasicAuth("teacher", "chalkboard"))
	if _, err := c.ListSubmissions(context.Background()); err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
}

func TestSetCurrentAssignmentPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL).SetCurrentAssignment(context.Background(), 42); err != nil {
		t.Fatalf("SetCurrentAssignment: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/assignments/42/set-current" {
		t.Errorf("request = %s %s, want PUT /assignments/42/set-current", gotMethod, gotPath)
	}
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(model.SystemPrompt{PromptText: "p"})
	}))
	defer srv.Close()

	if _, err := New(srv.URL + "/").GetPrompt(context.Background()); err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if gotPath != "/prompt" {
		t.Errorf("path = %q, want /prompt", gotPath)
	}
}
