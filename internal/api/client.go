// Package api implements the JSON-over-HTTP client for the ThoughtCaptcha
// backend service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/thoughtcaptcha/internal/model"
)

// Error is a non-2xx response from the backend. Detail carries the
// server-provided human-readable message when the error body parsed.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

// Client talks to a ThoughtCaptcha backend. Every operation is a single
// attempt; retry is always a fresh user action.
type Client struct {
	baseURL  string
	http     *http.Client
	username string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBasicAuth sets credentials sent with teacher operations.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// New creates a client for the given base URL (e.g. "https://host/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type submitAssignmentRequest struct {
	OriginalContent string `json:"original_content"`
	AssignmentID    *int64 `json:"assignment_id"`
}

type submitAssignmentResponse struct {
	ID int64 `json:"id"`
}

type generateQuestionRequest struct {
	SubmissionID int64 `json:"submission_id"`
}

type generateQuestionResponse struct {
	GeneratedQuestion string `json:"generated_question"`
}

type verifyResponseRequest struct {
	SubmissionID    int64  `json:"submission_id"`
	StudentResponse string `json:"student_response"`
}

type verifyResponseResponse struct {
	Message string `json:"message"`
}

// CurrentAssignment fetches the active assignment. A 404 means no
// assignment is currently active and returns (nil, nil).
func (c *Client) CurrentAssignment(ctx context.Context) (*model.Assignment, error) {
	var a model.Assignment
	err := c.do(ctx, http.MethodGet, "/assignments/current", nil, &a)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// SubmitAssignment sends the student's content and returns the new
// submission ID. assignmentID may be nil for a free-form submission.
func (c *Client) SubmitAssignment(ctx context.Context, content string, assignmentID *int64) (int64, error) {
	var resp submitAssignmentResponse
	req := submitAssignmentRequest{OriginalContent: content, AssignmentID: assignmentID}
	if err := c.do(ctx, http.MethodPost, "/submit-assignment", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GenerateQuestion asks the backend to generate the follow-up question
// for a submission.
func (c *Client) GenerateQuestion(ctx context.Context, submissionID int64) (string, error) {
	var resp generateQuestionResponse
	req := generateQuestionRequest{SubmissionID: submissionID}
	if err := c.do(ctx, http.MethodPost, "/generate-question", req, &resp); err != nil {
		return "", err
	}
	return resp.GeneratedQuestion, nil
}

// VerifyResponse submits the student's answer to the follow-up question
// and returns the backend's outcome message (may be empty).
func (c *Client) VerifyResponse(ctx context.Context, submissionID int64, response string) (string, error) {
	var resp verifyResponseResponse
	req := verifyResponseRequest{SubmissionID: submissionID, StudentResponse: response}
	if err := c.do(ctx, http.MethodPost, "/verify-response", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ListSubmissions returns all stored submissions, newest first.
func (c *Client) ListSubmissions(ctx context.Context) ([]model.Submission, error) {
	var subs []model.Submission
	if err := c.do(ctx, http.MethodGet, "/submissions", nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// GetPrompt returns the system prompt used for question generation.
func (c *Client) GetPrompt(ctx context.Context) (model.SystemPrompt, error) {
	var p model.SystemPrompt
	err := c.do(ctx, http.MethodGet, "/prompt", nil, &p)
	return p, err
}

// UpdatePrompt replaces the system prompt and returns the stored value.
func (c *Client) UpdatePrompt(ctx context.Context, text string) (model.SystemPrompt, error) {
	var p model.SystemPrompt
	err := c.do(ctx, http.MethodPut, "/prompt", model.SystemPrompt{PromptText: text}, &p)
	return p, err
}

// ListAssignments returns all assignments.
func (c *Client) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	var as []model.Assignment
	if err := c.do(ctx, http.MethodGet, "/assignments", nil, &as); err != nil {
		return nil, err
	}
	return as, nil
}

type createAssignmentRequest struct {
	PromptText string `json:"prompt_text"`
	IsCurrent  bool   `json:"is_current"`
}

// CreateAssignment creates a new assignment prompt.
func (c *Client) CreateAssignment(ctx context.Context, promptText string, isCurrent bool) (model.Assignment, error) {
	var a model.Assignment
	req := createAssignmentRequest{PromptText: promptText, IsCurrent: isCurrent}
	err := c.do(ctx, http.MethodPost, "/assignments", req, &a)
	return a, err
}

// SetCurrentAssignment marks the given assignment as the single active one.
func (c *Client) SetCurrentAssignment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/assignments/%d/set-current", id), nil, nil)
}

// do performs one request. A non-2xx status becomes an *Error; the
// response body's optional {"detail": ...} field is attached when it
// parses, and ignored otherwise.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var errBody struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Detail = errBody.Detail
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
