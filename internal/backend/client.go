// Package backend is the HTTP client of the exam backend that owns exam
// definitions, results storage and authentication.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upl-platform/exam-portal/internal/model"
)

const (
	DefaultBaseURL    = "http://localhost:3001/api"
	DefaultSubmitPath = "exams/submit-exam"

	maxErrorBody = 64 << 10
)

// StatusError is a non-2xx answer from the backend. Message is the
// backend's own "message" field when it sent one.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Message returns the human-readable reason carried by err, if any.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return ""
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	SubmitPath string
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
}

// Client talks to the backend. It is shared; ForToken binds it to one
// student's bearer token.
type Client struct {
	baseURL    *url.URL
	submitPath string
	httpClient *http.Client
}

// NewClient builds a Client. An empty BaseURL or SubmitPath takes the default.
func NewClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	submitPath := strings.TrimPrefix(opts.SubmitPath, "/")
	if submitPath == "" {
		submitPath = DefaultSubmitPath
	}
	return &Client{
		baseURL:    base,
		submitPath: submitPath,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// ForToken returns a view of the client that authenticates as token.
func (c *Client) ForToken(token string) *Session {
	return &Session{client: c, token: token}
}

// Session is a Client bound to one bearer token. It satisfies the engine's
// exam source and result sender.
type Session struct {
	client *Client
	token  string
}

// ListExams fetches the exams scheduled for faculty.
func (s *Session) ListExams(ctx context.Context, faculty string) ([]model.Exam, error) {
	q := url.Values{}
	q.Set("faculty", faculty)
	var exams []model.Exam
	if err := s.client.do(ctx, http.MethodGet, "exams", q, s.token, nil, &exams); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// ListResults fetches the caller's prior results.
func (s *Session) ListResults(ctx context.Context) ([]model.Result, error) {
	var results []model.Result
	if err := s.client.do(ctx, http.MethodGet, "results", nil, s.token, nil, &results); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// SendResult posts a finished result.
func (s *Session) SendResult(ctx context.Context, result model.Result) error {
	if err := s.client.do(ctx, http.MethodPost, s.client.submitPath, nil, s.token, result, nil); err != nil {
		return fmt.Errorf("send result: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	se := &StatusError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		se.Message = payload.Message
	}
	return se
}
