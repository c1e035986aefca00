// Package client submits generation jobs to a creatorgen server and waits for
// their outcome by polling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

const (
	// PollInterval is the fixed delay before each status read.
	PollInterval = 2 * time.Second
	// PollAttempts bounds how many status reads Poll makes before giving up.
	PollAttempts = 30
)

// Sentinel errors for client failures.
var (
	ErrUnreachable   = errors.New("creatorgen server unreachable")
	ErrPollTimeout   = errors.New("timed out waiting for job to finish")
	ErrInvalidResult = errors.New("job result is missing required fields")
)

// APIError is a request the server rejected before any work started.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    json.RawMessage
	// RetryAfter is set from the Retry-After header on 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("creatorgen: status %d", e.StatusCode)
	}
	return fmt.Sprintf("creatorgen: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// JobFailedError is a job that started but ended in the failed state.
type JobFailedError struct {
	JobID   uuid.UUID
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Client is the interface for talking to a creatorgen server.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	Poll(ctx context.Context, jobID uuid.UUID) (*models.SocialPosts, error)
	Generate(ctx context.Context, req SubmitRequest) (*models.SocialPosts, error)
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	ProjectID string `json:"projectId,omitempty"`
}

// Submission acknowledges an accepted job.
type Submission struct {
	JobID  uuid.UUID `json:"jobId"`
	Status string    `json:"status"`
}

// HTTPClient implements Client over the creatorgen HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client

	pollInterval time.Duration
	pollAttempts int
	validate     *validator.Validate
}

// NewHTTPClient creates a client authenticating with token, which is either a
// session JWT or a cg_ API key.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		client:       &http.Client{Timeout: timeout},
		pollInterval: PollInterval,
		pollAttempts: PollAttempts,
		validate:     validator.New(),
	}
}

func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, decodeAPIError(resp)
	}

	var env struct {
		Data Submission `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding submit response: %w", err)
	}
	return &env.Data, nil
}

// Poll reads the job every PollInterval until it finishes. It makes at most
// PollAttempts reads and returns ErrPollTimeout if the job is still running
// after the last one. Transport and HTTP errors end polling immediately.
func (c *HTTPClient) Poll(ctx context.Context, jobID uuid.UUID) (*models.SocialPosts, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		job, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case models.JobStatusCompleted:
			return c.decodeResult(job.Result)
		case models.JobStatusFailed:
			msg := "unknown error"
			if job.Error != nil && *job.Error != "" {
				msg = *job.Error
			}
			return nil, &JobFailedError{JobID: jobID, Message: msg}
		}

		timer.Reset(c.pollInterval)
	}
	return nil, fmt.Errorf("%w: job %s after %d attempts", ErrPollTimeout, jobID, c.pollAttempts)
}

func (c *HTTPClient) Generate(ctx context.Context, req SubmitRequest) (*models.SocialPosts, error) {
	sub, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Poll(ctx, sub.JobID)
}

type jobView struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

func (c *HTTPClient) getJob(ctx context.Context, jobID uuid.UUID) (*jobView, error) {
	u := fmt.Sprintf("%s/api/v1/jobs/%s", c.baseURL, url.PathEscape(jobID.String()))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var env struct {
		Data jobView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding job response: %w", err)
	}
	return &env.Data, nil
}

func (c *HTTPClient) decodeResult(raw json.RawMessage) (*models.SocialPosts, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: result is empty", ErrInvalidResult)
	}
	var posts models.SocialPosts
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if err := c.validate.Struct(posts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, strings.ToLower(fe.Field()))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidResult, strings.Join(missing, ", "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return &posts, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	var env struct {
		Error struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: request timed out: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
