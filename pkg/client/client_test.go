package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

const testToken = "cg_testtoken"

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	c := NewHTTPClient(baseURL, testToken, 5*time.Second)
	c.pollInterval = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jobBody(status string, result any, errMsg *string) map[string]any {
	data := map[string]any{"status": status}
	if result != nil {
		data["result"] = result
	}
	if errMsg != nil {
		data["error"] = *errMsg
	}
	return map[string]any{"data": data}
}

var completePosts = map[string]string{
	"twitter":   "tweet",
	"linkedin":  "post",
	"instagram": "caption",
}

// statusSequence serves the given statuses in order, repeating the last one.
func statusSequence(t *testing.T, calls *int32, statuses ...string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		status := statuses[n-1]
		var result any
		if status == "completed" {
			result = completePosts
		}
		writeJSON(w, http.StatusOK, jobBody(status, result, nil))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// --- Submit ---

func TestSubmit_Accepted(t *testing.T) {
	jobID := uuid.New()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		var body SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Launch", body.Title)
		assert.Equal(t, "We shipped.", body.Content)

		writeJSON(w, http.StatusAccepted, map[string]any{
			"data": map[string]any{"jobId": jobID, "status": "pending"},
		})
	}))
	defer ts.Close()

	sub, err := newTestClient(t, ts.URL).Submit(context.Background(), SubmitRequest{Title: "Launch", Content: "We shipped."})
	require.NoError(t, err)
	assert.Equal(t, jobID, sub.JobID)
	assert.Equal(t, "pending", sub.Status)
}

func TestSubmit_RejectedReturnsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"code":    "QUOTA_EXCEEDED",
				"message": "Generation quota exceeded, try again in 1 hour",
				"details": map[string]any{"retryAfter": "1 hour"},
			},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Submit(context.Background(), SubmitRequest{Content: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "QUOTA_EXCEEDED", apiErr.Code)
	assert.Equal(t, time.Hour, apiErr.RetryAfter)
	assert.JSONEq(t, `{"retryAfter":"1 hour"}`, string(apiErr.Details))
}

func TestSubmit_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).Submit(context.Background(), SubmitRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrUnreachable)
}

// --- Poll ---

func TestPoll_CompletesAfterProcessing(t *testing.T) {
	var calls int32
	ts := statusSequence(t, &calls, "pending", "processing", "processing", "completed")

	posts, err := newTestClient(t, ts.URL).Poll(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "tweet", posts.Twitter)
	assert.Equal(t, "post", posts.LinkedIn)
	assert.Equal(t, "caption", posts.Instagram)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "stops at the first terminal status")
}

func TestPoll_FailedJob(t *testing.T) {
	msg := "generation failed: provider timeout"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jobBody("failed", nil, &msg))
	}))
	defer ts.Close()

	jobID := uuid.New()
	_, err := newTestClient(t, ts.URL).Poll(context.Background(), jobID)

	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, jobID, failed.JobID)
	assert.Equal(t, msg, failed.Message)
}

func TestPoll_GivesUpAfterExactlyThirtyAttempts(t *testing.T) {
	var calls int32
	ts := statusSequence(t, &calls, "processing")

	_, err := newTestClient(t, ts.URL).Poll(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(PollAttempts), atomic.LoadInt32(&calls))
}

func TestPoll_MissingResultFieldsIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jobBody("completed", map[string]string{"twitter": "tweet", "linkedin": ""}, nil))
	}))
	defer ts.Close()

	posts, err := newTestClient(t, ts.URL).Poll(context.Background(), uuid.New())
	assert.Nil(t, posts)
	require.ErrorIs(t, err, ErrInvalidResult)
	assert.Contains(t, err.Error(), "linkedin")
	assert.Contains(t, err.Error(), "instagram")
}

func TestPoll_EmptyResultIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jobBody("completed", nil, nil))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Poll(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestPoll_HTTPErrorStopsImmediately(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": "RESOURCE_NOT_FOUND", "message": "Resource not found"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Poll(context.Background(), uuid.New())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RESOURCE_NOT_FOUND", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPoll_TransportErrorStopsImmediately(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).Poll(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, errors.Is(err, ErrPollTimeout))
}

func TestPoll_ContextCancelled(t *testing.T) {
	var calls int32
	ts := statusSequence(t, &calls, "processing")

	c := newTestClient(t, ts.URL)
	c.pollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Poll(ctx, uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestPoll_DefaultsMatchSixtySecondBudget(t *testing.T) {
	c := NewHTTPClient("http://localhost", "", time.Second)
	assert.Equal(t, 2*time.Second, c.pollInterval)
	assert.Equal(t, 30, c.pollAttempts)
	assert.Equal(t, time.Minute, time.Duration(c.pollAttempts)*c.pollInterval)
}

// --- Generate ---

func TestGenerate_SubmitThenPoll(t *testing.T) {
	jobID := uuid.New()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"data": map[string]any{"jobId": jobID, "status": "pending"},
		})
	})
	mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, jobID.String(), r.PathValue("id"))
		if atomic.AddInt32(&polls, 1) < 2 {
			writeJSON(w, http.StatusOK, jobBody("processing", nil, nil))
			return
		}
		writeJSON(w, http.StatusOK, jobBody("completed", completePosts, nil))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	posts, err := newTestClient(t, ts.URL).Generate(context.Background(), SubmitRequest{Content: "We shipped."})
	require.NoError(t, err)
	assert.Equal(t, "tweet", posts.Twitter)
}

func TestGenerate_RejectedSubmitSkipsPolling(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&polls, 1)
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": "VALIDATION_FAILED", "message": "Request validation failed"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Generate(context.Background(), SubmitRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Zero(t, atomic.LoadInt32(&polls))
}
