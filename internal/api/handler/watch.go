package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	mw "github.com/kiranshivaraju/creatorgen/internal/api/middleware"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

const (
	// WatchLimit bounds how long a watch stays open, mirroring the client's
	// polling budget.
	WatchLimit = 60 * time.Second

	watchRecheck = 2 * time.Second
	writeTimeout = 5 * time.Second
)

// StatusWatcher delivers status change notifications for a job.
type StatusWatcher interface {
	WatchJobStatus(ctx context.Context, jobID uuid.UUID) (<-chan string, error)
}

// WatchEvent is one websocket message of a job watch.
type WatchEvent struct {
	// Type is "job" for a job snapshot or "timeout" when the watch limit
	// elapsed before the job finished.
	Type string      `json:"type"`
	Job  *models.Job `json:"job,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewWatchJobHandler returns an http.HandlerFunc for GET
// /api/v1/jobs/{jobID}/watch. It sends the job whenever its status changes
// and closes after a terminal snapshot or after limit.
func NewWatchJobHandler(jr JobReader, watcher StatusWatcher, limit time.Duration) http.HandlerFunc {
	if limit <= 0 {
		limit = WatchLimit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID", nil)
			return
		}

		// Ownership is checked before upgrading so errors use the normal envelope.
		job, err := jr.GetJob(r.Context(), jobID, principal.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), limit)
		defer cancel()

		// Subscribe before upgrading so no transition between the read above
		// and the first event is missed.
		var events <-chan string
		if !job.IsTerminal() && watcher != nil {
			events, err = watcher.WatchJobStatus(ctx, jobID)
			if err != nil {
				slog.Warn("job watch falling back to polling", "job_id", jobID, "error", err)
				events = nil
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("failed to upgrade websocket connection", "error", err)
			return
		}
		defer conn.Close()

		// The client only sends control frames; a read error means it left.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev WatchEvent) bool {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write failed", "job_id", jobID, "error", err)
				return false
			}
			return true
		}
		closeNormal := func() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		}

		if !send(WatchEvent{Type: "job", Job: job}) {
			return
		}
		if job.IsTerminal() {
			closeNormal()
			return
		}

		ticker := time.NewTicker(watchRecheck)
		defer ticker.Stop()
		lastStatus := job.Status

		for {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					send(WatchEvent{Type: "timeout"})
					closeNormal()
				}
				return
			case _, ok := <-events:
				if !ok {
					events = nil
					continue
				}
			case <-ticker.C:
			}

			// Events only signal a change; the database is the source of truth.
			current, err := jr.GetJob(ctx, jobID, principal.ID)
			if err != nil {
				slog.Warn("job watch re-read failed", "job_id", jobID, "error", err)
				continue
			}
			if current.Status == lastStatus {
				continue
			}
			lastStatus = current.Status
			if !send(WatchEvent{Type: "job", Job: current}) {
				return
			}
			if current.IsTerminal() {
				closeNormal()
				return
			}
		}
	}
}
