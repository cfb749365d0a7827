package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/prepworks/examimport/internal/export"
	"github.com/prepworks/examimport/internal/importer"
	"github.com/prepworks/examimport/internal/platform/database"
)

type server struct {
	store    importer.Store
	progress *importer.CacheReporter // nil when the cache is disabled
	db       *database.DB            // nil in tests

	// streamInterval is how often a progress stream re-reads the job.
	streamInterval time.Duration
}

// newMux creates the HTTP router.
func newMux(s *server) *http.ServeMux {
	if s.streamInterval <= 0 {
		s.streamInterval = time.Second
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/progress", s.handleProgressStream)
	mux.HandleFunc("GET /jobs/{id}/review.xlsx", s.handleReviewSheet)
	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type jobResponse struct {
	ID        string   `json:"id"`
	ExamTitle string   `json:"exam_title"`
	Status    string   `json:"status"`
	Stage     string   `json:"stage"`
	Progress  int      `json:"progress"`
	Attempts  int      `json:"attempts"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func jobToResponse(job *importer.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		ExamTitle: job.ExamTitle,
		Status:    string(job.Status),
		Stage:     job.Stage,
		Progress:  job.Progress,
		Attempts:  job.Attempts,
		Errors:    job.Errors,
		Warnings:  job.Warnings,
	}
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobToResponse(job))
}

// handleReviewSheet streams the job's question rows as a spreadsheet for
// offline review.
func (s *server) handleReviewSheet(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	rows, err := s.store.Questions(r.Context(), jobID)
	if err != nil {
		http.Error(w, `{"error":"questions unavailable"}`, http.StatusInternalServerError)
		return
	}

	f, err := export.BuildReviewSheet(job, rows)
	if err != nil {
		slog.Error("failed to build review sheet", "job_id", jobID, "error", err)
		http.Error(w, `{"error":"review sheet failed"}`, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="review-`+jobID+`.xlsx"`)
	if _, err := f.WriteTo(w); err != nil {
		slog.Debug("review sheet write aborted", "job_id", jobID, "error", err)
	}
}

// progressEvent is one frame of a job progress stream.
type progressEvent struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

func isTerminal(status importer.Status) bool {
	switch status {
	case importer.StatusReadyToPublish, importer.StatusNeedsReview,
		importer.StatusFailed, importer.StatusPublished:
		return true
	}
	return false
}

// handleProgressStream pushes job progress over a websocket until the job
// reaches a terminal status. Frames come from the progress cache when it is
// fresher than the job row.
func (s *server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var last progressEvent
	first := true
	for {
		event, terminal, err := s.progressSnapshot(ctx, jobID)
		if err != nil {
			slog.Warn("progress stream read failed", "job_id", jobID, "error", err)
			conn.Close(websocket.StatusInternalError, "job unavailable")
			return
		}

		if first || event != last {
			if err := wsjson.Write(ctx, conn, event); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("progress stream write failed", "job_id", jobID, "error", err)
				}
				return
			}
			last = event
			first = false
		}
		if terminal {
			conn.Close(websocket.StatusNormalClosure, "job finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *server) progressSnapshot(ctx context.Context, jobID string) (progressEvent, bool, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return progressEvent{}, false, err
	}

	event := progressEvent{
		JobID:    job.ID,
		Status:   string(job.Status),
		Stage:    job.Stage,
		Progress: job.Progress,
	}

	// The cache is written right after the job row, so it can only be ahead.
	if s.progress != nil && !isTerminal(job.Status) {
		if snap, err := s.progress.Snapshot(ctx, jobID); err == nil && snap != nil && snap.Progress > event.Progress {
			event.Stage = snap.Stage
			event.Progress = snap.Progress
		}
	}

	return event, isTerminal(job.Status), nil
}
