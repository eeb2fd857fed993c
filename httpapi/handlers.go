package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/docpipe"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
)

// jobView renders a job record with result_json surfaced as a raw JSON
// object rather than an escaped string. ResultJSON shadows the embedded
// field to keep the string form out of responses.
type jobView struct {
	*jobstore.Job
	ResultJSON string          `json:"-"`
	Result     json.RawMessage `json:"result,omitempty"`
}

func viewOf(j *jobstore.Job) jobView {
	v := jobView{Job: j}
	if j.ResultJSON != "" {
		v.Result = json.RawMessage(j.ResultJSON)
	}
	return v
}

func viewsOf(jobs []*jobstore.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j))
	}
	return views
}

// handleSubmit accepts a multipart upload, persists the bytes and creates a
// job in the received state. Returns the job id immediately; processing is
// asynchronous.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ownerID := r.FormValue("owner")
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "form field 'owner' is required")
		return
	}

	declared := r.FormValue("format")
	if declared == "" {
		declared = filepath.Ext(header.Filename)
	}
	format, err := docpipe.ParseFormat(declared)
	if err != nil {
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if len(content) == 0 {
		s.respondError(w, http.StatusBadRequest, "empty file")
		return
	}

	blobKey := s.newBlob()
	if err := s.blobs.Put(blobKey, content); err != nil {
		s.log.Error("blob write failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}

	job := &jobstore.Job{
		ID:        s.newJobID(),
		OwnerID:   ownerID,
		Filename:  header.Filename,
		Format:    string(format),
		SizeBytes: int64(len(content)),
		BlobKey:   blobKey,
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.log.Error("job create failed", "error", err, "blob_key", blobKey)
		// Undo the stored upload; a blob without a job record is unreachable.
		if derr := s.blobs.Delete(blobKey); derr != nil {
			s.log.Error("orphaned blob cleanup failed", "error", derr, "blob_key", blobKey)
		}
		s.respondError(w, http.StatusInternalServerError, "creating job failed")
		return
	}

	s.log.Info("document submitted",
		"job_id", job.ID, "owner", ownerID,
		"format", job.Format, "size", job.SizeBytes)
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":     job.ID,
		"status": job.Status,
	})
}

// handleGet returns one job with its populated-only fields.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.log.Error("job lookup failed", "error", err, "job_id", id)
		s.respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if job == nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, viewOf(job))
}

// handleList returns an owner's jobs, newest first.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'owner' is required")
		return
	}
	jobs, err := s.jobs.ListByOwner(r.Context(), ownerID, 0)
	if err != nil {
		s.log.Error("job listing failed", "error", err, "owner", ownerID)
		s.respondError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"jobs": viewsOf(jobs)})
}

// handleResubmit re-queues a failed job.
func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.jobs.Resubmit(r.Context(), id)
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobstore.ErrNotFailed):
		s.respondError(w, http.StatusConflict, "only failed jobs can be re-submitted")
		return
	case err != nil:
		s.log.Error("resubmit failed", "error", err, "job_id", id)
		s.respondError(w, http.StatusInternalServerError, "resubmit failed")
		return
	}
	s.log.Info("job re-submitted", "job_id", id)
	s.respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": jobstore.StatusReceived,
	})
}

// handleStale lists processing jobs older than the staleness threshold.
// They indicate a worker lost mid-claim; an operator decides what to do.
func (s *Server) handleStale(w http.ResponseWriter, r *http.Request) {
	age := time.Duration(s.staleAge()) * time.Minute
	jobs, err := s.jobs.ListStale(r.Context(), age, 0)
	if err != nil {
		s.log.Error("staleness query failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "staleness query failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"threshold_minutes": s.staleAge(),
		"jobs":              viewsOf(jobs),
	})
}

// handleHealth reports liveness plus queue depth per status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.CountByStatus(r.Context())
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   counts,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
