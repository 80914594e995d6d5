package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/whisper-web/backend/internal/db"
	"github.com/whisper-web/backend/internal/download"
	"github.com/whisper-web/backend/internal/job"
	"github.com/whisper-web/backend/internal/media"
)

// Uploads above this size are rejected outright.
const maxUploadBytes = 4 << 30 // 4 GiB

type JobsHandler struct {
	queue      *job.Queue
	database   *db.Database
	uploadPath string
}

func NewJobsHandler(queue *job.Queue, database *db.Database, uploadPath string) *JobsHandler {
	return &JobsHandler{queue: queue, database: database, uploadPath: uploadPath}
}

// Create starts a new transcription run from a multipart form holding either
// an uploaded media file (field "file") or a video link (field "url"), plus
// the dropdown option fields. Omitted options use the configured defaults.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	beamSize := 0
	if v := r.FormValue("beam_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "beam_size must be a number", http.StatusBadRequest)
			return
		}
		beamSize = n
	}

	opts, err := parseRunOptions(h.database,
		r.FormValue("model"),
		r.FormValue("device"),
		r.FormValue("compute_type"),
		r.FormValue("language"),
		r.FormValue("task"),
		beamSize,
	)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sourceType, source, err := h.resolveRequestSource(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	j, err := h.queue.Enqueue(sourceType, source, opts)
	if err != nil {
		jsonError(w, "failed to enqueue run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, j, http.StatusCreated)
}

// resolveRequestSource extracts the media source from the form. Exactly one
// of file upload or URL must be provided.
func (h *JobsHandler) resolveRequestSource(r *http.Request) (job.SourceType, string, error) {
	rawURL := strings.TrimSpace(r.FormValue("url"))

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		if rawURL != "" {
			return "", "", errors.New("provide either a file or a url, not both")
		}
		path, err := media.SaveUpload(h.uploadPath, header.Filename, file)
		if err != nil {
			return "", "", err
		}
		return job.SourceUpload, path, nil
	case errors.Is(err, http.ErrMissingFile):
		if rawURL == "" {
			return "", "", errors.New("upload a media file or provide a url")
		}
		if !download.IsSupportedURL(rawURL) {
			return "", "", errors.New("url must be a valid http(s) link")
		}
		return job.SourceURL, rawURL, nil
	default:
		return "", "", errors.New("invalid file upload: " + err.Error())
	}
}

// List returns all runs, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.List()
	if err != nil {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	jsonResponse(w, jobs, http.StatusOK)
}

// Get returns a single run by ID.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, "missing run ID", http.StatusBadRequest)
		return
	}

	j, err := h.queue.Get(id)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}

	jsonResponse(w, j, http.StatusOK)
}

// Cancel stops a pending or running run.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, "missing run ID", http.StatusBadRequest)
		return
	}

	if err := h.queue.Cancel(id); err != nil {
		jsonError(w, "failed to cancel run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Retry re-queues a failed or cancelled run.
func (h *JobsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, "missing run ID", http.StatusBadRequest)
		return
	}

	if err := h.queue.Retry(id); err != nil {
		jsonError(w, "failed to retry run: "+err.Error(), http.StatusBadRequest)
		return
	}

	jsonResponse(w, map[string]string{"status": "retrying"}, http.StatusOK)
}
