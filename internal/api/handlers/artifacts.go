package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/whisper-web/backend/internal/job"
)

// ArtifactsHandler serves the rendered transcript and subtitle files of
// completed runs.
type ArtifactsHandler struct {
	queue      *job.Queue
	outputPath string
}

func NewArtifactsHandler(queue *job.Queue, outputPath string) *ArtifactsHandler {
	return &ArtifactsHandler{queue: queue, outputPath: outputPath}
}

// Transcript serves transcript.txt for a completed run.
func (h *ArtifactsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(res *job.Result) string { return res.TextPath }, "text/plain; charset=utf-8")
}

// Subtitles serves subtitles.srt for a completed run.
func (h *ArtifactsHandler) Subtitles(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(res *job.Result) string { return res.SRTPath }, "application/x-subrip; charset=utf-8")
}

func (h *ArtifactsHandler) serve(w http.ResponseWriter, r *http.Request, pick func(*job.Result) string, contentType string) {
	id := chi.URLParam(r, "id")
	j, err := h.queue.Get(id)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if j.Status != job.StatusCompleted || len(j.Result) == 0 {
		jsonError(w, "run has no artifacts yet", http.StatusConflict)
		return
	}

	var res job.Result
	if err := json.Unmarshal(j.Result, &res); err != nil {
		jsonError(w, "corrupt run result", http.StatusInternalServerError)
		return
	}

	rel := pick(&res)
	full := filepath.Join(h.outputPath, rel)

	// Artifact paths come from our own result records, but re-check anyway.
	absBase, _ := filepath.Abs(h.outputPath)
	absFull, _ := filepath.Abs(full)
	if !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		jsonError(w, "invalid artifact path", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(rel)+"\"")
	http.ServeFile(w, r, full)
}
