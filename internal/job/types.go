package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/whisper-web/backend/internal/transcribe"
)

// SourceType says where the run's media came from.
type SourceType string

const (
	SourceUpload SourceType = "upload" // file uploaded through the UI, stored under the upload dir
	SourceURL    SourceType = "url"    // remote link fetched with yt-dlp at run time
)

// Status is the current state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one queued transcription run.
type Job struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	SourceType  SourceType      `json:"source_type"`
	Source      string          `json:"source"` // local path for uploads, URL for links
	Params      json.RawMessage `json:"params"` // transcribe.Options
	Progress    float64         `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Options decodes the run options stored with the job.
func (j *Job) Options() (transcribe.Options, error) {
	var opts transcribe.Options
	err := json.Unmarshal(j.Params, &opts)
	return opts, err
}

// Result is the output of a completed run. Artifact paths are relative to
// the output directory.
type Result struct {
	TextPath     string  `json:"text_path"`
	SRTPath      string  `json:"srt_path"`
	Preview      string  `json:"preview"` // transcript text shown inline, possibly truncated
	Language     string  `json:"language"`
	Duration     float64 `json:"duration"`
	SegmentCount int     `json:"segment_count"`
}

// Handler processes one run. The pipeline service provides the
// implementation; it stores the Result on the job before returning.
type Handler func(ctx context.Context, job *Job, updateProgress func(float64)) error
