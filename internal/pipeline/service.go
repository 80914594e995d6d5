package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/whisper-web/backend/internal/job"
	"github.com/whisper-web/backend/internal/media"
)

// Transcript text larger than this is truncated in the inline preview; the
// full text is always in the downloadable artifact.
const maxPreviewRunes = 20000

const (
	TextArtifactName = "transcript.txt"
	SRTArtifactName  = "subtitles.srt"
)

// Service adapts the pipeline to the job queue: it runs one job end to end
// and writes the two artifacts into a per-run output directory.
type Service struct {
	pipeline   *Pipeline
	outputPath string
}

func NewService(p *Pipeline, outputPath string) *Service {
	return &Service{pipeline: p, outputPath: outputPath}
}

// HandleJob is the queue handler for transcription runs.
func (s *Service) HandleJob(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	opts, err := j.Options()
	if err != nil {
		return fmt.Errorf("decode run options: %w", err)
	}

	src := Source{}
	switch j.SourceType {
	case job.SourceUpload:
		src.Path = j.Source
	case job.SourceURL:
		src.URL = j.Source
	default:
		return fmt.Errorf("unknown source type: %s", j.SourceType)
	}

	log.Printf("[pipeline] run %s: source=%s model=%s device=%s language=%s task=%s",
		j.ID, j.SourceType, opts.Model, opts.Device, opts.Language, opts.Task)

	updateProgress(0.05)

	filePath, cleanup, err := s.pipeline.ResolveSource(ctx, src)
	if err != nil {
		return err
	}
	defer cleanup()

	// Probe failures are not fatal; the engine decodes the file itself.
	var mediaInfo *media.Info
	if info, err := media.Probe(filePath); err == nil {
		mediaInfo = info
		log.Printf("[pipeline] run %s: media duration=%.1fs audio=%s video=%s",
			j.ID, info.Duration, info.AudioCodec, info.VideoCodec)
	}

	updateProgress(0.2)

	result, err := s.pipeline.Transcribe(ctx, filePath, opts)
	if err != nil {
		return err
	}
	if result.Duration == 0 && mediaInfo != nil {
		result.Duration = mediaInfo.Duration
	}

	updateProgress(0.9)

	artifacts := RenderOutputs(result)

	outDir := filepath.Join(s.outputPath, j.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, TextArtifactName), []byte(artifacts.Text), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, SRTArtifactName), []byte(artifacts.SRT), 0644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}

	resultJSON, err := json.Marshal(job.Result{
		TextPath:     filepath.Join(j.ID, TextArtifactName),
		SRTPath:      filepath.Join(j.ID, SRTArtifactName),
		Preview:      truncateRunes(artifacts.Text, maxPreviewRunes),
		Language:     result.Language,
		Duration:     result.Duration,
		SegmentCount: len(result.Segments),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	j.Result = resultJSON

	log.Printf("[pipeline] run %s: %d segments, language=%s", j.ID, len(result.Segments), result.Language)
	updateProgress(1.0)
	return nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
