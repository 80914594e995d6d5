package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/whisper-web/backend/internal/job"
	"github.com/whisper-web/backend/internal/transcribe"
)

func newUploadJob(t *testing.T, path string) *job.Job {
	t.Helper()
	params, err := json.Marshal(transcribe.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return &job.Job{
		ID:         "run-1",
		SourceType: job.SourceUpload,
		Source:     path,
		Params:     params,
	}
}

func TestHandleJobWritesArtifacts(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		segments: []transcribe.Segment{
			{Start: 0, End: 1.5, Text: "hello"},
			{Start: 1.5, End: 3, Text: "world"},
		},
		language: "en",
	}}
	outDir := t.TempDir()
	svc := NewService(newPipeline(loader, &fakeFetcher{}), outDir)

	j := newUploadJob(t, writeMediaFile(t))
	var lastProgress float64
	err := svc.HandleJob(context.Background(), j, func(p float64) { lastProgress = p })
	if err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
	if lastProgress != 1.0 {
		t.Errorf("final progress = %v", lastProgress)
	}

	var result job.Result
	if err := json.Unmarshal(j.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Language != "en" || result.SegmentCount != 2 {
		t.Errorf("result = %+v", result)
	}
	if result.Preview != "hello world" {
		t.Errorf("preview = %q", result.Preview)
	}

	text, err := os.ReadFile(filepath.Join(outDir, result.TextPath))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(text) != "hello world" {
		t.Errorf("transcript = %q", text)
	}

	srt, err := os.ReadFile(filepath.Join(outDir, result.SRTPath))
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	if len(srt) == 0 {
		t.Error("subtitles artifact is empty")
	}
}

func TestHandleJobBadOptions(t *testing.T) {
	svc := NewService(newPipeline(&fakeLoader{}, &fakeFetcher{}), t.TempDir())

	j := &job.Job{
		ID:         "run-2",
		SourceType: job.SourceUpload,
		Source:     "/tmp/x.mp3",
		Params:     json.RawMessage("{not json"),
	}
	if err := svc.HandleJob(context.Background(), j, func(float64) {}); err == nil {
		t.Error("expected error for undecodable options")
	}
}

func TestHandleJobUnknownSourceType(t *testing.T) {
	svc := NewService(newPipeline(&fakeLoader{}, &fakeFetcher{}), t.TempDir())

	j := newUploadJob(t, "/tmp/x.mp3")
	j.SourceType = "stream"
	if err := svc.HandleJob(context.Background(), j, func(float64) {}); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestHandleJobPropagatesPipelineErrors(t *testing.T) {
	svc := NewService(newPipeline(&fakeLoader{}, &fakeFetcher{}), t.TempDir())

	j := newUploadJob(t, "/does/not/exist.mp3")
	err := svc.HandleJob(context.Background(), j, func(float64) {})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if j.Result != nil {
		t.Error("failed run must not carry a result")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes short = %q", got)
	}
	got := truncateRunes("aaaaaaaaaa", 4)
	if got != "aaaa…" {
		t.Errorf("truncateRunes = %q", got)
	}
	// Multibyte text truncates on rune boundaries, never mid-character.
	got = truncateRunes("日本語のテキスト", 3)
	if got != "日本語…" {
		t.Errorf("truncateRunes multibyte = %q", got)
	}
}
