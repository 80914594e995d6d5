package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/whisper-web/backend/internal/transcribe"
)

type fakeStream struct {
	segments []transcribe.Segment
	info     transcribe.StreamInfo
	pos      int
	err      error
}

func (s *fakeStream) Next() (transcribe.Segment, error) {
	if s.pos >= len(s.segments) {
		if s.err != nil {
			return transcribe.Segment{}, s.err
		}
		return transcribe.Segment{}, io.EOF
	}
	seg := s.segments[s.pos]
	s.pos++
	return seg, nil
}

func (s *fakeStream) Info() transcribe.StreamInfo { return s.info }

type fakeEngine struct {
	segments  []transcribe.Segment
	language  string
	runErr    error
	streamErr error
}

func (e *fakeEngine) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Stream, error) {
	if e.runErr != nil {
		return nil, e.runErr
	}
	return &fakeStream{
		segments: e.segments,
		info:     transcribe.StreamInfo{Language: e.language},
		err:      e.streamErr,
	}, nil
}

func (e *fakeEngine) Close() error { return nil }

type fakeLoader struct {
	loads   int
	loadErr error
	engine  *fakeEngine
}

func (l *fakeLoader) Load(ctx context.Context, cfg transcribe.Config) (transcribe.Engine, error) {
	l.loads++
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	if l.engine == nil {
		l.engine = &fakeEngine{language: "en"}
	}
	return l.engine, nil
}

type fakeFetcher struct {
	path    string
	err     error
	cleaned bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (string, func(), error) {
	cleanup := func() { f.cleaned = true }
	if f.err != nil {
		return "", cleanup, f.err
	}
	return f.path, cleanup, nil
}

func newPipeline(loader *fakeLoader, fetcher *fakeFetcher) *Pipeline {
	return New(transcribe.NewCache(loader), fetcher)
}

func writeMediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveSourceLocalFile(t *testing.T) {
	p := newPipeline(&fakeLoader{}, &fakeFetcher{})
	path := writeMediaFile(t)

	got, cleanup, err := p.ResolveSource(context.Background(), Source{Path: path})
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	defer cleanup()
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	cleanup()
	if _, err := os.Stat(path); err != nil {
		t.Error("cleanup must not remove a caller-owned local file")
	}
}

func TestResolveSourceMissingFile(t *testing.T) {
	p := newPipeline(&fakeLoader{}, &fakeFetcher{})

	_, _, err := p.ResolveSource(context.Background(), Source{Path: "/does/not/exist.mp3"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestResolveSourceEmptyFile(t *testing.T) {
	p := newPipeline(&fakeLoader{}, &fakeFetcher{})
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := p.ResolveSource(context.Background(), Source{Path: path})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestResolveSourceDirectory(t *testing.T) {
	p := newPipeline(&fakeLoader{}, &fakeFetcher{})

	_, _, err := p.ResolveSource(context.Background(), Source{Path: t.TempDir()})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestResolveSourceNeitherOrBoth(t *testing.T) {
	p := newPipeline(&fakeLoader{}, &fakeFetcher{})

	_, _, err := p.ResolveSource(context.Background(), Source{})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("empty source: err = %v, want ErrSourceUnavailable", err)
	}

	_, _, err = p.ResolveSource(context.Background(), Source{Path: "a", URL: "b"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("both set: err = %v, want ErrSourceUnavailable", err)
	}
}

func TestResolveSourceFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("403 forbidden")}
	p := newPipeline(&fakeLoader{}, fetcher)

	_, _, err := p.ResolveSource(context.Background(), Source{URL: "https://example.com/v"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
	if !fetcher.cleaned {
		t.Error("fetch temp state must be cleaned up on failure")
	}
}

func TestTranscribeEngineInitFailure(t *testing.T) {
	loader := &fakeLoader{loadErr: errors.New("cuda driver missing")}
	p := newPipeline(loader, &fakeFetcher{})

	_, err := p.Transcribe(context.Background(), writeMediaFile(t), transcribe.DefaultOptions())
	if !errors.Is(err, ErrEngineInit) {
		t.Errorf("err = %v, want ErrEngineInit", err)
	}
	if errors.Is(err, ErrTranscription) {
		t.Error("a load failure must not read as a transcription failure")
	}
}

func TestTranscribeRunFailure(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{runErr: errors.New("decode error")}}
	p := newPipeline(loader, &fakeFetcher{})

	_, err := p.Transcribe(context.Background(), writeMediaFile(t), transcribe.DefaultOptions())
	if !errors.Is(err, ErrTranscription) {
		t.Errorf("err = %v, want ErrTranscription", err)
	}
	if errors.Is(err, ErrEngineInit) {
		t.Error("a run failure must not read as an init failure")
	}
}

func TestTranscribeStreamFailureEvictsEngine(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		segments:  []transcribe.Segment{{Start: 0, End: 1, Text: "partial"}},
		streamErr: fmt.Errorf("%w: broken pipe", transcribe.ErrEngineDead),
	}}
	p := newPipeline(loader, &fakeFetcher{})

	_, err := p.Transcribe(context.Background(), writeMediaFile(t), transcribe.DefaultOptions())
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}

	// The failed engine was evicted, so the next run loads a fresh one.
	loader.engine = &fakeEngine{language: "en"}
	if _, err := p.Transcribe(context.Background(), writeMediaFile(t), transcribe.DefaultOptions()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if loader.loads != 2 {
		t.Errorf("loads = %d, want 2", loader.loads)
	}
}

func TestTranscribeDeadEngineEvictedOnWriteFailure(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		runErr: fmt.Errorf("%w: write request: broken pipe", transcribe.ErrEngineDead),
	}}
	p := newPipeline(loader, &fakeFetcher{})
	path := writeMediaFile(t)

	// Every run must load a fresh engine; a wedged cache would keep handing
	// out the dead one and load exactly once.
	for i := 0; i < 3; i++ {
		loader.engine = &fakeEngine{
			runErr: fmt.Errorf("%w: write request: broken pipe", transcribe.ErrEngineDead),
		}
		_, err := p.Transcribe(context.Background(), path, transcribe.DefaultOptions())
		if !errors.Is(err, ErrTranscription) {
			t.Fatalf("run %d: err = %v, want ErrTranscription", i, err)
		}
	}
	if loader.loads != 3 {
		t.Errorf("loads = %d after 3 failing runs, want 3", loader.loads)
	}
}

func TestTranscribeRequestErrorKeepsEngine(t *testing.T) {
	// A request-level failure (alive helper reporting a corrupt file) must
	// not close the resident model.
	loader := &fakeLoader{engine: &fakeEngine{
		streamErr: errors.New("engine error: audio file is corrupt"),
	}}
	p := newPipeline(loader, &fakeFetcher{})
	path := writeMediaFile(t)

	_, err := p.Transcribe(context.Background(), path, transcribe.DefaultOptions())
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}

	loader.engine.streamErr = nil
	loader.engine.language = "en"
	if _, err := p.Transcribe(context.Background(), path, transcribe.DefaultOptions()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if loader.loads != 1 {
		t.Errorf("loads = %d, want 1: healthy engine was evicted", loader.loads)
	}
}

func TestTranscribeReusesEngineAcrossRuns(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		segments: []transcribe.Segment{{Start: 0, End: 1, Text: "hi"}},
		language: "en",
	}}
	p := newPipeline(loader, &fakeFetcher{})
	path := writeMediaFile(t)
	opts := transcribe.DefaultOptions()

	for i := 0; i < 2; i++ {
		if _, err := p.Transcribe(context.Background(), path, opts); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if loader.loads != 1 {
		t.Errorf("loads = %d, want 1 for same engine config", loader.loads)
	}
}

func TestTranscribeLanguageFallback(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		segments: []transcribe.Segment{{Text: "hallo"}},
	}}
	p := newPipeline(loader, &fakeFetcher{})

	opts := transcribe.DefaultOptions()
	opts.Language = "de"
	result, err := p.Transcribe(context.Background(), writeMediaFile(t), opts)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Language != "de" {
		t.Errorf("language = %q, want fallback to requested %q", result.Language, "de")
	}
}

func TestRenderOutputs(t *testing.T) {
	result := &transcribe.Result{Segments: []transcribe.Segment{
		{Start: 0.0, End: 1.5, Text: "hello"},
		{Start: 1.5, End: 3.0, Text: "world"},
	}}

	artifacts := RenderOutputs(result)
	if artifacts.Text != "hello world" {
		t.Errorf("Text = %q", artifacts.Text)
	}
	wantSRT := "1\n00:00:00,000 --> 00:00:01,500\nhello\n" +
		"\n" +
		"2\n00:00:01,500 --> 00:00:03,000\nworld\n"
	if artifacts.SRT != wantSRT {
		t.Errorf("SRT = %q, want %q", artifacts.SRT, wantSRT)
	}

	if again := RenderOutputs(result); again != artifacts {
		t.Error("rendering the same result twice must yield identical artifacts")
	}
}

func TestRenderOutputsEmpty(t *testing.T) {
	artifacts := RenderOutputs(&transcribe.Result{})
	if artifacts.Text != "" || artifacts.SRT != "" {
		t.Errorf("empty transcript should render empty artifacts, got %+v", artifacts)
	}
}

func TestRunEndToEnd(t *testing.T) {
	loader := &fakeLoader{engine: &fakeEngine{
		segments: []transcribe.Segment{
			{Start: 0, End: 1.5, Text: "hello"},
			{Start: 1.5, End: 3, Text: "world"},
		},
		language: "en",
	}}
	p := newPipeline(loader, &fakeFetcher{})

	run, err := p.Run(context.Background(), Source{Path: writeMediaFile(t)}, transcribe.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Result.Language != "en" {
		t.Errorf("language = %q", run.Result.Language)
	}
	if run.Artifacts.Text != "hello world" {
		t.Errorf("Text = %q", run.Artifacts.Text)
	}
}

func TestRunCleansUpFetchedFile(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "fetched.m4a")
	if err := os.WriteFile(tmp, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{path: tmp}
	loader := &fakeLoader{engine: &fakeEngine{
		segments: []transcribe.Segment{{Text: "ok"}},
		language: "en",
	}}
	p := newPipeline(loader, fetcher)

	if _, err := p.Run(context.Background(), Source{URL: "https://example.com/v"}, transcribe.DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !fetcher.cleaned {
		t.Error("fetch cleanup must run after a successful run")
	}
}
