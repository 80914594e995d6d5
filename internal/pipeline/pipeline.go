// Package pipeline runs one transcription from media source to output
// artifacts: resolve the source to a local file, transcribe it, render the
// plain-text and SRT outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/whisper-web/backend/internal/download"
	"github.com/whisper-web/backend/internal/subtitle"
	"github.com/whisper-web/backend/internal/transcribe"
)

// The three failure kinds a run can end with. All are terminal; nothing is
// retried automatically. Check with errors.Is.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrEngineInit        = errors.New("engine init failed")
	ErrTranscription     = errors.New("transcription failed")
)

// Source is a tagged union: exactly one of Path (local file) or URL (remote
// link) is set.
type Source struct {
	Path string
	URL  string
}

// Artifacts are the two rendered outputs of a successful run.
type Artifacts struct {
	Text string
	SRT  string
}

// RunResult bundles the materialized transcript with its rendered artifacts.
type RunResult struct {
	Result    *transcribe.Result
	Artifacts Artifacts
}

type Pipeline struct {
	engines *transcribe.Cache
	fetcher download.Fetcher
}

func New(engines *transcribe.Cache, fetcher download.Fetcher) *Pipeline {
	return &Pipeline{engines: engines, fetcher: fetcher}
}

// ResolveSource turns a Source into a readable local file path. Local paths
// are returned unchanged after an existence check; URLs are fetched to a
// temp file. The cleanup func removes any temp state and is safe to call
// unconditionally.
func (p *Pipeline) ResolveSource(ctx context.Context, src Source) (string, func(), error) {
	noop := func() {}

	switch {
	case src.Path != "" && src.URL != "":
		return "", noop, fmt.Errorf("%w: both file and url given", ErrSourceUnavailable)
	case src.Path != "":
		info, err := os.Stat(src.Path)
		if err != nil {
			return "", noop, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if info.IsDir() {
			return "", noop, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, src.Path)
		}
		if info.Size() == 0 {
			return "", noop, fmt.Errorf("%w: %s is empty", ErrSourceUnavailable, src.Path)
		}
		return src.Path, noop, nil
	case src.URL != "":
		path, cleanup, err := p.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			cleanup()
			return "", noop, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return path, cleanup, nil
	default:
		return "", noop, fmt.Errorf("%w: no file or url given", ErrSourceUnavailable)
	}
}

// Transcribe runs recognition on a local file. The engine for the run's
// (model, device, compute type) triple is loaded on first use and reused
// across runs; a load failure is ErrEngineInit, any failure after a
// successful load is ErrTranscription.
func (p *Pipeline) Transcribe(ctx context.Context, filePath string, opts transcribe.Options) (*transcribe.Result, error) {
	cfg := opts.Config()
	engine, release, err := p.engines.Acquire(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	stream, err := engine.Transcribe(ctx, transcribe.Request{
		FilePath: filePath,
		Language: opts.Language,
		Task:     opts.Task,
		BeamSize: opts.BeamSize,
	})
	if err != nil {
		release()
		p.evictIfDead(cfg, err)
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	result, err := transcribe.Collect(stream)
	release()
	if err != nil {
		p.evictIfDead(cfg, err)
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	if result.Language == "" {
		result.Language = opts.Language
	}
	return result, nil
}

// evictIfDead drops the cached engine when the failure means its process is
// gone. A request-level failure (corrupt media, decode error) leaves the
// resident model in place; a dead process must not be handed to the next run.
func (p *Pipeline) evictIfDead(cfg transcribe.Config, err error) {
	if errors.Is(err, transcribe.ErrEngineDead) {
		p.engines.Evict(cfg)
	}
}

// RenderOutputs produces the two artifacts from a transcript. Pure
// formatting: an empty transcript yields empty artifacts, never an error,
// and rendering the same result twice yields identical bytes.
func RenderOutputs(result *transcribe.Result) Artifacts {
	return Artifacts{
		Text: subtitle.RenderText(result.Segments),
		SRT:  subtitle.RenderSRT(result.Segments),
	}
}

// Run executes the full linear flow for one request. Temp files from URL
// fetches are removed before Run returns, on success and on failure alike.
func (p *Pipeline) Run(ctx context.Context, src Source, opts transcribe.Options) (*RunResult, error) {
	filePath, cleanup, err := p.ResolveSource(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := p.Transcribe(ctx, filePath, opts)
	if err != nil {
		return nil, err
	}

	return &RunResult{Result: result, Artifacts: RenderOutputs(result)}, nil
}
