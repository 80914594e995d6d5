package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

//go:embed assets/faster_whisper.py
var helperFS embed.FS

const loadTimeout = 15 * time.Minute // first load may download model weights

// ProcessLoader starts one faster-whisper helper process per engine config.
// The helper keeps the model resident and serves transcription requests over
// stdin/stdout, one JSON object per line.
type ProcessLoader struct {
	Python string // python interpreter, e.g. "python3"

	scriptOnce sync.Once
	scriptPath string
	scriptErr  error
}

func NewProcessLoader(python string) *ProcessLoader {
	if python == "" {
		python = "python3"
	}
	return &ProcessLoader{Python: python}
}

type helperEvent struct {
	Event    string  `json:"event"` // ready, segment, done, error
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Message  string  `json:"message"`
}

// Load writes the embedded helper to a temp file, starts it with the model
// settings, and waits for the ready line. Load errors from faster-whisper
// (unsupported device, missing CUDA libs) are returned verbatim.
func (l *ProcessLoader) Load(ctx context.Context, cfg Config) (Engine, error) {
	scriptPath, err := l.helperScript()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(l.Python, scriptPath,
		"--model", string(cfg.Model),
		"--device", string(cfg.Device),
		"--compute-type", string(cfg.ComputeType),
	)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}

	e := &processEngine{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReader(stdout),
		stderr: &stderr,
	}

	if err := e.awaitReady(ctx); err != nil {
		e.Close()
		return nil, err
	}

	log.Printf("[transcribe] engine ready model=%s device=%s compute_type=%s",
		cfg.Model, cfg.Device, cfg.ComputeType)
	return e, nil
}

// helperScript writes the embedded helper into a private temp dir once per
// loader. A fixed world-readable path would be writable by other users.
func (l *ProcessLoader) helperScript() (string, error) {
	l.scriptOnce.Do(func() {
		script, err := helperFS.ReadFile("assets/faster_whisper.py")
		if err != nil {
			l.scriptErr = fmt.Errorf("read helper script: %w", err)
			return
		}
		dir, err := os.MkdirTemp("", "whisper-helper-")
		if err != nil {
			l.scriptErr = fmt.Errorf("create helper dir: %w", err)
			return
		}
		path := filepath.Join(dir, "faster_whisper.py")
		if err := os.WriteFile(path, script, 0o700); err != nil {
			l.scriptErr = fmt.Errorf("write helper script: %w", err)
			return
		}
		l.scriptPath = path
	})
	return l.scriptPath, l.scriptErr
}

// processEngine drives one resident helper process. Not safe for concurrent
// use; the engine cache serializes callers.
type processEngine struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  interface {
		Write([]byte) (int, error)
		Close() error
	}
	reader *bufio.Reader
	stderr *bytes.Buffer
	closed bool
}

func (e *processEngine) awaitReady(ctx context.Context) error {
	deadline := loadTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}

	type readResult struct {
		ev  helperEvent
		err error
	}
	ch := make(chan readResult, 1)
	go func() {
		ev, err := e.readEvent()
		ch <- readResult{ev, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("engine startup: %s: %w", e.stderrTail(), r.err)
		}
		switch r.ev.Event {
		case "ready":
			return nil
		case "error":
			return fmt.Errorf("engine load failed: %s", r.ev.Message)
		default:
			return fmt.Errorf("unexpected engine startup event %q", r.ev.Event)
		}
	case <-time.After(deadline):
		return fmt.Errorf("engine load timed out after %s", deadline)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type helperRequest struct {
	File     string `json:"file"`
	Language string `json:"language,omitempty"` // omitted for auto-detect
	Task     string `json:"task"`
	BeamSize int    `json:"beam_size"`
}

func (e *processEngine) Transcribe(ctx context.Context, req Request) (Stream, error) {
	if e.closed {
		return nil, fmt.Errorf("engine %s/%s is closed", e.cfg.Model, e.cfg.Device)
	}

	hreq := helperRequest{
		File:     req.FilePath,
		Task:     string(req.Task),
		BeamSize: req.BeamSize,
	}
	if req.Language != "" && req.Language != LanguageAuto {
		hreq.Language = req.Language
	}

	line, err := json.Marshal(hreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	line = append(line, '\n')
	if _, err := e.stdin.Write(line); err != nil {
		return nil, fmt.Errorf("%w: write request: %s: %v", ErrEngineDead, e.stderrTail(), err)
	}

	return &processStream{engine: e}, nil
}

func (e *processEngine) readEvent() (helperEvent, error) {
	raw, err := e.reader.ReadBytes('\n')
	if err != nil {
		return helperEvent{}, err
	}
	var ev helperEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return helperEvent{}, fmt.Errorf("malformed engine output %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return ev, nil
}

func (e *processEngine) stderrTail() string {
	s := strings.TrimSpace(e.stderr.String())
	const max = 2048
	if len(s) > max {
		s = s[len(s)-max:]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}

func (e *processEngine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	return e.cmd.Wait()
}

// processStream reads segment events until the helper reports done or error.
type processStream struct {
	engine *processEngine
	info   StreamInfo
	done   bool
}

func (s *processStream) Next() (Segment, error) {
	if s.done {
		return Segment{}, io.EOF
	}
	ev, err := s.engine.readEvent()
	if err != nil {
		// Helper died mid-run; surface stderr for the decode error.
		return Segment{}, fmt.Errorf("%w: %s: %v", ErrEngineDead, s.engine.stderrTail(), err)
	}
	switch ev.Event {
	case "segment":
		return Segment{Start: ev.Start, End: ev.End, Text: strings.TrimSpace(ev.Text)}, nil
	case "done":
		s.done = true
		s.info = StreamInfo{Language: ev.Language, Duration: ev.Duration}
		return Segment{}, io.EOF
	case "error":
		s.done = true
		return Segment{}, fmt.Errorf("engine error: %s", ev.Message)
	default:
		return Segment{}, fmt.Errorf("%w: unexpected engine event %q", ErrEngineDead, ev.Event)
	}
}

func (s *processStream) Info() StreamInfo {
	return s.info
}
