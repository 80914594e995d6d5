package transcribe

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
)

// ErrEngineDead marks failures where the engine process itself is gone
// (broken pipe, truncated output). Engines wrap it so callers can tell a
// dead process from a request-level failure; only dead engines need to be
// evicted from the cache. Check with errors.Is.
var ErrEngineDead = errors.New("engine process died")

// Config identifies one loaded engine instance. Runs that share a Config
// reuse the same engine instead of paying the model load cost again.
type Config struct {
	Model       ModelSize
	Device      Device
	ComputeType ComputeType
}

// Request holds the per-run recognition parameters.
type Request struct {
	FilePath string
	Language string // LanguageAuto means detect
	Task     Task
	BeamSize int
}

// StreamInfo is reported by the engine once the segment stream is exhausted.
type StreamInfo struct {
	Language string
	Duration float64
}

// Stream is a finite, non-restartable sequence of segments produced once per
// run. Next returns io.EOF after the final segment; Info is only meaningful
// after that.
type Stream interface {
	Next() (Segment, error)
	Info() StreamInfo
}

// Engine is a loaded, ready-to-run model instance. Engines are not
// reentrant; callers must serialize access (the Cache does this).
type Engine interface {
	Transcribe(ctx context.Context, req Request) (Stream, error)
	Close() error
}

// Loader constructs engines. Load failures (missing model, unsupported
// device/precision on this host) are returned verbatim.
type Loader interface {
	Load(ctx context.Context, cfg Config) (Engine, error)
}

// Collect drains a stream into an ordered Result.
func Collect(s Stream) (*Result, error) {
	res := &Result{}
	for {
		seg, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Segments = append(res.Segments, seg)
	}
	info := s.Info()
	res.Language = info.Language
	res.Duration = info.Duration
	return res, nil
}

// Cache keeps one engine per Config for the lifetime of the process. Access
// to a cached engine is exclusive between Acquire and the returned release
// func, since the underlying engines are single-threaded.
type Cache struct {
	mu      sync.Mutex
	loader  Loader
	entries map[Config]*cacheEntry
}

type cacheEntry struct {
	mu     sync.Mutex
	engine Engine
}

func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[Config]*cacheEntry),
	}
}

// Acquire returns the engine for cfg, loading it on first use. The release
// func must be called exactly once when the caller is done with the engine.
// Failed loads are not cached; the next Acquire retries.
func (c *Cache) Acquire(ctx context.Context, cfg Config) (Engine, func(), error) {
	c.mu.Lock()
	entry, ok := c.entries[cfg]
	if !ok {
		entry = &cacheEntry{}
		c.entries[cfg] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	if entry.engine == nil {
		log.Printf("[transcribe] loading engine model=%s device=%s compute_type=%s",
			cfg.Model, cfg.Device, cfg.ComputeType)
		engine, err := c.loader.Load(ctx, cfg)
		if err != nil {
			entry.mu.Unlock()
			return nil, nil, err
		}
		entry.engine = engine
	}
	engine := entry.engine
	return engine, entry.mu.Unlock, nil
}

// Close shuts down every cached engine. Used on server shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for cfg, entry := range c.entries {
		entry.mu.Lock()
		if entry.engine != nil {
			entry.engine.Close()
			entry.engine = nil
		}
		entry.mu.Unlock()
		delete(c.entries, cfg)
	}
}

// Evict drops the engine for cfg, closing it if loaded. Called when an engine
// process dies mid-run so the next run starts fresh.
func (c *Cache) Evict(cfg Config) {
	c.mu.Lock()
	entry, ok := c.entries[cfg]
	if ok {
		delete(c.entries, cfg)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	if entry.engine != nil {
		entry.engine.Close()
		entry.engine = nil
	}
	entry.mu.Unlock()
}
