package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

const defaultDebounce = 250 * time.Millisecond

// Store holds the current model for long-running processes. Readers get an
// immutable *tokenizer.Model and keep it for as long as they need; a reload
// swaps the pointer without disturbing them.
type Store struct {
	artifacts Artifacts
	logger    *slog.Logger
	debounce  time.Duration

	current atomic.Pointer[tokenizer.Model]
	mu      sync.Mutex // serializes reloads
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for reload events.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithDebounce sets how long Watch waits for file events to settle.
func WithDebounce(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

func NewStore(a Artifacts, opts ...StoreOption) *Store {
	s := &Store{
		artifacts: a,
		logger:    slog.Default(),
		debounce:  defaultDebounce,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Artifacts returns the paths the store reads from.
func (s *Store) Artifacts() Artifacts { return s.artifacts }

// Model returns the current model, or nil if none has been loaded.
func (s *Store) Model() *tokenizer.Model { return s.current.Load() }

// Load reads the artifacts if no model is held yet and returns the current
// model.
func (s *Store) Load(ctx context.Context) (*tokenizer.Model, error) {
	if m := s.current.Load(); m != nil {
		return m, nil
	}
	return s.Reload(ctx)
}

// Reload re-reads both artifacts and swaps in the result. On error the
// previous model stays current.
func (s *Store) Reload(ctx context.Context) (*tokenizer.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := s.artifacts.Load()
	if err != nil {
		s.logger.ErrorContext(ctx, "model reload failed",
			slog.String("merges_path", s.artifacts.MergesPath),
			slog.String("vocab_path", s.artifacts.VocabPath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("reload model: %w", err)
	}

	s.current.Store(m)

	st := m.Stats()
	level := slog.LevelInfo
	if !st.Complete {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "model loaded",
		slog.Int("merges", st.Merges),
		slog.Int("vocab_size", st.VocabSize),
		slog.Int("skipped_lines", st.SkippedLines),
		slog.Bool("complete", st.Complete),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return m, nil
}

// Watch reloads the model whenever either artifact is written, created,
// renamed or removed. Bursts of events within the debounce window cause a
// single reload. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watching directories survives editors that replace files by rename.
	for _, dir := range s.artifacts.Dirs() {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	targets := map[string]bool{}
	for _, p := range []string{s.artifacts.MergesPath, s.artifacts.VocabPath} {
		if p != "" {
			targets[filepath.Clean(p)] = true
		}
	}

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			s.logger.DebugContext(ctx, "artifact changed",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()),
			)
			timer.Reset(s.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			// Errors are logged by Reload and the previous model is kept.
			_, _ = s.Reload(ctx)
		}
	}
}
