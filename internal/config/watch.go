package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ProfileWatcher holds the current admission options and reloads them when
// the profile file changes. A profile that fails to parse keeps the previous
// options.
type ProfileWatcher struct {
	mu       sync.RWMutex
	path     string
	current  admission.Options
	debounce time.Duration
	logger   zerolog.Logger

	listenMu  sync.Mutex
	listeners []func(admission.Options)
}

// NewProfileWatcher loads the profile at path.
func NewProfileWatcher(path string) (*ProfileWatcher, error) {
	w := &ProfileWatcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   log.WithComponent("config"),
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Options returns a copy of the current options.
func (w *ProfileWatcher) Options() admission.Options {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}

// OnReload registers fn to run after every successful reload.
func (w *ProfileWatcher) OnReload(fn func(admission.Options)) {
	w.listenMu.Lock()
	defer w.listenMu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Reload re-reads the profile file.
func (w *ProfileWatcher) Reload() error {
	p, err := LoadProfile(w.path)
	if err == nil {
		var opts admission.Options
		opts, err = p.Options()
		if err == nil {
			w.mu.Lock()
			w.current = opts
			w.mu.Unlock()
		}
	}
	metrics.RecordProfileReload(err == nil)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("admission profile reload failed")
		return err
	}

	w.logger.Info().
		Str("path", w.path).
		Int("mime_types", len(w.Options().MimeTypes)).
		Msg("admission profile loaded")

	w.listenMu.Lock()
	listeners := append([]func(admission.Options){}, w.listeners...)
	w.listenMu.Unlock()
	for _, fn := range listeners {
		fn(w.Options())
	}
	return nil
}

// Watch reloads the profile on every change until ctx ends. The directory is
// watched so editors that replace the file are picked up.
func (w *ProfileWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch profile directory: %w", err)
	}

	go w.watchLoop(ctx, watcher)
	return nil
}

func (w *ProfileWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				_ = w.Reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("profile watcher error")
		}
	}
}
