// Package watcher reports changes to a single file, such as the settings
// file or the SQLite database, so the server can restart cleanly.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls onChange when one of the watched operations happens to the
// target. It watches the parent directory since fsnotify cannot watch
// non-existent files and editors often replace files by rename.
type Watcher struct {
	ctx        context.Context
	onChange   func(fsnotify.Op)
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
	timer      *time.Timer
	targetPath string
	parentPath string
	debounce   time.Duration
	ops        fsnotify.Op
	pending    fsnotify.Op
	mu         sync.Mutex
	running    bool
}

// New creates a Watcher for targetPath that reacts to ops, for example
// fsnotify.Write|fsnotify.Create for a settings file or fsnotify.Remove for a
// database file.
func New(targetPath string, ops fsnotify.Op, onChange func(fsnotify.Op)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	target := filepath.Clean(targetPath)

	return &Watcher{
		targetPath: target,
		parentPath: filepath.Dir(target),
		ops:        ops,
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   DefaultDebounce,
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - the parent may be created later
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher. Pending callbacks are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	eventPath := filepath.Clean(event.Name)

	switch {
	case eventPath == w.parentPath && event.Op.Has(fsnotify.Remove):
		// Losing the directory removes the target too.
		log.Info().Str("path", w.parentPath).Msg("Parent directory deleted")
		w.schedule(fsnotify.Remove)

	case eventPath == w.parentPath && event.Op.Has(fsnotify.Create):
		log.Info().Str("path", w.parentPath).Msg("Parent directory recreated, re-establishing watch")
		_ = w.addWatch()

	case eventPath == w.targetPath:
		w.schedule(event.Op)
	}
}

// schedule records op and (re)arms the debounce timer if op is watched.
func (w *Watcher) schedule(op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A deleted target that reappears before the timer fires is not gone.
	if op.Has(fsnotify.Create) && w.pending == fsnotify.Remove && !w.ops.Has(fsnotify.Create) {
		log.Info().Str("path", w.targetPath).Msg("Target recreated, cancelling deletion callback")
		w.pending = 0
		if w.timer != nil {
			w.timer.Stop()
		}
		return
	}

	matched := op & w.ops
	if matched == 0 || !w.running {
		return
	}
	w.pending |= matched

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	op := w.pending
	w.pending = 0
	running := w.running
	w.mu.Unlock()

	if op == 0 || !running {
		return
	}

	log.Info().Str("path", w.targetPath).Str("op", op.String()).Msg("Watched file changed")
	if w.onChange != nil {
		w.onChange(op)
	}

	if op.Has(fsnotify.Remove) {
		// The parent may come back shortly after being removed.
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := w.addWatch(); err != nil {
				log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch after deletion")
			}
		}()
	}
}
