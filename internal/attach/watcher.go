// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// STAGING WATCHER
// =============================================================================

// Watcher observes a staging directory and auto-stages supported files
// as they appear. Writes are debounced so a file still being copied in
// is not staged half-written.
type Watcher struct {
	manager  *Manager
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// OnStaged is called after a file is auto-staged. May be nil.
	OnStaged func(*Staged)
	// OnError is called for staging failures. May be nil.
	OnError func(path string, err error)
}

// NewWatcher creates a watcher over dir feeding manager.
func NewWatcher(manager *Manager, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		manager:  manager,
		dir:      dir,
		debounce: debounce,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts observing the staging directory.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.processEvents()
	go w.processPending()
	return nil
}

// processEvents collects create and write events into the pending set.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, err := KindForFile(event.Name); err != nil {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// processPending stages files once they have been quiet for the
// debounce interval.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var ready []string
			for path, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					ready = append(ready, path)
					delete(w.pending, path)
				}
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.stage(path)
			}
		}
	}
}

func (w *Watcher) stage(path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	s, err := w.manager.Stage(path)
	if err != nil {
		if !errors.Is(err, ErrAlreadyStaged) && w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}
	if w.OnStaged != nil {
		w.OnStaged(s)
	}
}

// Close stops the watcher and releases its resources. Staged files are
// untouched.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
