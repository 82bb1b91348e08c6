// Package watcher provides an optional polling watcher over the workspace,
// used when the editor never sends workspace/didChangeWatchedFiles. Changes
// are debounced into batches and handed to the event loop over a channel.
//
// Polling keeps the implementation identical across platforms; the debounce
// window absorbs editor save storms.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies a filesystem observation.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one observed change.
type Event struct {
	Type    EventType
	Path    string // workspace-relative, forward slashes
	AbsPath string
}

// Config controls the watcher.
type Config struct {
	Root         string
	Extensions   []string
	IgnoreDirs   []string
	PollInterval time.Duration
	Debounce     time.Duration
}

type fingerprint struct {
	mtime int64
	size  int64
}

// Watcher polls the workspace and emits debounced change batches.
type Watcher struct {
	config  Config
	logger  *slog.Logger
	batches chan []Event

	known map[string]fingerprint

	pending   []Event
	debouncer *time.Timer

	done chan struct{}
	mu   sync.Mutex
	wg   sync.WaitGroup
}

// New creates a watcher. Zero durations fall back to one-second polling
// with a 200ms debounce.
func New(config Config, logger *slog.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.Debounce <= 0 {
		config.Debounce = 200 * time.Millisecond
	}
	return &Watcher{
		config:  config,
		logger:  logger,
		batches: make(chan []Event, 4),
		known:   make(map[string]fingerprint),
		done:    make(chan struct{}),
	}
}

// Batches returns the channel debounced event batches arrive on.
func (w *Watcher) Batches() <-chan []Event {
	return w.batches
}

// Start begins polling. The first scan primes the fingerprint table without
// emitting events.
func (w *Watcher) Start() {
	w.scan(false)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.scan(true)
			case <-w.done:
				return
			}
		}
	}()

	w.logger.Info("workspace watcher started",
		"root", w.config.Root,
		"pollInterval", w.config.PollInterval.String(),
	)
}

// Stop halts polling and drops any pending batch.
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	if w.debouncer != nil {
		w.debouncer.Stop()
		w.debouncer = nil
	}
	w.pending = nil
	w.mu.Unlock()
}

// scan walks the workspace and diffs fingerprints against the previous
// pass.
func (w *Watcher) scan(emit bool) {
	seen := make(map[string]bool)
	var events []Event

	_ = filepath.Walk(w.config.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries, keep walking
		}
		if info.IsDir() {
			if w.ignored(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.watched(path) {
			return nil
		}
		rel, relErr := filepath.Rel(w.config.Root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		fp := fingerprint{mtime: info.ModTime().UnixNano(), size: info.Size()}
		prev, existed := w.known[rel]
		w.known[rel] = fp

		if !existed {
			events = append(events, Event{Type: EventCreate, Path: rel, AbsPath: path})
		} else if prev != fp {
			events = append(events, Event{Type: EventModify, Path: rel, AbsPath: path})
		}
		return nil
	})

	for rel := range w.known {
		if !seen[rel] {
			delete(w.known, rel)
			events = append(events, Event{
				Type:    EventDelete,
				Path:    rel,
				AbsPath: filepath.Join(w.config.Root, filepath.FromSlash(rel)),
			})
		}
	}

	if emit && len(events) > 0 {
		w.enqueue(events)
	}
}

// enqueue folds events into the pending batch and (re)arms the debounce
// timer.
func (w *Watcher) enqueue(events []Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, events...)
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.debouncer = time.AfterFunc(w.config.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.debouncer = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	select {
	case w.batches <- batch:
	case <-w.done:
	}
}

func (w *Watcher) ignored(dir string) bool {
	for _, ignored := range w.config.IgnoreDirs {
		if dir == ignored {
			return true
		}
	}
	return false
}

func (w *Watcher) watched(path string) bool {
	for _, ext := range w.config.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
