// Package spool watches a drop directory for push payload files.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/logging"
)

const (
	payloadExt = ".json"

	// settleDelay is how long a file must go without events before it is
	// reported, so half-written payloads are not picked up
	settleDelay = 250 * time.Millisecond

	eventBuffer = 100
)

// PayloadEvent reports a payload file ready to be processed
type PayloadEvent struct {
	Path      string    // Full path to the payload file
	EventType string    // "CREATE" or "WRITE"
	Timestamp time.Time // When the file settled
}

// Watcher delivers payload files dropped into the spool directory
type Watcher interface {
	Start() error
	Stop() error
	Watch() (<-chan PayloadEvent, error)
	Pending() ([]string, error)
}

// watcher implements Watcher on top of fsnotify
type watcher struct {
	dir       string
	logger    logging.Logger
	fsWatcher *fsnotify.Watcher
	events    chan PayloadEvent
	done      chan struct{}
	mu        sync.Mutex
	started   bool
	pending   map[string]*time.Timer
}

// NewWatcher creates a watcher for cfg.Spool.Path
func NewWatcher(cfg *config.Config, logger logging.Logger) (Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Spool.Path == "" {
		return nil, fmt.Errorf("spool path not configured")
	}

	return &watcher{
		dir:     cfg.Spool.Path,
		logger:  logger.With("component", "spool_watcher", "dir", cfg.Spool.Path),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start creates the spool directory if needed and begins watching it
func (w *watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("watcher is already started")
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(w.dir); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("failed to add watch for %s: %w", w.dir, err)
	}

	w.fsWatcher = fsWatcher
	w.events = make(chan PayloadEvent, eventBuffer)
	w.done = make(chan struct{})
	w.started = true

	go w.processEvents(fsWatcher, w.done)

	w.logger.Info("watching spool directory")
	return nil
}

func (w *watcher) processEvents(fsWatcher *fsnotify.Watcher, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleEvent (re)arms the settle timer of a payload file
func (w *watcher) handleEvent(event fsnotify.Event) {
	if !isPayloadFile(event.Name) {
		return
	}
	if event.Op&fsnotify.Write == 0 && event.Op&fsnotify.Create == 0 {
		return
	}

	eventType := "WRITE"
	if event.Op&fsnotify.Create != 0 {
		eventType = "CREATE"
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(settleDelay)
		return
	}

	path := event.Name
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.emit(path, eventType)
	})
}

func (w *watcher) emit(path, eventType string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.pending, path)
	if !w.started {
		return
	}

	select {
	case w.events <- PayloadEvent{Path: path, EventType: eventType, Timestamp: time.Now()}:
		w.logger.Debug("payload file ready", "path", path, "event", eventType)
	default:
		w.logger.Warn("event channel full, dropping payload event", "path", path)
	}
}

// Pending lists payload files already in the spool directory, oldest name first
func (w *watcher) Pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isPayloadFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Stop stops watching and closes the event channel
func (w *watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}

	w.started = false
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	close(w.events)

	if err := w.fsWatcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}

	w.logger.Info("stopped watching spool directory")
	return nil
}

// Watch returns the channel for receiving payload events
func (w *watcher) Watch() (<-chan PayloadEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil, fmt.Errorf("watcher is not started")
	}

	return w.events, nil
}

func isPayloadFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, payloadExt) && !strings.HasPrefix(name, ".")
}
