package media

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileEventType classifies a change observed in a watched directory.
type FileEventType string

const (
	FileCreated  FileEventType = "created"
	FileModified FileEventType = "modified"
	FileRemoved  FileEventType = "removed"
)

// FileEvent is one media file change in a watched directory.
type FileEvent struct {
	Type FileEventType `json:"type"`
	Path string        `json:"path"`
}

// Watcher observes a directory tree and reports changes to media files.
// Starting a new watch replaces any previous one.
type Watcher struct {
	onEvent func(FileEvent)
	logger  logrus.FieldLogger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
}

// NewWatcher returns a watcher that calls onEvent for every media file
// change. onEvent is invoked from the watch goroutine.
func NewWatcher(onEvent func(FileEvent), logger logrus.FieldLogger) *Watcher {
	return &Watcher{onEvent: onEvent, logger: logger}
}

// Start begins watching root and its subdirectories. An existing watch is
// stopped first.
func (w *Watcher) Start(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", root)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	if err := w.Stop(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	// fsnotify watches are not recursive, so register every subdirectory.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", root, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.path = root
	w.mu.Unlock()

	go w.run(fw)
	w.logger.WithField("path", root).Info("Watching directory for media changes")
	return nil
}

// Stop ends the current watch. Stopping an idle watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw := w.watcher
	w.watcher = nil
	w.path = ""
	w.mu.Unlock()

	if fw == nil {
		return nil
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("stop file watcher: %w", err)
	}
	return nil
}

// WatchedPath returns the directory currently being watched, or "" when idle.
func (w *Watcher) WatchedPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handle(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// New subdirectories join the watch; directories themselves
			// are not reported as events.
			if err := fw.Add(event.Name); err != nil {
				w.logger.WithError(err).WithField("path", event.Name).Warn("Failed to watch new subdirectory")
			}
			return
		}
	}
	if !IsSupported(event.Name) {
		return
	}

	var eventType FileEventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = FileCreated
	case event.Op.Has(fsnotify.Write):
		eventType = FileModified
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		eventType = FileRemoved
	default:
		return
	}
	w.onEvent(FileEvent{Type: eventType, Path: event.Name})
}
