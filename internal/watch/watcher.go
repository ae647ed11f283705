// Package watch invalidates cached parse trees when files change on disk.
// It recursively watches a project root, filters out non-source noise, and
// debounces the event bursts editors produce on save.
package watch

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval collapses rapid events for the same file.
const debounceInterval = 50 * time.Millisecond

// Watcher monitors a single project root.
type Watcher struct {
	fw       *fsnotify.Watcher
	root     string
	excluded []string
	logger   *slog.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New creates a watcher for the given root. Directories whose base name is
// in excluded (or starts with a dot) are not watched.
func New(root string, excluded []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:       fw,
		root:     root,
		excluded: excluded,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. onChange receives the project-relative path of each
// written, removed, or renamed file.
func (w *Watcher) Start(onChange func(relPath string)) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	lastEvent := make(map[string]time.Time)
	var mu sync.Mutex

	go func() {
		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				w.handle(event, lastEvent, &mu, onChange)
			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", "root", w.root, "error", err)
			case <-w.done:
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) handle(event fsnotify.Event, lastEvent map[string]time.Time, mu *sync.Mutex, onChange func(string)) {
	if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
		return
	}

	// New directories need watches of their own.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoreDir(info.Name()) {
				_ = w.addRecursive(event.Name)
			}
			return
		}
	}

	mu.Lock()
	now := time.Now()
	if last, ok := lastEvent[event.Name]; ok && now.Sub(last) < debounceInterval {
		mu.Unlock()
		return
	}
	lastEvent[event.Name] = now
	mu.Unlock()

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	onChange(rel)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignoreDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *Watcher) ignoreDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, excluded := range w.excluded {
		if name == excluded {
			return true
		}
	}
	return false
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	return w.fw.Close()
}
