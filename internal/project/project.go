// Package project tracks registered project roots and enforces the path,
// size, and traversal boundaries that source bytes must pass before they
// reach the parse layer.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/treescope/internal/language"
)

var (
	// ErrAccessDenied is returned for paths escaping the project root,
	// paths under excluded directories, and files over the size limit.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned for files that do not exist under the root.
	ErrNotFound = errors.New("file not found")
)

// scanInterval is how long a language census stays fresh before Scan walks
// the tree again.
const scanInterval = time.Minute

// Project is a registered source tree.
type Project struct {
	Name        string `json:"name"`
	Root        string `json:"root"`
	Description string `json:"description,omitempty"`

	limits Limits

	mu        sync.Mutex
	languages map[string]int
	lastScan  time.Time
}

// Limits are the security bounds applied to file access within a project.
type Limits struct {
	MaxFileBytes int64
	ExcludedDirs []string
}

func newProject(name, root, description string, limits Limits) *Project {
	return &Project{
		Name:        name,
		Root:        root,
		Description: description,
		limits:      limits,
		languages:   make(map[string]int),
	}
}

// ResolvePath validates a project-relative path and returns its absolute
// form. Traversal outside the root and excluded directories are rejected.
func (p *Project) ResolvePath(relPath string) (string, error) {
	abs := filepath.Join(p.Root, relPath)
	rel, err := filepath.Rel(p.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside project root", ErrAccessDenied, relPath)
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		for _, excluded := range p.limits.ExcludedDirs {
			if part == excluded {
				return "", fmt.Errorf("%w: %s is under excluded directory %s", ErrAccessDenied, relPath, excluded)
			}
		}
	}
	return abs, nil
}

// ReadSource validates relPath and returns the file's bytes. Files over the
// configured size limit are rejected before reading.
func (p *Project) ReadSource(relPath string) ([]byte, error) {
	abs, err := p.ResolvePath(relPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrAccessDenied, relPath)
	}
	if p.limits.MaxFileBytes > 0 && info.Size() > p.limits.MaxFileBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrAccessDenied, relPath, info.Size(), p.limits.MaxFileBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return data, nil
}

// ListFiles returns project-relative paths under the root, skipping hidden
// and excluded directories. An empty extension matches everything; limit 0
// means no limit.
func (p *Project) ListFiles(extension string, limit int) ([]string, error) {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	var files []string
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		name := d.Name()
		if d.IsDir() {
			if path != p.Root && (strings.HasPrefix(name, ".") || p.isExcluded(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if extension != "" && !strings.EqualFold(filepath.Ext(name), extension) {
			return nil
		}
		rel, relErr := filepath.Rel(p.Root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		if limit > 0 && len(files) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (p *Project) isExcluded(dir string) bool {
	for _, excluded := range p.limits.ExcludedDirs {
		if dir == excluded {
			return true
		}
	}
	return false
}

// Scan walks the project and counts files per detected language. Recent
// results are reused unless force is set.
func (p *Project) Scan(registry *language.Registry, force bool) (map[string]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force && time.Since(p.lastScan) < scanInterval && len(p.languages) > 0 {
		return copyCounts(p.languages), nil
	}

	counts := make(map[string]int)
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != p.Root && (strings.HasPrefix(name, ".") || p.isExcluded(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if lang, ok := registry.ForFile(name); ok {
			counts[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.languages = counts
	p.lastScan = time.Now()
	return copyCounts(counts), nil
}

// Languages returns the census from the most recent Scan.
func (p *Project) Languages() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyCounts(p.languages)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
