package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var (
	// ErrProjectNotFound is returned when no project with the given name is
	// registered.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectExists is returned when registering a name already in use.
	ErrProjectExists = errors.New("project already registered")
)

// Registry is a concurrency-safe store of registered projects.
type Registry struct {
	limits Limits

	mu       sync.RWMutex
	projects map[string]*Project
}

// NewRegistry creates an empty Registry applying the given limits to every
// project it registers.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits:   limits,
		projects: make(map[string]*Project),
	}
}

// Register validates root and adds a project. An empty name defaults to the
// base name of the root directory.
func (r *Registry) Register(name, root, description string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrProjectExists, name)
	}
	p := newProject(name, abs, description, r.limits)
	r.projects[name] = p
	return p, nil
}

// Get returns the project with the given name.
func (r *Registry) Get(name string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	return p, nil
}

// Remove deletes the project with the given name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[name]; !ok {
		return fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}
	delete(r.projects, name)
	return nil
}

// List returns all registered projects sorted by name.
func (r *Registry) List() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
