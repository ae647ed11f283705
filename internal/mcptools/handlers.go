package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/treescope/internal/astcache"
	"github.com/dusk-indust/treescope/internal/project"
	"github.com/dusk-indust/treescope/internal/watch"
)

// TreeService holds the AST cache facade and project registry used by the
// MCP tool handlers.
type TreeService struct {
	ast      *astcache.Service
	projects *project.Registry
	logger   *slog.Logger

	// watchEnabled controls whether registering a project also starts a
	// filesystem watcher that invalidates its cache entries on change.
	watchEnabled bool
	excludedDirs []string

	mu       sync.Mutex
	watchers map[string]*watch.Watcher

	settingsMu sync.Mutex
	settings   ConfigureOutput
}

// Settings are the cache knobs the configure tool can adjust at runtime.
type Settings struct {
	CacheEnabled bool
	MaxSizeMB    int
	TTLSeconds   int
}

// NewTreeService creates a TreeService. excludedDirs is passed to watchers
// so they skip the same directories the project layer refuses to read.
func NewTreeService(ast *astcache.Service, projects *project.Registry, initial Settings, watchEnabled bool, excludedDirs []string, logger *slog.Logger) *TreeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeService{
		ast:          ast,
		projects:     projects,
		logger:       logger,
		watchEnabled: watchEnabled,
		excludedDirs: excludedDirs,
		watchers:     make(map[string]*watch.Watcher),
		settings: ConfigureOutput{
			CacheEnabled: initial.CacheEnabled,
			MaxSizeMB:    initial.MaxSizeMB,
			TTLSeconds:   initial.TTLSeconds,
		},
	}
}

func (s *TreeService) currentSettings() ConfigureOutput {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// Close stops all project watchers and the AST service.
func (s *TreeService) Close() {
	s.mu.Lock()
	for name, w := range s.watchers {
		_ = w.Close()
		delete(s.watchers, name)
	}
	s.mu.Unlock()
	s.ast.Close()
}

// resolveSource loads a file's bytes and determines its language.
func (s *TreeService) resolveSource(projectName, relPath string) (astcache.Key, []byte, error) {
	p, err := s.projects.Get(projectName)
	if err != nil {
		return astcache.Key{}, nil, err
	}
	source, err := p.ReadSource(relPath)
	if err != nil {
		return astcache.Key{}, nil, err
	}
	lang, ok := s.ast.Registry().ForFile(relPath)
	if !ok {
		return astcache.Key{}, nil, fmt.Errorf("no grammar registered for %s", relPath)
	}
	return astcache.Key{Project: projectName, Path: relPath, Language: lang}, source, nil
}

// RegisterProject registers a project root, scans its languages, and starts
// a cache-invalidating watcher when watching is enabled.
func (s *TreeService) RegisterProject(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RegisterProjectInput,
) (*mcp.CallToolResult, RegisterProjectOutput, error) {
	if input.Path == "" {
		return nil, RegisterProjectOutput{}, fmt.Errorf("path is required")
	}

	p, err := s.projects.Register(input.Name, input.Path, input.Description)
	if err != nil {
		return nil, RegisterProjectOutput{}, err
	}

	langs, err := p.Scan(s.ast.Registry(), true)
	if err != nil {
		s.logger.Warn("language scan failed", "project", p.Name, "error", err)
	}

	if s.watchEnabled {
		if err := s.startWatcher(p); err != nil {
			s.logger.Warn("file watcher unavailable, cache falls back to staleness checks",
				"project", p.Name, "error", err)
		}
	}

	return nil, RegisterProjectOutput{Project: ProjectInfo{
		Name:        p.Name,
		Root:        p.Root,
		Description: p.Description,
		Languages:   langs,
	}}, nil
}

func (s *TreeService) startWatcher(p *project.Project) error {
	w, err := watch.New(p.Root, s.excludedDirs, s.logger)
	if err != nil {
		return err
	}
	name := p.Name
	if err := w.Start(func(relPath string) {
		s.ast.InvalidatePath(name, relPath)
	}); err != nil {
		_ = w.Close()
		return err
	}

	s.mu.Lock()
	s.watchers[name] = w
	s.mu.Unlock()
	return nil
}

// ListProjects returns all registered projects.
func (s *TreeService) ListProjects(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListProjectsInput,
) (*mcp.CallToolResult, ListProjectsOutput, error) {
	var out ListProjectsOutput
	for _, p := range s.projects.List() {
		out.Projects = append(out.Projects, ProjectInfo{
			Name:        p.Name,
			Root:        p.Root,
			Description: p.Description,
			Languages:   p.Languages(),
		})
	}
	return nil, out, nil
}

// RemoveProject unregisters a project, stops its watcher, and drops its
// cache entries.
func (s *TreeService) RemoveProject(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RemoveProjectInput,
) (*mcp.CallToolResult, RemoveProjectOutput, error) {
	if err := s.projects.Remove(input.Name); err != nil {
		return nil, RemoveProjectOutput{}, err
	}

	s.mu.Lock()
	if w, ok := s.watchers[input.Name]; ok {
		_ = w.Close()
		delete(s.watchers, input.Name)
	}
	s.mu.Unlock()

	s.ast.InvalidateProject(input.Name)
	return nil, RemoveProjectOutput{Removed: true}, nil
}

// GetAST returns the materialized AST for a file.
func (s *TreeService) GetAST(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetASTInput,
) (*mcp.CallToolResult, GetASTOutput, error) {
	key, source, err := s.resolveSource(input.Project, input.Path)
	if err != nil {
		return nil, GetASTOutput{}, err
	}

	ast, err := s.ast.GetAST(ctx, key, source, astcache.ASTOptions{
		MaxDepth:    input.MaxDepth,
		IncludeText: input.IncludeText,
	}, toEdits(input.Edits))
	if err != nil {
		return nil, GetASTOutput{}, err
	}
	return nil, GetASTOutput{Language: key.Language, AST: ast}, nil
}

// GetNodeAtPosition returns the deepest node at a zero-based position.
func (s *TreeService) GetNodeAtPosition(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetNodeAtPositionInput,
) (*mcp.CallToolResult, GetNodeAtPositionOutput, error) {
	key, source, err := s.resolveSource(input.Project, input.Path)
	if err != nil {
		return nil, GetNodeAtPositionOutput{}, err
	}

	node, err := s.ast.GetNodeAt(ctx, key, source, input.Row, input.Column, toEdits(input.Edits))
	if err != nil {
		return nil, GetNodeAtPositionOutput{}, err
	}
	return nil, GetNodeAtPositionOutput{Found: node != nil, Node: node}, nil
}

// GetFile returns a file's text content, optionally truncated by line count.
func (s *TreeService) GetFile(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetFileInput,
) (*mcp.CallToolResult, GetFileOutput, error) {
	p, err := s.projects.Get(input.Project)
	if err != nil {
		return nil, GetFileOutput{}, err
	}
	source, err := p.ReadSource(input.Path)
	if err != nil {
		return nil, GetFileOutput{}, err
	}

	content := string(source)
	truncated := false
	if input.MaxLines > 0 {
		lines := strings.SplitAfterN(content, "\n", input.MaxLines+1)
		if len(lines) > input.MaxLines {
			content = strings.Join(lines[:input.MaxLines], "")
			truncated = true
		}
	}
	return nil, GetFileOutput{Content: content, Truncated: truncated}, nil
}

// ListFiles lists project files, optionally filtered by extension.
func (s *TreeService) ListFiles(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListFilesInput,
) (*mcp.CallToolResult, ListFilesOutput, error) {
	p, err := s.projects.Get(input.Project)
	if err != nil {
		return nil, ListFilesOutput{}, err
	}
	files, err := p.ListFiles(input.Extension, input.Limit)
	if err != nil {
		return nil, ListFilesOutput{}, err
	}
	return nil, ListFilesOutput{Files: files}, nil
}

// ListLanguages lists the available grammars and their extensions.
func (s *TreeService) ListLanguages(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListLanguagesInput,
) (*mcp.CallToolResult, ListLanguagesOutput, error) {
	var out ListLanguagesOutput
	registry := s.ast.Registry()
	for _, name := range registry.Names() {
		out.Languages = append(out.Languages, LanguageInfo{
			Name:       name,
			Extensions: registry.Extensions(name),
		})
	}
	return nil, out, nil
}

// InvalidateCache drops cache entries for a file, a project, or everything.
func (s *TreeService) InvalidateCache(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input InvalidateCacheInput,
) (*mcp.CallToolResult, InvalidateCacheOutput, error) {
	switch {
	case input.Project != "" && input.Path != "":
		s.ast.InvalidatePath(input.Project, input.Path)
		return nil, InvalidateCacheOutput{Scope: "file"}, nil
	case input.Project != "":
		s.ast.InvalidateProject(input.Project)
		return nil, InvalidateCacheOutput{Scope: "project"}, nil
	default:
		s.ast.Clear()
		return nil, InvalidateCacheOutput{Scope: "all"}, nil
	}
}

// CacheStats returns cache counters.
func (s *TreeService) CacheStats(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ CacheStatsInput,
) (*mcp.CallToolResult, CacheStatsOutput, error) {
	return nil, CacheStatsOutput{Stats: s.ast.Stats()}, nil
}

// Configure adjusts cache behavior at runtime. Omitted fields keep their
// current values.
func (s *TreeService) Configure(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ConfigureInput,
) (*mcp.CallToolResult, ConfigureOutput, error) {
	cur := s.currentSettings()
	if input.CacheEnabled != nil {
		cur.CacheEnabled = *input.CacheEnabled
	}
	if input.MaxSizeMB != nil {
		cur.MaxSizeMB = *input.MaxSizeMB
	}
	if input.TTLSeconds != nil {
		cur.TTLSeconds = *input.TTLSeconds
	}

	s.ast.Configure(cur.CacheEnabled, int64(cur.MaxSizeMB)*1024*1024, time.Duration(cur.TTLSeconds)*time.Second)
	s.settingsMu.Lock()
	s.settings = cur
	s.settingsMu.Unlock()
	return nil, cur, nil
}
