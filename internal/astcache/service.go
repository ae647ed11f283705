// Package astcache implements the parse-tree cache and the cursor-based AST
// materializer behind the treescope tools: a bounded store of tree-sitter
// parse results with staleness detection and incremental reparse, and the
// conversion of native trees into stable-id, depth-bounded node graphs.
package astcache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/treescope/internal/language"
)

// DefaultMaxDepth bounds materialization when the caller does not specify a
// depth.
const DefaultMaxDepth = 5

// warmParallelism bounds concurrent parses during cache warming.
const warmParallelism = 4

// Options configures a Service.
type Options struct {
	MaxWeightBytes int64
	TTL            time.Duration
	DefaultDepth   int

	// SweepInterval is how often expired entries are proactively removed.
	// Zero disables the background sweeper; expiry still happens lazily.
	SweepInterval time.Duration
}

// Service is the cache facade: the single entry point the tool layer uses
// to obtain materialized ASTs and positional lookups. It owns the language
// registry, the parse executor, and the tree cache, and is constructed
// explicitly by the process entry point rather than living in package-level
// state.
type Service struct {
	registry     *language.Registry
	executor     *Executor
	cache        *TreeCache
	defaultDepth int
	logger       *slog.Logger
	stopSweep    chan struct{}
}

// NewService wires a registry, executor, and cache into a facade.
func NewService(registry *language.Registry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultDepth <= 0 {
		opts.DefaultDepth = DefaultMaxDepth
	}

	executor := NewExecutor(registry, logger)
	s := &Service{
		registry:     registry,
		executor:     executor,
		cache:        NewTreeCache(executor, opts.MaxWeightBytes, opts.TTL, logger),
		defaultDepth: opts.DefaultDepth,
		logger:       logger,
		stopSweep:    make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go s.sweepLoop(opts.SweepInterval)
	}
	return s
}

func (s *Service) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cache.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// Close stops the sweeper, drops all cached trees, and releases parser
// instances.
func (s *Service) Close() {
	close(s.stopSweep)
	s.cache.Clear()
	s.executor.Close()
}

// ASTOptions bounds a GetAST call. A zero MaxDepth selects the configured
// default.
type ASTOptions struct {
	MaxDepth    int
	IncludeText bool
}

// GetAST returns the materialized AST for a source buffer, parsing only when
// the cached tree is missing or stale. Edits, when supplied by a caller that
// knows the precise change, drive an incremental reparse.
func (s *Service) GetAST(ctx context.Context, key Key, source []byte, opts ASTOptions, edits []Edit) (*MaterializedAST, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = s.defaultDepth
	}

	res, err := s.cache.GetOrParse(ctx, key, source, edits)
	if err != nil {
		return nil, err
	}
	defer res.Release()

	return Materialize(res, MaterializeOptions{MaxDepth: opts.MaxDepth, IncludeText: opts.IncludeText}, s.logger)
}

// GetNodeAt returns the deepest node at a zero-based row/column, or nil when
// the point lies outside the file.
func (s *Service) GetNodeAt(ctx context.Context, key Key, source []byte, row, column uint, edits []Edit) (*NodeRecord, error) {
	res, err := s.cache.GetOrParse(ctx, key, source, edits)
	if err != nil {
		return nil, err
	}
	defer res.Release()

	return FindNodeAt(res, row, column, s.logger), nil
}

// Warm parses a batch of sources concurrently to pre-populate the cache.
// Sources whose language cannot be detected are skipped. Returns the number
// of files now cached.
func (s *Service) Warm(ctx context.Context, project string, sources map[string][]byte) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmParallelism)

	warmed := make(chan struct{}, len(sources))
	for path, source := range sources {
		lang, ok := s.registry.ForFile(path)
		if !ok {
			continue
		}
		key := Key{Project: project, Path: path, Language: lang}
		src := source
		g.Go(func() error {
			res, err := s.cache.GetOrParse(ctx, key, src, nil)
			if err != nil {
				return err
			}
			res.Release()
			warmed <- struct{}{}
			return nil
		})
	}

	err := g.Wait()
	close(warmed)
	count := len(warmed)
	if err != nil {
		return count, err
	}
	return count, nil
}

// Registry exposes the language registry for collaborators that need
// extension detection.
func (s *Service) Registry() *language.Registry { return s.registry }

// Invalidate removes a single cached entry.
func (s *Service) Invalidate(key Key) { s.cache.Invalidate(key) }

// InvalidatePath removes the cached entries for a project-relative path in
// every language.
func (s *Service) InvalidatePath(project, path string) { s.cache.InvalidatePath(project, path) }

// InvalidateProject removes every cached entry under a project.
func (s *Service) InvalidateProject(project string) { s.cache.InvalidateProject(project) }

// Clear empties the cache.
func (s *Service) Clear() { s.cache.Clear() }

// Stats returns cache counters.
func (s *Service) Stats() Stats { return s.cache.StatsSnapshot() }

// Configure adjusts cache behavior at runtime.
func (s *Service) Configure(enabled bool, maxWeightBytes int64, ttl time.Duration) {
	s.cache.SetEnabled(enabled)
	s.cache.SetLimits(maxWeightBytes, ttl)
}
