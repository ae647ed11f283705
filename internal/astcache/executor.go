package astcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/treescope/internal/language"
)

// SourceIdentity fingerprints the bytes a tree was parsed from. Two
// identities are equal iff the underlying bytes are assumed unchanged.
type SourceIdentity struct {
	Size int
	Hash [sha256.Size]byte
}

// IdentityOf computes the identity of a source buffer.
func IdentityOf(source []byte) SourceIdentity {
	return SourceIdentity{Size: len(source), Hash: sha256.Sum256(source)}
}

// ParseResult owns a native tree, the source it was parsed from, and the
// metadata needed for staleness checks. Results are reference counted: the
// cache holds one reference, and every caller that receives a result from
// GetOrParse holds another until it calls Release. The native tree is closed
// when the last reference is released, so eviction cannot free memory out
// from under an in-progress traversal.
type ParseResult struct {
	Source     []byte
	Language   string
	Identity   SourceIdentity
	Generation uint64

	// ChangedRanges holds the byte ranges the engine reported as changed
	// during an incremental reparse. Empty for full parses. Informational
	// only; the full tree is always authoritative.
	ChangedRanges []ByteRange

	tree *tree_sitter.Tree
	refs atomic.Int32
}

// Root returns the native root node.
func (r *ParseResult) Root() *tree_sitter.Node {
	return r.tree.RootNode()
}

// Retain adds a reference.
func (r *ParseResult) Retain() {
	r.refs.Add(1)
}

// Release drops a reference, closing the native tree when none remain.
func (r *ParseResult) Release() {
	if r.refs.Add(-1) == 0 {
		r.tree.Close()
	}
}

// Executor produces ParseResults. Native parser instances are not safe for
// concurrent use, so the executor keeps one instance per language behind a
// mutex: parsing for a given language is serialized while different
// languages proceed in parallel.
type Executor struct {
	registry *language.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	parsers map[string]*pooledParser

	generation atomic.Uint64
}

type pooledParser struct {
	mu     sync.Mutex
	parser *tree_sitter.Parser
}

// NewExecutor creates an Executor resolving grammars from the given registry.
func NewExecutor(registry *language.Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		parsers:  make(map[string]*pooledParser),
	}
}

// Close releases every pooled parser instance.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, p := range e.parsers {
		p.mu.Lock()
		p.parser.Close()
		p.mu.Unlock()
		delete(e.parsers, name)
	}
}

// acquire returns the pooled parser for a language with its mutex held.
// The caller must invoke the returned func once the parser is idle again.
func (e *Executor) acquire(lang string) (*tree_sitter.Parser, func(), error) {
	handle, err := e.registry.Resolve(lang)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	p, ok := e.parsers[lang]
	if !ok {
		parser := tree_sitter.NewParser()
		if err := parser.SetLanguage(handle); err != nil {
			e.mu.Unlock()
			parser.Close()
			return nil, nil, fmt.Errorf("%w: set language %s: %v", ErrParseFailed, lang, err)
		}
		p = &pooledParser{parser: parser}
		e.parsers[lang] = p
	}
	e.mu.Unlock()

	p.mu.Lock()
	return p.parser, p.mu.Unlock, nil
}

// Parse parses a source buffer from scratch.
func (e *Executor) Parse(ctx context.Context, source []byte, lang string) (*ParseResult, error) {
	return e.run(ctx, source, lang, nil, nil)
}

// Reparse applies the edit list to the previous tree, then parses the new
// buffer with the edited tree as a hint so the engine can reuse unaffected
// subtrees. Inconsistent edits degrade to a full reparse with a warning;
// they never corrupt state and never surface as an error.
func (e *Executor) Reparse(ctx context.Context, prev *ParseResult, edits []Edit, newSource []byte) (*ParseResult, error) {
	for _, edit := range edits {
		if err := edit.validate(len(prev.Source), len(newSource)); err != nil {
			e.logger.Warn("edit inconsistent with previous tree, falling back to full reparse",
				"language", prev.Language, "error", err)
			return e.run(ctx, newSource, prev.Language, nil, nil)
		}
	}

	// Edit a copy so concurrent holders of the previous result keep a
	// consistent view of its node ranges.
	edited := prev.tree.Clone()
	defer edited.Close()
	for _, edit := range edits {
		input := edit.toInputEdit()
		edited.Edit(&input)
	}

	return e.run(ctx, newSource, prev.Language, edited, func(newTree *tree_sitter.Tree) []ByteRange {
		ranges := edited.ChangedRanges(newTree)
		out := make([]ByteRange, len(ranges))
		for i, r := range ranges {
			out[i] = ByteRange{
				StartByte:  r.StartByte,
				EndByte:    r.EndByte,
				StartPoint: fromSitter(r.StartPoint),
				EndPoint:   fromSitter(r.EndPoint),
			}
		}
		return out
	})
}

// run performs the actual parse. A parse that is underway always runs to
// completion; when the context expires first the eventual tree is discarded
// and ErrParseFailed is returned.
func (e *Executor) run(
	ctx context.Context,
	source []byte,
	lang string,
	oldTree *tree_sitter.Tree,
	changed func(*tree_sitter.Tree) []ByteRange,
) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	parser, release, err := e.acquire(lang)
	if err != nil {
		return nil, err
	}

	done := make(chan *tree_sitter.Tree, 1)
	go func() {
		tree := parser.Parse(source, oldTree)
		release()
		done <- tree
	}()

	var tree *tree_sitter.Tree
	select {
	case tree = <-done:
	case <-ctx.Done():
		go func() {
			if t := <-done; t != nil {
				t.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, ctx.Err())
	}

	if tree == nil {
		return nil, fmt.Errorf("%w: engine returned no tree for language %s", ErrParseFailed, lang)
	}

	res := &ParseResult{
		Source:     source,
		Language:   lang,
		Identity:   IdentityOf(source),
		Generation: e.generation.Add(1),
		tree:       tree,
	}
	res.refs.Store(1)
	if changed != nil {
		res.ChangedRanges = changed(tree)
	}
	return res, nil
}
