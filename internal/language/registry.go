// Package language resolves language identifiers to compiled tree-sitter
// grammars and maps file extensions to language names.
package language

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// ErrNotFound is returned when a language identifier cannot be resolved to a
// compiled grammar.
var ErrNotFound = errors.New("language not found")

// Registry maps language names to compiled grammar handles. The registry is
// immutable after construction, so it is safe for concurrent use without
// locking.
type Registry struct {
	languages  map[string]*tree_sitter.Language
	extensions map[string]string // extension (with dot) -> language name
}

// NewRegistry creates a Registry with the built-in grammars registered.
func NewRegistry() *Registry {
	r := &Registry{
		languages:  make(map[string]*tree_sitter.Language),
		extensions: make(map[string]string),
	}

	r.languages["go"] = tree_sitter.NewLanguage(tree_sitter_go.Language())
	r.languages["python"] = tree_sitter.NewLanguage(tree_sitter_python.Language())
	r.languages["rust"] = tree_sitter.NewLanguage(tree_sitter_rust.Language())
	r.languages["typescript"] = tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())

	r.addExt("go", ".go")
	r.addExt("python", ".py", ".pyi")
	r.addExt("rust", ".rs")
	r.addExt("typescript", ".ts", ".tsx", ".mts", ".cts")

	return r
}

func (r *Registry) addExt(lang string, exts ...string) {
	for _, ext := range exts {
		r.extensions[ext] = lang
	}
}

// Resolve returns the compiled grammar for a language name.
func (r *Registry) Resolve(name string) (*tree_sitter.Language, error) {
	lang, ok := r.languages[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return lang, nil
}

// ForFile returns the language name for a file path based on its extension.
// The boolean is false when the extension is not recognized.
func (r *Registry) ForFile(path string) (string, bool) {
	lang, ok := r.extensions[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Names returns the registered language names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.languages))
	for name := range r.languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the recognized file extensions for a language, sorted.
func (r *Registry) Extensions(lang string) []string {
	var exts []string
	for ext, name := range r.extensions {
		if name == lang {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}
