//go:build cgo

package mcptools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/treescope/internal/astcache"
	"github.com/dusk-indust/treescope/internal/language"
	"github.com/dusk-indust/treescope/internal/project"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestTreeService builds a service over a temp project tree. Watching is
// off so tests exercise the handlers, not the filesystem notifier.
func newTestTreeService(t *testing.T) (*TreeService, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("def f():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "util.go"), []byte("package util\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("plain text\n"), 0o644))

	ast := astcache.NewService(language.NewRegistry(), astcache.Options{
		MaxWeightBytes: 1 << 20,
		TTL:            time.Minute,
	}, nil)
	projects := project.NewRegistry(project.Limits{
		MaxFileBytes: 1 << 20,
		ExcludedDirs: []string{"node_modules"},
	})

	svc := NewTreeService(ast, projects, Settings{
		CacheEnabled: true,
		MaxSizeMB:    1,
		TTLSeconds:   60,
	}, false, nil, nil)
	t.Cleanup(svc.Close)
	return svc, root
}

func registerDemo(t *testing.T, svc *TreeService, root string) {
	t.Helper()
	_, out, err := svc.RegisterProject(context.Background(), nil, RegisterProjectInput{Name: "demo", Path: root})
	require.NoError(t, err)
	require.Equal(t, "demo", out.Project.Name)
}

// ---------------------------------------------------------------------------
// Project management
// ---------------------------------------------------------------------------

func TestRegisterProject(t *testing.T) {
	svc, root := newTestTreeService(t)

	_, out, err := svc.RegisterProject(context.Background(), nil, RegisterProjectInput{Name: "demo", Path: root})
	require.NoError(t, err)

	assert.Equal(t, "demo", out.Project.Name)
	assert.Equal(t, 1, out.Project.Languages["python"])
	assert.Equal(t, 1, out.Project.Languages["go"])
}

func TestRegisterProject_Validation(t *testing.T) {
	svc, root := newTestTreeService(t)

	_, _, err := svc.RegisterProject(context.Background(), nil, RegisterProjectInput{})
	assert.Error(t, err)

	registerDemo(t, svc, root)
	_, _, err = svc.RegisterProject(context.Background(), nil, RegisterProjectInput{Name: "demo", Path: root})
	assert.ErrorIs(t, err, project.ErrProjectExists)
}

func TestListAndRemoveProject(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, listed, err := svc.ListProjects(context.Background(), nil, ListProjectsInput{})
	require.NoError(t, err)
	require.Len(t, listed.Projects, 1)
	assert.Equal(t, "demo", listed.Projects[0].Name)

	_, removed, err := svc.RemoveProject(context.Background(), nil, RemoveProjectInput{Name: "demo"})
	require.NoError(t, err)
	assert.True(t, removed.Removed)

	_, listed, err = svc.ListProjects(context.Background(), nil, ListProjectsInput{})
	require.NoError(t, err)
	assert.Empty(t, listed.Projects)
}

// ---------------------------------------------------------------------------
// AST tools
// ---------------------------------------------------------------------------

func TestGetAST(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, out, err := svc.GetAST(context.Background(), nil, GetASTInput{
		Project: "demo", Path: "main.py", MaxDepth: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, "python", out.Language)
	require.NotNil(t, out.AST)
	assert.Equal(t, "module", out.AST.Nodes[out.AST.RootID].Type)
}

func TestGetAST_Errors(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, _, err := svc.GetAST(context.Background(), nil, GetASTInput{Project: "nope", Path: "main.py"})
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, _, err = svc.GetAST(context.Background(), nil, GetASTInput{Project: "demo", Path: "missing.py"})
	assert.ErrorIs(t, err, project.ErrNotFound)

	_, _, err = svc.GetAST(context.Background(), nil, GetASTInput{Project: "demo", Path: "notes.txt"})
	assert.Error(t, err, "no grammar for plain text")
}

func TestGetAST_SecondCallHitsCache(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	in := GetASTInput{Project: "demo", Path: "main.py"}
	_, _, err := svc.GetAST(context.Background(), nil, in)
	require.NoError(t, err)
	_, _, err = svc.GetAST(context.Background(), nil, in)
	require.NoError(t, err)

	_, stats, err := svc.CacheStats(context.Background(), nil, CacheStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Stats.HitCount)
	assert.Equal(t, uint64(1), stats.Stats.MissCount)
}

func TestGetNodeAtPosition(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, out, err := svc.GetNodeAtPosition(context.Background(), nil, GetNodeAtPositionInput{
		Project: "demo", Path: "main.py", Row: 0, Column: 4,
	})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, "identifier", out.Node.Type)
	assert.Equal(t, "f", out.Node.Text)

	_, out, err = svc.GetNodeAtPosition(context.Background(), nil, GetNodeAtPositionInput{
		Project: "demo", Path: "main.py", Row: 99, Column: 0,
	})
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Nil(t, out.Node)
}

// ---------------------------------------------------------------------------
// File tools
// ---------------------------------------------------------------------------

func TestGetFile(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, out, err := svc.GetFile(context.Background(), nil, GetFileInput{Project: "demo", Path: "main.py"})
	require.NoError(t, err)
	assert.Equal(t, "def f():\n    pass\n", out.Content)
	assert.False(t, out.Truncated)

	_, out, err = svc.GetFile(context.Background(), nil, GetFileInput{Project: "demo", Path: "main.py", MaxLines: 1})
	require.NoError(t, err)
	assert.Equal(t, "def f():\n", out.Content)
	assert.True(t, out.Truncated)
}

func TestListFiles(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	_, out, err := svc.ListFiles(context.Background(), nil, ListFilesInput{Project: "demo", Extension: ".py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, out.Files)
}

func TestListLanguages(t *testing.T) {
	svc, _ := newTestTreeService(t)

	_, out, err := svc.ListLanguages(context.Background(), nil, ListLanguagesInput{})
	require.NoError(t, err)

	require.Len(t, out.Languages, 4)
	assert.Equal(t, "go", out.Languages[0].Name)
	assert.Equal(t, []string{".go"}, out.Languages[0].Extensions)
}

// ---------------------------------------------------------------------------
// Cache tools
// ---------------------------------------------------------------------------

func TestInvalidateCache_Scopes(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	warm := func() {
		_, _, err := svc.GetAST(context.Background(), nil, GetASTInput{Project: "demo", Path: "main.py"})
		require.NoError(t, err)
	}
	entryCount := func() int {
		_, stats, err := svc.CacheStats(context.Background(), nil, CacheStatsInput{})
		require.NoError(t, err)
		return stats.Stats.EntryCount
	}

	warm()
	_, out, err := svc.InvalidateCache(context.Background(), nil, InvalidateCacheInput{Project: "demo", Path: "main.py"})
	require.NoError(t, err)
	assert.Equal(t, "file", out.Scope)
	assert.Zero(t, entryCount())

	warm()
	_, out, err = svc.InvalidateCache(context.Background(), nil, InvalidateCacheInput{Project: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "project", out.Scope)
	assert.Zero(t, entryCount())

	warm()
	_, out, err = svc.InvalidateCache(context.Background(), nil, InvalidateCacheInput{})
	require.NoError(t, err)
	assert.Equal(t, "all", out.Scope)
	assert.Zero(t, entryCount())
}

func TestConfigure(t *testing.T) {
	svc, root := newTestTreeService(t)
	registerDemo(t, svc, root)

	disabled := false
	_, out, err := svc.Configure(context.Background(), nil, ConfigureInput{CacheEnabled: &disabled})
	require.NoError(t, err)

	// Omitted fields keep their startup values.
	assert.False(t, out.CacheEnabled)
	assert.Equal(t, 1, out.MaxSizeMB)
	assert.Equal(t, 60, out.TTLSeconds)

	_, _, err = svc.GetAST(context.Background(), nil, GetASTInput{Project: "demo", Path: "main.py"})
	require.NoError(t, err)
	_, stats, err := svc.CacheStats(context.Background(), nil, CacheStatsInput{})
	require.NoError(t, err)
	assert.Zero(t, stats.Stats.EntryCount, "disabled cache stores nothing")

	ttl := 120
	_, out, err = svc.Configure(context.Background(), nil, ConfigureInput{TTLSeconds: &ttl})
	require.NoError(t, err)
	assert.False(t, out.CacheEnabled, "earlier changes persist")
	assert.Equal(t, 120, out.TTLSeconds)
}
