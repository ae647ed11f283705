//go:build cgo

package astcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/treescope/internal/language"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	svc := NewService(language.NewRegistry(), opts, nil)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_GetAST_DefaultDepth(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20, DefaultDepth: 2})

	ast, err := svc.GetAST(context.Background(), pyKey("main.py"), []byte("def f(x):\n    return x + 1\n"), ASTOptions{}, nil)
	require.NoError(t, err)

	// Depth 2 cuts off below function bodies; the frontier is marked.
	assert.LessOrEqual(t, ast.MaxDepth, 2)
	assert.Positive(t, ast.TruncatedCount)
}

func TestService_GetAST_ExplicitDepthOverridesDefault(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20, DefaultDepth: 1})

	ast, err := svc.GetAST(context.Background(), pyKey("main.py"), []byte(pythonSource), ASTOptions{MaxDepth: 100}, nil)
	require.NoError(t, err)
	assert.Zero(t, ast.TruncatedCount)
}

func TestService_GetAST_CachesAcrossCalls(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20})
	key := pyKey("main.py")

	_, err := svc.GetAST(context.Background(), key, []byte(pythonSource), ASTOptions{}, nil)
	require.NoError(t, err)
	_, err = svc.GetAST(context.Background(), key, []byte(pythonSource), ASTOptions{MaxDepth: 50}, nil)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.HitCount, "depth only affects materialization, not the cached tree")
	assert.Equal(t, uint64(1), stats.MissCount)
}

func TestService_GetNodeAt(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20})

	node, err := svc.GetNodeAt(context.Background(), pyKey("main.py"), []byte(pythonSource), 0, 4, nil)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "identifier", node.Type)

	missing, err := svc.GetNodeAt(context.Background(), pyKey("main.py"), []byte(pythonSource), 99, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_Warm(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20})

	sources := map[string][]byte{
		"a.py":       []byte(pythonSource),
		"b.py":       []byte("x = 1\n"),
		"notes.txt":  []byte("not source"),
		"main.go":    []byte("package main\n"),
		"unknown.xy": []byte("???"),
	}

	count, err := svc.Warm(context.Background(), "demo", sources)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "files without a grammar are skipped")
	assert.Equal(t, 3, svc.Stats().EntryCount)
}

func TestService_InvalidatePath(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20})
	key := pyKey("main.py")

	_, err := svc.GetAST(context.Background(), key, []byte(pythonSource), ASTOptions{}, nil)
	require.NoError(t, err)

	svc.InvalidatePath(key.Project, key.Path)
	assert.Zero(t, svc.Stats().EntryCount)
}

func TestService_ConfigureDisablesCaching(t *testing.T) {
	svc := newTestService(t, Options{MaxWeightBytes: 1 << 20})
	svc.Configure(false, 1<<20, 0)

	_, err := svc.GetAST(context.Background(), pyKey("main.py"), []byte(pythonSource), ASTOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, svc.Stats().EntryCount)
}

func TestService_SweeperRemovesExpiredEntries(t *testing.T) {
	svc := newTestService(t, Options{
		MaxWeightBytes: 1 << 20,
		TTL:            10 * time.Millisecond,
		SweepInterval:  10 * time.Millisecond,
	})

	_, err := svc.GetAST(context.Background(), pyKey("main.py"), []byte(pythonSource), ASTOptions{}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return svc.Stats().EntryCount == 0
	}, time.Second, 10*time.Millisecond)
}
