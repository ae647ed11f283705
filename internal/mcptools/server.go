// Package mcptools exposes the AST cache to MCP clients as a set of typed
// tools over stdio or streamable HTTP.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with all treescope tools registered.
func NewServer(svc *TreeService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "treescope",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register_project",
		Description: "Register a project directory for analysis. Scans the tree to report which languages are present and begins watching for changes.",
	}, svc.RegisterProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_projects",
		Description: "List all registered projects with their language breakdown.",
	}, svc.ListProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_project",
		Description: "Unregister a project and drop its cached parse trees.",
	}, svc.RemoveProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_ast",
		Description: "Parse a source file (or reuse the cached tree) and return a depth-bounded, id-indexed AST. Depth limits keep the payload bounded; truncated nodes are marked.",
	}, svc.GetAST)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_node_at_position",
		Description: "Return the most specific syntax node at a zero-based row/column in a source file.",
	}, svc.GetNodeAtPosition)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_file",
		Description: "Return the text content of a project file, optionally truncated to a line count.",
	}, svc.GetFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_files",
		Description: "List files in a project, optionally filtered by extension.",
	}, svc.ListFiles)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_languages",
		Description: "List the languages with compiled-in grammars and their file extensions.",
	}, svc.ListLanguages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "invalidate_cache",
		Description: "Drop cached parse trees for a file, a whole project, or everything.",
	}, svc.InvalidateCache)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report parse-tree cache counters: entries, aggregate weight, hits, misses, evictions.",
	}, svc.CacheStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "configure",
		Description: "Adjust cache behavior at runtime: enable/disable caching, weight budget, entry TTL.",
	}, svc.Configure)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts an HTTP server exposing the MCP tools at addr.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
