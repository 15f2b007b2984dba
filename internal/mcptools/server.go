package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is set by the linker at build time.
var Version = "dev"

// NewGraphMCPServer creates an MCP server with the four knowledge-graph
// tools registered.
func NewGraphMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ckg",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_repository",
		Description: "Parse a repository with tree-sitter and write a new code knowledge graph snapshot (files, classes, functions, imports, calls, inheritance). Returns a run report.",
	}, svc.IngestRepository)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_project_summary",
		Description: "Summarize a snapshot: file, class, and function counts, average functions per file, main modules, largest classes, and most called functions.",
	}, svc.GetProjectSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_project_graph",
		Description: "Return a bounded node/edge view of a snapshot for visualization. Edges only connect included nodes; truncated is set when the node cap was reached.",
	}, svc.GetProjectGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_latest_graph",
		Description: "Return the id of a project's most recently created snapshot.",
	}, svc.ResolveLatestGraph)

	return server
}

// Handler returns a streamable HTTP handler serving the MCP tools.
func Handler(svc *GraphService) http.Handler {
	server := NewGraphMCPServer(svc)
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}

// RunMCPServer starts an HTTP server exposing the MCP tools.
func RunMCPServer(ctx context.Context, svc *GraphService, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunStdio serves the MCP tools over stdin/stdout until ctx ends or the
// client disconnects.
func RunStdio(ctx context.Context, svc *GraphService) error {
	return NewGraphMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
