package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// version is set by the linker at build time.
var version = "dev"

const instructions = "Ingests Python projects into a property graph of statements (cfg, dfg and cg edges) " +
	"and files (related edges). Call build_graph once per project, apply_diff after file changes, " +
	"and related_files to see which files a change would invalidate."

// NewMCPServer returns an MCP server whose tools run against svc.
func NewMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "py2graph", Version: version},
		&mcp.ServerOptions{Instructions: instructions},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_graph",
		Description: "Analyze every Python file of a project and write statement vertices, control-flow, data-flow and call edges, and file-level related edges to the graph store.",
	}, svc.BuildGraph)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_diff",
		Description: "Delete the changed files and the files related to them from the graph, then analyze again the ones that still exist.",
	}, svc.ApplyDiff)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "related_files",
		Description: "List the files that call into a file or that it calls into.",
	}, svc.RelatedFiles)

	return server
}

// RunMCPServer serves the tools over streamable HTTP on addr until ctx is
// cancelled.
func RunMCPServer(ctx context.Context, svc *GraphService, addr string) error {
	server := NewMCPServer(svc)
	httpServer := &http.Server{
		Addr: addr,
		Handler: mcp.NewStreamableHTTPHandler(
			func(*http.Request) *mcp.Server { return server },
			nil,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.logger.Info("mcp server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
