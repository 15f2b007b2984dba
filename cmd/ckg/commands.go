package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/httpapi"
	"github.com/dusk-indust/codegraph/internal/ingest"
	"github.com/dusk-indust/codegraph/internal/mcptools"
	"github.com/dusk-indust/codegraph/internal/parser"
)

func newInitSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the graph schema in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Store.Backend)
			return nil
		},
	}
}

// newOrchestrator wires the ingestion pipeline from configuration.
func (a *app) newOrchestrator(store graph.Store, onProgress func(ingest.ProgressEvent)) (*ingest.Orchestrator, error) {
	cache, err := ingest.NewParseCache(a.cfg.Ingest.ParseCacheSize)
	if err != nil {
		return nil, err
	}
	return ingest.New(parser.Default(), graph.NewBuilder(store, a.logger), ingest.Options{
		Workers:      a.cfg.Ingest.Workers,
		ParseTimeout: a.cfg.Ingest.ParseTimeout,
		Languages:    a.cfg.Languages(),
		Cache:        cache,
		OnProgress:   onProgress,
		Logger:       a.logger,
	}), nil
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		projectID string
		graphID   string
		progress  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest REPO",
		Short: "Parse a repository and write a new graph snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project-id is required")
			}
			ctx := cmd.Context()

			files, err := discover.Walk(ctx, args[0], discover.Options{
				ExcludeDirs: a.cfg.Ingest.ExcludeDirs,
				Languages:   a.cfg.Languages(),
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var onProgress func(ingest.ProgressEvent)
			if progress {
				onProgress = ingest.NewProgressPrinter(cmd.ErrOrStderr()).Print
			}

			orch, err := a.newOrchestrator(store, onProgress)
			if err != nil {
				return err
			}
			report, err := orch.Run(ctx, ingest.Request{GraphID: graphID, ProjectID: projectID, Files: files})
			if report != nil {
				if werr := export.WriteJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "project the snapshot belongs to (required)")
	cmd.Flags().StringVar(&graphID, "graph-id", "", "snapshot id (default: generated)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print per-file progress to stderr")
	return cmd
}

// selector holds the flags shared by read commands.
type selector struct {
	projectID string
	graphID   string
}

func (s *selector) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.projectID, "project-id", "", "read the project's latest snapshot")
	cmd.Flags().StringVar(&s.graphID, "graph-id", "", "read this snapshot")
}

func newSummaryCmd(a *app) *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the summary of a snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			q := a.queryService(store)
			gid, err := resolveGraphID(ctx, q, sel.graphID, sel.projectID)
			if err != nil {
				return err
			}
			sum, err := q.ProjectSummary(ctx, gid)
			if err != nil {
				return err
			}
			return export.WriteJSON(cmd.OutOrStdout(), sum)
		},
	}
	sel.bind(cmd)
	return cmd
}

func newVizCmd(a *app) *cobra.Command {
	var (
		sel    selector
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Render the visualization graph of a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "mermaid" {
				return fmt.Errorf("--format must be json or mermaid, got %q", format)
			}
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			q := a.queryService(store)
			gid, err := resolveGraphID(ctx, q, sel.graphID, sel.projectID)
			if err != nil {
				return err
			}
			g, err := q.ProjectGraphForVisualization(ctx, gid)
			if err != nil {
				return err
			}
			if g.Truncated {
				a.logger.Warn("visualization truncated", zap.String("graph_id", gid), zap.Int("node_cap", g.NodeCap))
			}

			return withOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				if format == "mermaid" {
					_, err := io.WriteString(w, export.GenerateMermaid(g))
					return err
				}
				return export.WriteJSON(w, g)
			})
		},
	}
	sel.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or mermaid")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		sel    selector
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON report with the summary and graph of a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			q := a.queryService(store)
			gid, err := resolveGraphID(ctx, q, sel.graphID, sel.projectID)
			if err != nil {
				return err
			}
			report, err := export.BuildReport(ctx, q, gid)
			if err != nil {
				return err
			}
			return withOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return export.WriteJSON(w, report)
			})
		},
	}
	sel.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		stdio bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API and MCP tools",
		Long: `Serve the HTTP query API with the MCP tools mounted at /mcp.
With --stdio, serve only the MCP tools over stdin/stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			orch, err := a.newOrchestrator(store, nil)
			if err != nil {
				return err
			}
			q := a.queryService(store)
			svc := mcptools.NewGraphService(orch, q, a.cfg.Ingest.ExcludeDirs, a.logger)

			if stdio {
				return mcptools.RunStdio(ctx, svc)
			}
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			router := httpapi.NewRouter(q,
				httpapi.WithLogger(a.logger),
				httpapi.WithMCP(mcptools.Handler(svc)),
			)
			a.logger.Info("serving", zap.String("addr", addr), zap.String("backend", a.cfg.Store.Backend))
			return httpapi.Serve(ctx, addr, router)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config http.addr)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	return cmd
}

func withOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
