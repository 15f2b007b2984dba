package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/logging"
	"github.com/dusk-indust/codegraph/internal/mcptools"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by subcommands. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configDir string
	logLevel  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ckg",
		Short: "Build and query a code knowledge graph",
		Long: `ckg parses a repository with tree-sitter and stores its files, classes,
functions, imports, calls, and inheritance as a versioned graph snapshot.

Examples:
  ckg init-schema
  ckg ingest ./repo --project-id acme
  ckg summary --project-id acme
  ckg viz --project-id acme --format mermaid
  ckg serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "directory holding ckg.yml and .env")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newInitSchemaCmd(a),
		newIngestCmd(a),
		newSummaryCmd(a),
		newVizCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	if cfg.Store.KuzuPath != "" && !filepath.IsAbs(cfg.Store.KuzuPath) {
		cfg.Store.KuzuPath = filepath.Join(a.configDir, cfg.Store.KuzuPath)
	}
	a.cfg = cfg
	a.logger = logger
	mcptools.Version = version
	return nil
}

// openStore opens the configured backend and applies the schema.
func (a *app) openStore(ctx context.Context) (graph.Store, error) {
	var (
		store graph.Store
		err   error
	)
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		store = graph.NewMemStore()
	case config.BackendKuzu:
		store, err = openKuzuStore(a.cfg.Store.KuzuPath, a.logger)
	case config.BackendNeo4j:
		n := a.cfg.Store.Neo4j
		store, err = graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
			URI:      n.URI,
			Username: n.Username,
			Password: n.Password,
			Database: n.Database,
		}, a.logger)
	default:
		err = fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (a *app) queryService(store graph.Store) *graph.QueryService {
	return graph.NewQueryService(store,
		graph.WithMainModules(a.cfg.Query.MainModules),
		graph.WithNodeCap(a.cfg.Query.NodeCap),
		graph.WithQueryLogger(a.logger),
	)
}

// resolveGraphID returns graphID, or the latest snapshot of projectID.
func resolveGraphID(ctx context.Context, q *graph.QueryService, graphID, projectID string) (string, error) {
	if graphID != "" {
		return graphID, nil
	}
	if projectID == "" {
		return "", fmt.Errorf("--graph-id or --project-id is required")
	}
	return q.ResolveLatestGraphID(ctx, projectID)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
