package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/discover"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/ingest"
	"github.com/dusk-indust/codegraph/internal/parser"
)

// GraphService holds the ingestion pipeline and query service used by MCP
// tool handlers.
type GraphService struct {
	orch        *ingest.Orchestrator
	query       *graph.QueryService
	excludeDirs []string
	logger      *zap.Logger
}

// NewGraphService creates a GraphService. excludeDirs is applied to every
// ingest_repository call in addition to the per-call list.
func NewGraphService(orch *ingest.Orchestrator, query *graph.QueryService, excludeDirs []string, logger *zap.Logger) *GraphService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphService{orch: orch, query: query, excludeDirs: excludeDirs, logger: logger}
}

// IngestRepository walks a repository, parses its source files, and writes
// one graph snapshot.
func (s *GraphService) IngestRepository(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestRepositoryInput,
) (*mcp.CallToolResult, IngestRepositoryOutput, error) {
	if input.RepoPath == "" {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("repoPath is required")
	}
	if input.ProjectID == "" {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("projectId is required")
	}

	var langs []parser.Language
	for _, l := range input.Languages {
		lang, ok := parser.ParseLanguage(l)
		if !ok {
			return nil, IngestRepositoryOutput{}, fmt.Errorf("unknown language %q", l)
		}
		langs = append(langs, lang)
	}

	files, err := discover.Walk(ctx, input.RepoPath, discover.Options{
		ExcludeDirs: append(append([]string{}, s.excludeDirs...), input.ExcludeDirs...),
		Languages:   langs,
		Logger:      s.logger,
	})
	if err != nil {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("walk: %w", err)
	}

	report, err := s.orch.Run(ctx, ingest.Request{
		GraphID:   input.GraphID,
		ProjectID: input.ProjectID,
		Files:     files,
	})
	if err != nil {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("ingest: %w", err)
	}

	return nil, toIngestOutput(report), nil
}

func toIngestOutput(r *graph.RunReport) IngestRepositoryOutput {
	out := IngestRepositoryOutput{
		GraphID:              r.GraphID,
		ProjectID:            r.ProjectID,
		FilesIngested:        r.FilesIngested,
		FilesSkippedUnparsed: r.FilesSkippedUnparsed,
		UnparsedFiles:        r.UnparsedFiles,
		WriteFailures:        r.WriteFailures,
		Failures:             r.Failures,
		NodesWritten:         r.NodesWritten,
		RelationshipsWritten: r.RelationshipsWritten,
		DurationMS:           r.Duration.Milliseconds(),
	}
	if out.UnparsedFiles == nil {
		out.UnparsedFiles = []string{}
	}
	if out.Failures == nil {
		out.Failures = []graph.UnitFailure{}
	}
	return out
}

// GetProjectSummary returns the summary of a snapshot, resolving the
// project's latest snapshot when no graph id is given.
func (s *GraphService) GetProjectSummary(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetProjectSummaryInput,
) (*mcp.CallToolResult, GetProjectSummaryOutput, error) {
	gid, err := s.graphID(ctx, input.GraphID, input.ProjectID)
	if err != nil {
		return nil, GetProjectSummaryOutput{}, err
	}
	sum, err := s.query.ProjectSummary(ctx, gid)
	if err != nil {
		return nil, GetProjectSummaryOutput{}, fmt.Errorf("project summary: %w", err)
	}
	return nil, GetProjectSummaryOutput{GraphID: gid, Summary: *sum}, nil
}

// GetProjectGraph returns the bounded visualization graph of a snapshot.
func (s *GraphService) GetProjectGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetProjectGraphInput,
) (*mcp.CallToolResult, GetProjectGraphOutput, error) {
	gid, err := s.graphID(ctx, input.GraphID, input.ProjectID)
	if err != nil {
		return nil, GetProjectGraphOutput{}, err
	}
	g, err := s.query.ProjectGraphForVisualization(ctx, gid)
	if err != nil {
		return nil, GetProjectGraphOutput{}, fmt.Errorf("project graph: %w", err)
	}
	return nil, GetProjectGraphOutput{GraphID: gid, Graph: *g}, nil
}

// ResolveLatestGraph returns the most recent snapshot id of a project.
func (s *GraphService) ResolveLatestGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResolveLatestGraphInput,
) (*mcp.CallToolResult, ResolveLatestGraphOutput, error) {
	if strings.TrimSpace(input.ProjectID) == "" {
		return nil, ResolveLatestGraphOutput{}, fmt.Errorf("projectId is required")
	}
	gid, err := s.query.ResolveLatestGraphID(ctx, input.ProjectID)
	if err != nil {
		return nil, ResolveLatestGraphOutput{}, fmt.Errorf("resolve latest graph: %w", err)
	}
	return nil, ResolveLatestGraphOutput{GraphID: gid}, nil
}

func (s *GraphService) graphID(ctx context.Context, graphID, projectID string) (string, error) {
	if graphID != "" {
		return graphID, nil
	}
	if projectID == "" {
		return "", fmt.Errorf("graphId or projectId is required")
	}
	gid, err := s.query.ResolveLatestGraphID(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("resolve latest graph: %w", err)
	}
	return gid, nil
}
