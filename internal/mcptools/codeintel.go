package mcptools

import "github.com/dusk-indust/codegraph/internal/graph"

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// IngestRepositoryInput is the input for the ingest_repository MCP tool.
type IngestRepositoryInput struct {
	RepoPath    string   `json:"repoPath" jsonschema:"the absolute path to the repository to ingest"`
	ProjectID   string   `json:"projectId" jsonschema:"project the snapshot belongs to"`
	GraphID     string   `json:"graphId,omitempty" jsonschema:"snapshot id to write under (default: a new id)"`
	Languages   []string `json:"languages,omitempty" jsonschema:"languages to ingest (default: all). Values: python, java, kotlin, c, go, typescript, rust"`
	ExcludeDirs []string `json:"excludeDirs,omitempty" jsonschema:"directory names to exclude (e.g. vendor, node_modules)"`
}

// IngestRepositoryOutput is the result of the ingest_repository MCP tool.
type IngestRepositoryOutput struct {
	GraphID              string              `json:"graphId"`
	ProjectID            string              `json:"projectId"`
	FilesIngested        int                 `json:"filesIngested"`
	FilesSkippedUnparsed int                 `json:"filesSkippedUnparsed"`
	UnparsedFiles        []string            `json:"unparsedFiles"`
	WriteFailures        int                 `json:"writeFailures"`
	Failures             []graph.UnitFailure `json:"failures"`
	NodesWritten         int                 `json:"nodesWritten"`
	RelationshipsWritten int                 `json:"relationshipsWritten"`
	DurationMS           int64               `json:"durationMs"`
}

// GetProjectSummaryInput is the input for the get_project_summary MCP tool.
type GetProjectSummaryInput struct {
	ProjectID string `json:"projectId,omitempty" jsonschema:"project whose latest snapshot is summarized"`
	GraphID   string `json:"graphId,omitempty" jsonschema:"explicit snapshot id; takes precedence over projectId"`
}

// GetProjectSummaryOutput is the result of the get_project_summary MCP tool.
type GetProjectSummaryOutput struct {
	GraphID string        `json:"graphId"`
	Summary graph.Summary `json:"summary"`
}

// GetProjectGraphInput is the input for the get_project_graph MCP tool.
type GetProjectGraphInput struct {
	ProjectID string `json:"projectId,omitempty" jsonschema:"project whose latest snapshot is returned"`
	GraphID   string `json:"graphId,omitempty" jsonschema:"explicit snapshot id; takes precedence over projectId"`
}

// GetProjectGraphOutput is the result of the get_project_graph MCP tool.
type GetProjectGraphOutput struct {
	GraphID string                   `json:"graphId"`
	Graph   graph.VisualizationGraph `json:"graph"`
}

// ResolveLatestGraphInput is the input for the resolve_latest_graph MCP tool.
type ResolveLatestGraphInput struct {
	ProjectID string `json:"projectId" jsonschema:"project to resolve"`
}

// ResolveLatestGraphOutput is the result of the resolve_latest_graph MCP tool.
type ResolveLatestGraphOutput struct {
	GraphID string `json:"graphId"`
}
