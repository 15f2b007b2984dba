package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// Report is the top-level JSON export of one graph snapshot.
type Report struct {
	GraphID    string                    `json:"graph_id"`
	ProjectID  string                    `json:"project_id,omitempty"`
	ExportedAt string                    `json:"exported_at"`
	Summary    *graph.Summary            `json:"summary"`
	Graph      *graph.VisualizationGraph `json:"graph"`
	Ingest     *graph.RunReport          `json:"ingest,omitempty"`
}

// BuildReport queries the summary and visualization graph of graphID.
func BuildReport(ctx context.Context, q *graph.QueryService, graphID string) (*Report, error) {
	sum, err := q.ProjectSummary(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("export: summary: %w", err)
	}
	g, err := q.ProjectGraphForVisualization(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("export: graph: %w", err)
	}
	r := &Report{
		GraphID:    graphID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:    sum,
		Graph:      g,
	}
	for _, n := range g.Nodes {
		if n.Label == string(graph.LabelProject) {
			r.ProjectID = propString(n, "project_id")
			break
		}
	}
	return r, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}
