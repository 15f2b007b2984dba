package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/parser"
)

func seededQuery(t *testing.T) *graph.QueryService {
	t.Helper()
	store := graph.NewMemStore()
	_, err := graph.NewBuilder(store, nil).Ingest(context.Background(), graph.IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"src/app/shapes.py": {
				FilePath: "src/app/shapes.py",
				Language: parser.LangPython,
				Classes: []parser.ClassLike{
					{Name: "Shape", Kind: parser.ClassKindClass},
					{Name: "Circle", Kind: parser.ClassKindClass, Superclass: "Shape", Methods: []parser.FunctionLike{
						{Name: "area", CallSites: []string{"square"}},
					}},
				},
				Functions: []parser.FunctionLike{{Name: "square"}},
			},
		},
	})
	require.NoError(t, err)
	return graph.NewQueryService(store)
}

func TestGenerateMermaid(t *testing.T) {
	q := seededQuery(t)
	g, err := q.ProjectGraphForVisualization(context.Background(), "g1")
	require.NoError(t, err)

	out := GenerateMermaid(g)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `N0(("proj"))`)
	assert.Contains(t, out, `subgraph F0["app/shapes.py"]`)
	assert.Contains(t, out, `[["Circle"]]`)
	assert.Contains(t, out, `("Circle.area()")`)
	assert.Contains(t, out, `("square()")`)

	assert.Equal(t, 5, strings.Count(out, " --> "))
	assert.Equal(t, 1, strings.Count(out, " -.-> "))
	assert.Equal(t, 1, strings.Count(out, " ==> "))
}

func TestGenerateMermaid_Empty(t *testing.T) {
	assert.Equal(t, "graph TD\n", GenerateMermaid(nil))
	assert.Equal(t, "graph TD\n", GenerateMermaid(&graph.VisualizationGraph{}))
}

func TestGenerateMermaid_EscapesQuotes(t *testing.T) {
	g := &graph.VisualizationGraph{Nodes: []graph.VisualizationNode{
		{ID: "p", Label: "Project", Properties: map[string]any{"project_id": `a"b`}},
	}}
	assert.Contains(t, GenerateMermaid(g), `N0(("a#quot;b"))`)
}

func TestBuildReport(t *testing.T) {
	q := seededQuery(t)
	r, err := BuildReport(context.Background(), q, "g1")
	require.NoError(t, err)
	assert.Equal(t, "proj", r.ProjectID)
	assert.Equal(t, 1, r.Summary.TotalFiles)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "g1", decoded["graph_id"])
	assert.Contains(t, decoded, "summary")
	assert.Contains(t, decoded, "graph")
	assert.NotContains(t, decoded, "ingest")
}

func TestShortPath(t *testing.T) {
	assert.Equal(t, "a.go", shortPath("a.go"))
	assert.Equal(t, "pkg/a.go", shortPath("pkg/a.go"))
	assert.Equal(t, "pkg/a.go", shortPath("internal/pkg/a.go"))
}
