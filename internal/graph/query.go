package graph

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

const (
	// DefaultMainModules is the number of main modules in a Summary.
	DefaultMainModules = 5
	// DefaultNodeCap bounds a VisualizationGraph.
	DefaultNodeCap = 500

	topN = 5
)

// Summary is the aggregate view of one graph snapshot.
type Summary struct {
	TotalFiles              int            `json:"total_files"`
	TotalClasses            int            `json:"total_classes"`
	TotalFunctionsMethods   int            `json:"total_functions_methods"`
	AverageFunctionsPerFile float64        `json:"average_functions_per_file"`
	MainModules             []string       `json:"main_modules"`
	LargestClasses          []ClassRank    `json:"top_5_largest_classes_by_methods"`
	MostCalledFunctions     []FunctionRank `json:"top_5_most_called_functions"`
}

// ClassRank is one entry of Summary.LargestClasses.
type ClassRank struct {
	Name        string `json:"name"`
	FilePath    string `json:"file_path"`
	MethodCount int    `json:"method_count"`
}

// FunctionRank is one entry of Summary.MostCalledFunctions.
type FunctionRank struct {
	Name      string `json:"name"`
	FilePath  string `json:"file_path"`
	CallCount int    `json:"call_count"`
}

// VisualizationNode is a node of a VisualizationGraph.
type VisualizationNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// VisualizationEdge is an edge of a VisualizationGraph.
type VisualizationEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// VisualizationGraph is a bounded node/edge view of one snapshot.
type VisualizationGraph struct {
	Nodes     []VisualizationNode `json:"nodes"`
	Edges     []VisualizationEdge `json:"edges"`
	Truncated bool                `json:"truncated"`
	NodeCap   int                 `json:"node_cap"`
}

// QueryService answers read-only questions about stored graphs.
type QueryService struct {
	store       Store
	mainModules int
	nodeCap     int
	logger      *zap.Logger
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithMainModules sets how many main modules a Summary lists.
func WithMainModules(n int) QueryOption {
	return func(q *QueryService) {
		if n > 0 {
			q.mainModules = n
		}
	}
}

// WithNodeCap sets the VisualizationGraph node cap.
func WithNodeCap(n int) QueryOption {
	return func(q *QueryService) {
		if n > 0 {
			q.nodeCap = n
		}
	}
}

// WithQueryLogger sets the logger. The default discards output.
func WithQueryLogger(l *zap.Logger) QueryOption {
	return func(q *QueryService) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueryService returns a QueryService over store.
func NewQueryService(store Store, opts ...QueryOption) *QueryService {
	q := &QueryService{
		store:       store,
		mainModules: DefaultMainModules,
		nodeCap:     DefaultNodeCap,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// ProjectSummary aggregates counts and rankings for graphID. An unknown
// graph yields an all-zero summary.
func (q *QueryService) ProjectSummary(ctx context.Context, graphID string) (*Summary, error) {
	files, err := q.store.ReadNodes(ctx, NodeFilter{Label: LabelFile, GraphID: graphID})
	if err != nil {
		return nil, fmt.Errorf("summary: read files: %w", err)
	}
	classes, err := q.store.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: graphID})
	if err != nil {
		return nil, fmt.Errorf("summary: read classes: %w", err)
	}
	funcs, err := q.store.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: graphID})
	if err != nil {
		return nil, fmt.Errorf("summary: read functions: %w", err)
	}
	calls, err := q.store.ReadRelationships(ctx, RelFilter{Type: RelCalls, GraphID: graphID})
	if err != nil {
		return nil, fmt.Errorf("summary: read calls: %w", err)
	}

	s := &Summary{
		TotalFiles:            len(files),
		TotalClasses:          len(classes),
		TotalFunctionsMethods: len(funcs),
		MainModules:           mainModules(files, classes, funcs, q.mainModules),
		LargestClasses:        largestClasses(classes),
		MostCalledFunctions:   mostCalled(funcs, calls),
	}
	if len(files) > 0 {
		s.AverageFunctionsPerFile = float64(len(funcs)) / float64(len(files))
	}
	return s, nil
}

// mainModules ranks file paths by the number of classes and functions
// they declare, descending, ties by path.
func mainModules(files, classes, funcs []Node, n int) []string {
	weight := make(map[string]int, len(files))
	for _, f := range files {
		weight[f.String("path")] = 0
	}
	for _, c := range classes {
		weight[c.String("file_path")]++
	}
	for _, f := range funcs {
		weight[f.String("file_path")]++
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.String("path"))
	}
	sort.Slice(paths, func(i, j int) bool {
		if weight[paths[i]] != weight[paths[j]] {
			return weight[paths[i]] > weight[paths[j]]
		}
		return paths[i] < paths[j]
	})
	if len(paths) > n {
		paths = paths[:n]
	}
	return paths
}

func largestClasses(classes []Node) []ClassRank {
	out := make([]ClassRank, 0, len(classes))
	for _, c := range classes {
		out = append(out, ClassRank{
			Name:        c.String("name"),
			FilePath:    c.String("file_path"),
			MethodCount: c.Int("method_count"),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MethodCount != b.MethodCount {
			return a.MethodCount > b.MethodCount
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.FilePath < b.FilePath
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// mostCalled ranks functions by inbound CALLS. Functions never called are
// left out.
func mostCalled(funcs []Node, calls []Relationship) []FunctionRank {
	inbound := make(map[string]int)
	for _, r := range calls {
		inbound[r.To]++
	}
	out := make([]FunctionRank, 0)
	for _, f := range funcs {
		n := inbound[f.ID]
		if n == 0 {
			continue
		}
		out = append(out, FunctionRank{Name: f.String("name"), FilePath: f.String("file_path"), CallCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CallCount != b.CallCount {
			return a.CallCount > b.CallCount
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.FilePath < b.FilePath
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ResolveLatestGraphID returns the most recently created graph of a
// project, or FallbackGraphID when the project has none.
func (q *QueryService) ResolveLatestGraphID(ctx context.Context, projectID string) (string, error) {
	projects, err := q.store.ReadNodes(ctx, NodeFilter{
		Label: LabelProject,
		Where: map[string]any{"project_id": projectID},
	})
	if err != nil {
		return "", fmt.Errorf("resolve latest graph: %w", err)
	}
	if len(projects) == 0 {
		q.logger.Debug("no graph for project, using fallback", zap.String("project_id", projectID))
		return FallbackGraphID(projectID), nil
	}
	best := projects[0]
	for _, p := range projects[1:] {
		ca, cb := p.Int("created_at"), best.Int("created_at")
		if ca > cb || (ca == cb && p.String("graph_id") > best.String("graph_id")) {
			best = p
		}
	}
	return best.String("graph_id"), nil
}

// ProjectSummaryForProject resolves the latest graph of projectID and
// summarizes it. The resolved graph id is returned alongside.
func (q *QueryService) ProjectSummaryForProject(ctx context.Context, projectID string) (*Summary, string, error) {
	graphID, err := q.ResolveLatestGraphID(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	s, err := q.ProjectSummary(ctx, graphID)
	if err != nil {
		return nil, graphID, err
	}
	return s, graphID, nil
}

// ProjectGraphForVisualization returns up to the node cap of graphID's
// nodes in containment order: Project, Files by path, Classes, then
// Functions, each by file path and qualified name. Edges are kept only
// between included nodes.
func (q *QueryService) ProjectGraphForVisualization(ctx context.Context, graphID string) (*VisualizationGraph, error) {
	g := &VisualizationGraph{
		Nodes:   []VisualizationNode{},
		Edges:   []VisualizationEdge{},
		NodeCap: q.nodeCap,
	}

	var ordered []Node
	for _, label := range []Label{LabelProject, LabelFile, LabelClass, LabelFunction} {
		nodes, err := q.store.ReadNodes(ctx, NodeFilter{Label: label, GraphID: graphID})
		if err != nil {
			return nil, fmt.Errorf("visualization: read %s: %w", label, err)
		}
		sortForDisplay(label, nodes)
		ordered = append(ordered, nodes...)
	}
	if len(ordered) > q.nodeCap {
		ordered = ordered[:q.nodeCap]
		g.Truncated = true
	}

	included := make(map[string]bool, len(ordered))
	for _, n := range ordered {
		included[n.ID] = true
		g.Nodes = append(g.Nodes, VisualizationNode{ID: n.ID, Label: string(n.Label), Properties: n.Props})
	}

	for _, t := range []RelType{RelContains, RelCalls, RelExtends, RelImplements} {
		rels, err := q.store.ReadRelationships(ctx, RelFilter{Type: t, GraphID: graphID})
		if err != nil {
			return nil, fmt.Errorf("visualization: read %s: %w", t, err)
		}
		for _, r := range rels {
			if included[r.From] && included[r.To] {
				g.Edges = append(g.Edges, VisualizationEdge{From: r.From, To: r.To, Type: string(t)})
			}
		}
	}
	return g, nil
}

func sortForDisplay(label Label, nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if label == LabelFile {
			return a.String("path") < b.String("path")
		}
		if fa, fb := a.String("file_path"), b.String("file_path"); fa != fb {
			return fa < fb
		}
		if qa, qb := a.String("qualified_name"), b.String("qualified_name"); qa != qb {
			return qa < qb
		}
		return a.ID < b.ID
	})
}
