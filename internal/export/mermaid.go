package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// GenerateMermaid renders a visualization graph as a Mermaid graph TD
// diagram. Each file becomes a subgraph holding its classes and functions.
// CONTAINS edges are drawn as -->, CALLS as -.->, and inheritance as ==>.
func GenerateMermaid(g *graph.VisualizationGraph) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if g == nil {
		return sb.String()
	}

	// Mermaid ids must be alphanumeric.
	nodeIDs := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		nodeIDs[n.ID] = fmt.Sprintf("N%d", i)
	}

	// Group declarations under the file that holds them.
	byFile := make(map[string][]graph.VisualizationNode)
	var loose []graph.VisualizationNode
	for _, n := range g.Nodes {
		switch n.Label {
		case string(graph.LabelFile):
			p := propString(n, "path")
			byFile[p] = append([]graph.VisualizationNode{n}, byFile[p]...)
		case string(graph.LabelClass), string(graph.LabelFunction):
			p := propString(n, "file_path")
			byFile[p] = append(byFile[p], n)
		default:
			loose = append(loose, n)
		}
	}

	for _, n := range loose {
		sb.WriteString(fmt.Sprintf("  %s\n", nodeShape(nodeIDs[n.ID], n)))
	}

	files := make([]string, 0, len(byFile))
	for p := range byFile {
		files = append(files, p)
	}
	sort.Strings(files)
	for i, p := range files {
		sb.WriteString(fmt.Sprintf("  subgraph F%d[\"%s\"]\n", i, escape(shortPath(p))))
		for _, n := range byFile[p] {
			sb.WriteString(fmt.Sprintf("    %s\n", nodeShape(nodeIDs[n.ID], n)))
		}
		sb.WriteString("  end\n")
	}

	for _, e := range g.Edges {
		src, ok1 := nodeIDs[e.From]
		dst, ok2 := nodeIDs[e.To]
		if !ok1 || !ok2 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", src, arrow(e.Type), dst))
	}

	return sb.String()
}

func arrow(relType string) string {
	switch graph.RelType(relType) {
	case graph.RelCalls:
		return "-.->"
	case graph.RelExtends, graph.RelImplements:
		return "==>"
	default:
		return "-->"
	}
}

func nodeShape(id string, n graph.VisualizationNode) string {
	switch graph.Label(n.Label) {
	case graph.LabelProject:
		return fmt.Sprintf("%s((\"%s\"))", id, escape(propString(n, "project_id")))
	case graph.LabelFile:
		return fmt.Sprintf("%s[\"%s\"]", id, escape(shortPath(propString(n, "path"))))
	case graph.LabelClass:
		return fmt.Sprintf("%s[[\"%s\"]]", id, escape(displayName(n)))
	case graph.LabelFunction:
		return fmt.Sprintf("%s(\"%s()\")", id, escape(displayName(n)))
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, escape(n.ID))
	}
}

func displayName(n graph.VisualizationNode) string {
	if qn := propString(n, "qualified_name"); qn != "" {
		return qn
	}
	return propString(n, "name")
}

func propString(n graph.VisualizationNode, key string) string {
	v, ok := n.Properties[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
