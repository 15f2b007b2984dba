package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/parser"
)

const fooPy = `class Foo:
    def bar(self):
        return helper()

    def baz(self):
        return self.bar()
`

const pointC = `struct Point {
    int x;
    int y;
};

int add(int a, int b) {
    return a + b;
}
`

func parse(t *testing.T, p parser.Parser, path, src string) *parser.ParseResult {
	t.Helper()
	res := p.Parse(context.Background(), path, []byte(src))
	require.NotNil(t, res)
	require.Empty(t, res.Diagnostics, "fixture %s should parse cleanly", path)
	return res
}

// scenarioRequest is a Python class Foo{bar, baz} plus a C file with
// struct Point{x, y} and a function add.
func scenarioRequest(t *testing.T, graphID string) IngestRequest {
	t.Helper()
	return IngestRequest{
		GraphID:   graphID,
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"pkg/foo.py":   parse(t, parser.NewPythonParser(), "pkg/foo.py", fooPy),
			"geom/point.c": parse(t, parser.NewCParser(), "geom/point.c", pointC),
		},
	}
}

// graphCounts returns the number of nodes per label and relationships per type.
func graphCounts(t *testing.T, s Store, gid string) map[string]int {
	t.Helper()
	ctx := context.Background()
	out := map[string]int{}
	for _, d := range NodeDefs {
		nodes, err := s.ReadNodes(ctx, NodeFilter{Label: d.Label, GraphID: gid})
		require.NoError(t, err)
		out[string(d.Label)] = len(nodes)
	}
	for _, d := range RelDefs {
		rels, err := s.ReadRelationships(ctx, RelFilter{Type: d.Type, GraphID: gid})
		require.NoError(t, err)
		out[string(d.Type)] = len(rels)
	}
	return out
}

func TestBuilder_Scenario(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	report, err := NewBuilder(s, nil).Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)

	assert.Equal(t, "g1", report.GraphID)
	assert.Equal(t, "proj", report.ProjectID)
	assert.Equal(t, 2, report.FilesIngested)
	assert.Zero(t, report.WriteFailures)
	assert.Empty(t, report.Failures)
	// Project, 2 files, Foo, Point, bar, baz, add.
	assert.Equal(t, 8, report.NodesWritten)
	// 7 CONTAINS plus baz -> bar.
	assert.Equal(t, 8, report.RelationshipsWritten)

	counts := graphCounts(t, s, "g1")
	assert.Equal(t, 1, counts["Project"])
	assert.Equal(t, 2, counts["File"])
	assert.Equal(t, 2, counts["Class"])
	assert.Equal(t, 3, counts["Function"])
	assert.Equal(t, 7, counts["CONTAINS"])
	assert.Equal(t, 1, counts["CALLS"])

	sum, err := NewQueryService(s).ProjectSummary(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalFiles)
	assert.Equal(t, 2, sum.TotalClasses)
	assert.Equal(t, 3, sum.TotalFunctionsMethods)
	assert.InDelta(t, 1.5, sum.AverageFunctionsPerFile, 1e-9)
	assert.Equal(t, []string{"pkg/foo.py", "geom/point.c"}, sum.MainModules)
	require.Len(t, sum.LargestClasses, 2)
	assert.Equal(t, ClassRank{Name: "Foo", FilePath: "pkg/foo.py", MethodCount: 2}, sum.LargestClasses[0])
	assert.Equal(t, ClassRank{Name: "Point", FilePath: "geom/point.c", MethodCount: 0}, sum.LargestClasses[1])
	assert.Equal(t, []FunctionRank{{Name: "bar", FilePath: "pkg/foo.py", CallCount: 1}}, sum.MostCalledFunctions)
}

func TestBuilder_NodeProperties(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_, err := NewBuilder(s, nil).Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)

	classes, err := s.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: "g1", Where: map[string]any{"name": "Point"}})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	point := classes[0]
	assert.Equal(t, ClassKey("g1", "geom/point.c", "Point"), point.ID)
	assert.Equal(t, "struct", point.String("kind"))
	assert.Equal(t, "x:int,y:int", point.String("attributes"))
	assert.Equal(t, 1, point.Int("start_line"))

	funcs, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: "g1", Where: map[string]any{"name": "bar"}})
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	bar := funcs[0]
	assert.True(t, bar.Bool("is_method"))
	assert.Equal(t, "Foo", bar.String("owner_class"))
	assert.Equal(t, "Foo.bar", bar.String("qualified_name"))

	funcs, err = s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: "g1", Where: map[string]any{"name": "add"}})
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.False(t, funcs[0].Bool("is_method"))
	assert.Equal(t, "a:int,b:int", funcs[0].String("parameters"))
	assert.Equal(t, "int", funcs[0].String("return_type"))
}

func TestBuilder_Idempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	b := NewBuilder(s, nil)

	_, err := b.Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)
	first := graphCounts(t, s, "g1")

	_, err = b.Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)
	assert.Equal(t, first, graphCounts(t, s, "g1"))
}

func TestBuilder_CreatedAtSetOnce(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	b := NewBuilder(s, nil)

	b.now = func() time.Time { return time.Unix(0, 100) }
	_, err := b.Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)

	b.now = func() time.Time { return time.Unix(0, 500) }
	_, err = b.Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)

	projects, err := s.ReadNodes(ctx, NodeFilter{Label: LabelProject, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 100, projects[0].Int("created_at"))
}

func TestBuilder_RenamedClassKeepsOldNode(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	b := NewBuilder(s, nil)

	_, err := b.Ingest(ctx, scenarioRequest(t, "g1"))
	require.NoError(t, err)

	req := scenarioRequest(t, "g1")
	req.Results["pkg/foo.py"].Classes[0].Name = "Qux"
	_, err = b.Ingest(ctx, req)
	require.NoError(t, err)

	classes, err := s.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: "g1"})
	require.NoError(t, err)
	var names []string
	for _, c := range classes {
		names = append(names, c.String("name"))
	}
	assert.ElementsMatch(t, []string{"Foo", "Qux", "Point"}, names)
}

func TestBuilder_UnresolvedCall(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"a.py": {
				FilePath:  "a.py",
				Language:  parser.LangPython,
				Functions: []parser.FunctionLike{{Name: "main", CallSites: []string{"does_not_exist"}}},
			},
		},
	}
	report, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, report.WriteFailures)
	assert.Zero(t, graphCounts(t, s, "g1")["CALLS"])
}

func TestBuilder_OverInclusiveCalls(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	fn := func(name string, calls ...string) parser.FunctionLike {
		return parser.FunctionLike{Name: name, CallSites: calls}
	}
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"a.go": {FilePath: "a.go", Language: parser.LangGo, Functions: []parser.FunctionLike{fn("run", "save")}},
			"b.go": {FilePath: "b.go", Language: parser.LangGo, Functions: []parser.FunctionLike{fn("save")}},
			"c.go": {FilePath: "c.go", Language: parser.LangGo, Functions: []parser.FunctionLike{fn("save")}},
		},
	}
	_, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)

	calls, err := s.ReadRelationships(ctx, RelFilter{Type: RelCalls, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, FunctionKey("g1", "b.go", "save"), calls[0].To)
	assert.Equal(t, FunctionKey("g1", "c.go", "save"), calls[1].To)
}

func TestBuilder_Inheritance(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"zoo.py": {
				FilePath: "zoo.py",
				Language: parser.LangPython,
				Classes: []parser.ClassLike{
					{Name: "Animal", Kind: parser.ClassKindClass},
					{Name: "Walker", Kind: parser.ClassKindClass},
					{Name: "Dog", Kind: parser.ClassKindClass, Superclass: "zoo.Animal", Interfaces: []string{"Walker", "Serializable"}},
					// A class naming itself as its supertype must not link to itself.
					{Name: "Loop", Kind: parser.ClassKindClass, Superclass: "Loop"},
				},
			},
		},
	}
	_, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)

	extends, err := s.ReadRelationships(ctx, RelFilter{Type: RelExtends, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, extends, 1)
	assert.Equal(t, ClassKey("g1", "zoo.py", "Dog"), extends[0].From)
	assert.Equal(t, ClassKey("g1", "zoo.py", "Animal"), extends[0].To)

	impls, err := s.ReadRelationships(ctx, RelFilter{Type: RelImplements, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, impls, 1)
	assert.Equal(t, ClassKey("g1", "zoo.py", "Walker"), impls[0].To)

	dog, err := s.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: "g1", Where: map[string]any{"name": "Dog"}})
	require.NoError(t, err)
	require.Len(t, dog, 1)
	assert.Equal(t, "Serializable", dog[0].String("unresolved_supertypes"))
	assert.Equal(t, "Walker,Serializable", dog[0].String("interfaces"))
	assert.Equal(t, "zoo.Animal", dog[0].String("superclass"))

	loop, err := s.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: "g1", Where: map[string]any{"name": "Loop"}})
	require.NoError(t, err)
	require.Len(t, loop, 1)
	assert.Equal(t, "Loop", loop[0].String("unresolved_supertypes"))
}

func TestBuilder_OverloadsCollapse(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"Calc.java": {
				FilePath: "Calc.java",
				Language: parser.LangJava,
				Classes: []parser.ClassLike{{
					Name: "Calc",
					Kind: parser.ClassKindClass,
					Methods: []parser.FunctionLike{
						{Name: "add", Parameters: []parser.Parameter{{Name: "a", DeclaredType: "int"}}, CallSites: []string{"log"}},
						{Name: "add", Parameters: []parser.Parameter{{Name: "a", DeclaredType: "double"}}, CallSites: []string{"round", "log"}},
						{Name: "log"},
						{Name: "round"},
					},
				}},
			},
		},
	}
	_, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)

	counts := graphCounts(t, s, "g1")
	assert.Equal(t, 3, counts["Function"])
	assert.Equal(t, 2, counts["CALLS"], "add -> log and add -> round")

	cls, err := s.ReadNodes(ctx, NodeFilter{Label: LabelClass, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, cls, 1)
	assert.Equal(t, 3, cls[0].Int("method_count"))

	add, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: "g1", Where: map[string]any{"name": "add"}})
	require.NoError(t, err)
	require.Len(t, add, 1)
	assert.Equal(t, "a:int", add[0].String("parameters"), "first declaration wins")
}

func TestBuilder_ReceiverMethodsInOtherFile(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	goParser := parser.NewGoParser()
	types := parse(t, goParser, "x/types.go", "package x\n\ntype A struct{}\n\ntype B struct{}\n")
	methods := parse(t, goParser, "x/methods.go", `package x

func (a *A) Close() error { return nil }

func (b *B) Close() error { return nil }

func shutdown(a *A) { a.Close() }
`)
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"x/types.go":   types,
			"x/methods.go": methods,
		},
	}
	_, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)

	fns, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: "g1"})
	require.NoError(t, err)
	var qualified []string
	for _, fn := range fns {
		qualified = append(qualified, fn.String("qualified_name"))
	}
	assert.ElementsMatch(t, []string{"A.Close", "B.Close", "shutdown"}, qualified)

	closers, err := s.ReadNodes(ctx, NodeFilter{Label: LabelFunction, GraphID: "g1", Where: map[string]any{"name": "Close"}})
	require.NoError(t, err)
	assert.Len(t, closers, 2)

	assert.Equal(t, 2, graphCounts(t, s, "g1")["CALLS"], "shutdown calls both Close methods by name")

	sum, err := NewQueryService(s).ProjectSummary(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalFunctionsMethods)
}

func TestBuilder_Imports(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	req := IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"app/service.py": {
				FilePath: "app/service.py",
				Language: parser.LangPython,
				Imports: []parser.ImportRef{
					{ModulePath: ".models.User"},
					{ModulePath: "logging", Alias: "log"},
				},
			},
			"app/models.py": {FilePath: "app/models.py", Language: parser.LangPython},
		},
	}
	_, err := NewBuilder(s, nil).Ingest(ctx, req)
	require.NoError(t, err)

	imports, err := s.ReadNodes(ctx, NodeFilter{Label: LabelImport, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, imports, 2)

	rels, err := s.ReadRelationships(ctx, RelFilter{Type: RelImports, GraphID: "g1"})
	require.NoError(t, err)
	require.Len(t, rels, 2)
	byTarget := map[string]Relationship{}
	for _, r := range rels {
		byTarget[r.To] = r
	}
	user := byTarget[ImportKey("g1", ".models.User")]
	assert.Equal(t, "app/models.py", user.Props["resolved_path"])
	logging := byTarget[ImportKey("g1", "logging")]
	assert.Equal(t, "log", logging.Props["alias"])
	_, resolved := logging.Props["resolved_path"]
	assert.False(t, resolved)
}

func TestBuilder_Unparsed(t *testing.T) {
	s := NewMemStore()
	req := scenarioRequest(t, "g1")
	req.Results["docs/README.md"] = nil
	req.Unparsed = []string{"z/huge.py"}

	report, err := NewBuilder(s, nil).Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesIngested)
	assert.Equal(t, 2, report.FilesSkippedUnparsed)
	assert.Equal(t, []string{"docs/README.md", "z/huge.py"}, report.UnparsedFiles)
}

func TestBuilder_GeneratesGraphID(t *testing.T) {
	req := scenarioRequest(t, "")
	report, err := NewBuilder(NewMemStore(), nil).Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, report.GraphID, 36)
}

func TestBuilder_RequiresProjectID(t *testing.T) {
	req := scenarioRequest(t, "g1")
	req.ProjectID = ""
	report, err := NewBuilder(NewMemStore(), nil).Ingest(context.Background(), req)
	require.Error(t, err)
	require.NotNil(t, report)
}

// ---------------------------------------------------------------------------
// Failure handling
// ---------------------------------------------------------------------------

// faultyStore fails any write of the node with id failNode.
type faultyStore struct {
	*MemStore
	failNode string
	err      error
}

func (f *faultyStore) Batch(ctx context.Context, fn func(Writer) error) error {
	return f.MemStore.Batch(ctx, func(w Writer) error {
		return fn(faultyWriter{Writer: w, f: f})
	})
}

type faultyWriter struct {
	Writer
	f *faultyStore
}

func (w faultyWriter) UpsertNode(ctx context.Context, n Node) error {
	if n.ID == w.f.failNode {
		return w.f.err
	}
	return w.Writer.UpsertNode(ctx, n)
}

func callerCalleeRequest() IngestRequest {
	return IngestRequest{
		GraphID:   "g1",
		ProjectID: "proj",
		Results: map[string]*parser.ParseResult{
			"a.py": {FilePath: "a.py", Language: parser.LangPython, Functions: []parser.FunctionLike{{Name: "run", CallSites: []string{"save"}}}},
			"b.py": {FilePath: "b.py", Language: parser.LangPython, Functions: []parser.FunctionLike{{Name: "save"}}},
		},
	}
}

func TestBuilder_WriteFailureContinues(t *testing.T) {
	s := &faultyStore{
		MemStore: NewMemStore(),
		failNode: FunctionKey("g1", "b.py", "save"),
		err:      &WriteError{Command: "MERGE (n:Function {id: $id})", Err: errors.New("disk full")},
	}
	report, err := NewBuilder(s, nil).Ingest(context.Background(), callerCalleeRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesIngested)
	assert.Equal(t, 1, report.WriteFailures)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "file:b.py", report.Failures[0].Unit)
	assert.Equal(t, "MERGE (n:Function {id: $id})", report.Failures[0].Command)
	assert.Contains(t, report.Failures[0].Error, "disk full")

	counts := graphCounts(t, s, "g1")
	assert.Equal(t, 1, counts["File"], "the failed unit is rolled back")
	assert.Zero(t, counts["CALLS"], "targets in failed files are not linked")
}

func TestBuilder_ConnectionLossAborts(t *testing.T) {
	s := &faultyStore{
		MemStore: NewMemStore(),
		failNode: FileKey("g1", "a.py"),
		err:      fmt.Errorf("dial tcp: %w", ErrStoreConnection),
	}
	report, err := NewBuilder(s, nil).Ingest(context.Background(), callerCalleeRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreConnection)
	require.NotNil(t, report)
	assert.Zero(t, report.FilesIngested)
	assert.Equal(t, "g1", report.GraphID)
}

func TestBuilder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(NewMemStore(), nil).Ingest(ctx, callerCalleeRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_ConcurrentSameGraph(t *testing.T) {
	s := NewMemStore()
	b := NewBuilder(s, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Ingest(context.Background(), callerCalleeRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts := graphCounts(t, s, "g1")
	assert.Equal(t, 2, counts["File"])
	assert.Equal(t, 1, counts["CALLS"])
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	// A different key is not blocked.
	unlockB := k.Lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}
	unlockA()
	<-acquired

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
