package ingest

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
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

func scenarioFiles() []File {
	return []File{
		{Path: "pkg/foo.py", Content: []byte(fooPy)},
		{Path: "geom/point.c", Language: parser.LangC, Content: []byte(pointC)},
		{Path: "README.md", Content: []byte("# readme")},
	}
}

// countingParser counts Parse calls made through an inner adapter.
type countingParser struct {
	parser.Parser
	calls atomic.Int32
}

func (c *countingParser) Parse(ctx context.Context, path string, src []byte) *parser.ParseResult {
	c.calls.Add(1)
	return c.Parser.Parse(ctx, path, src)
}

// blockingParser never finishes until released.
type blockingParser struct {
	release chan struct{}
}

func (blockingParser) Language() parser.Language { return parser.LangGo }

func (b blockingParser) Parse(_ context.Context, path string, _ []byte) *parser.ParseResult {
	<-b.release
	return &parser.ParseResult{FilePath: path, Language: parser.LangGo}
}

func TestOrchestrator_Run(t *testing.T) {
	store := graph.NewMemStore()
	var col Collector
	o := New(parser.Default(), graph.NewBuilder(store, nil), Options{Workers: 2, OnProgress: col.Record})

	report, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: scenarioFiles()})
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesIngested)
	assert.Equal(t, []string{"README.md"}, report.UnparsedFiles)
	assert.Zero(t, report.WriteFailures)

	sum, err := graph.NewQueryService(store).ProjectSummary(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalFiles)
	assert.Equal(t, 2, sum.TotalClasses)
	assert.Equal(t, 3, sum.TotalFunctionsMethods)
	assert.InDelta(t, 1.5, sum.AverageFunctionsPerFile, 1e-9)

	statuses := map[string][]ProgressStatus{}
	for _, ev := range col.Events() {
		statuses[ev.Path] = append(statuses[ev.Path], ev.Status)
	}
	assert.Equal(t, []ProgressStatus{ProgressPending, ProgressParsed, ProgressWritten}, statuses["pkg/foo.py"])
	assert.Equal(t, []ProgressStatus{ProgressPending, ProgressSkipped}, statuses["README.md"])
}

func TestOrchestrator_LanguageFilter(t *testing.T) {
	store := graph.NewMemStore()
	o := New(parser.Default(), graph.NewBuilder(store, nil), Options{Languages: []parser.Language{parser.LangC}})

	report, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: scenarioFiles()})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesIngested)
	assert.ElementsMatch(t, []string{"README.md", "pkg/foo.py"}, report.UnparsedFiles)
}

func TestOrchestrator_ParseCache(t *testing.T) {
	counting := &countingParser{Parser: parser.NewPythonParser()}
	reg := parser.NewRegistry()
	reg.Register(counting)

	cache, err := NewParseCache(16)
	require.NoError(t, err)
	o := New(reg, graph.NewBuilder(graph.NewMemStore(), nil), Options{Cache: cache})

	files := []File{{Path: "pkg/foo.py", Content: []byte(fooPy)}}
	for i := 0; i < 2; i++ {
		_, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: files})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, counting.calls.Load(), "second run served from cache")
	assert.Equal(t, 1, cache.Len())

	files[0].Content = []byte(fooPy + "\ndef extra():\n    pass\n")
	_, err = o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: files})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counting.calls.Load(), "changed content is re-parsed")
}

func TestOrchestrator_ParseTimeout(t *testing.T) {
	blocker := blockingParser{release: make(chan struct{})}
	t.Cleanup(func() { close(blocker.release) })

	reg := parser.Default()
	reg.Register(blocker)

	var col Collector
	o := New(reg, graph.NewBuilder(graph.NewMemStore(), nil), Options{
		ParseTimeout: 20 * time.Millisecond,
		OnProgress:   col.Record,
	})

	report, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: []File{
		{Path: "slow.go", Content: []byte("package slow")},
		{Path: "pkg/foo.py", Content: []byte(fooPy)},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"slow.go"}, report.UnparsedFiles)
	assert.Equal(t, 1, report.FilesIngested)

	var skipped []ProgressEvent
	for _, ev := range col.Events() {
		if ev.Status == ProgressSkipped {
			skipped = append(skipped, ev)
		}
	}
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Message, "timed out")
}

func TestOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(parser.Default(), graph.NewBuilder(graph.NewMemStore(), nil), Options{})
	report, err := o.Run(ctx, Request{GraphID: "g1", ProjectID: "proj", Files: scenarioFiles()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestOrchestrator_DuplicatePaths(t *testing.T) {
	o := New(parser.Default(), graph.NewBuilder(graph.NewMemStore(), nil), Options{})
	report, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: []File{
		{Path: "a.py", Content: []byte("def first():\n    pass\n")},
		{Path: "a.py", Content: []byte("def second():\n    pass\n")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesIngested)
}

func TestProgressPrinter_WritesEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	pp := NewProgressPrinter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				pp.Print(ProgressEvent{Path: "x.go", Status: ProgressParsed})
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, l := range lines {
		assert.Equal(t, "  ● x.go parsed", l)
	}
}

func TestProgressPrinter_DuringRun(t *testing.T) {
	var buf bytes.Buffer
	o := New(parser.Default(), graph.NewBuilder(graph.NewMemStore(), nil), Options{
		OnProgress: NewProgressPrinter(&buf).Print,
	})
	_, err := o.Run(context.Background(), Request{GraphID: "g1", ProjectID: "proj", Files: []File{
		{Path: "pkg/foo.py", Content: []byte(fooPy)},
		{Path: "README.md", Content: []byte("# readme\n")},
	}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "  ○ pkg/foo.py (pending)\n")
	assert.Contains(t, out, "  ✓ pkg/foo.py written\n")
	assert.Contains(t, out, "  - README.md skipped: ")
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		ev   ProgressEvent
		want string
	}{
		{ProgressEvent{Path: "a.go", Status: ProgressPending}, "  ○ a.go (pending)"},
		{ProgressEvent{Path: "a.go", Status: ProgressParsed}, "  ● a.go parsed"},
		{ProgressEvent{Path: "a.md", Status: ProgressSkipped, Message: "unsupported language"}, "  - a.md skipped: unsupported language"},
		{ProgressEvent{Path: "a.go", Status: ProgressWritten}, "  ✓ a.go written"},
		{ProgressEvent{Path: "a.go", Status: ProgressFailed, Message: "boom"}, "  ✗ a.go failed: boom"},
		{ProgressEvent{Path: "a.go", Status: "weird"}, "  ? a.go (unknown status)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Status), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProgress(tt.ev))
		})
	}
}

func TestParseCache_Key(t *testing.T) {
	c, err := NewParseCache(0)
	require.NoError(t, err)

	a := c.Key(parser.LangGo, "a.go", []byte("package a"))
	assert.Equal(t, a, c.Key(parser.LangGo, "a.go", []byte("package a")))
	assert.NotEqual(t, a, c.Key(parser.LangGo, "a.go", []byte("package b")))
	assert.NotEqual(t, a, c.Key(parser.LangGo, "b.go", []byte("package a")))

	var nilCache *ParseCache
	_, ok := nilCache.Get(a)
	assert.False(t, ok)
	assert.Zero(t, nilCache.Len())
}
