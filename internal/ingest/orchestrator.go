// Package ingest turns raw source files into a knowledge-graph snapshot:
// it resolves a parser per file, parses in parallel with a per-file
// timeout, and hands the results to the graph builder.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/parser"
)

// DefaultParseTimeout bounds the time spent parsing a single file.
const DefaultParseTimeout = 10 * time.Second

// File is one source file handed to the orchestrator.
type File struct {
	// Path is relative to the repository root, slash-separated.
	Path string
	// Language may be empty; it is then inferred from the extension.
	Language parser.Language
	Content  []byte
}

// Request describes one ingestion run.
type Request struct {
	GraphID   string
	ProjectID string
	Files     []File
}

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	// Workers limits concurrent parses; 0 means GOMAXPROCS.
	Workers int
	// ParseTimeout bounds each file's parse; 0 means DefaultParseTimeout.
	ParseTimeout time.Duration
	// Languages restricts ingestion to these tags; empty means all
	// registered adapters.
	Languages []parser.Language
	// Cache is consulted before parsing; nil disables caching.
	Cache *ParseCache
	// OnProgress is called synchronously from worker goroutines; it may be nil.
	OnProgress func(ProgressEvent)
	Logger     *zap.Logger
}

// Orchestrator parses files in parallel and writes them as one snapshot.
type Orchestrator struct {
	registry *parser.Registry
	builder  *graph.Builder
	opts     Options
	enabled  map[parser.Language]bool
	logger   *zap.Logger
}

// New returns an Orchestrator parsing with registry and writing with builder.
func New(registry *parser.Registry, builder *graph.Builder, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = DefaultParseTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var enabled map[parser.Language]bool
	if len(opts.Languages) > 0 {
		enabled = make(map[parser.Language]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			enabled[l] = true
		}
	}
	return &Orchestrator{
		registry: registry,
		builder:  builder,
		opts:     opts,
		enabled:  enabled,
		logger:   logger,
	}
}

// parseOutcome is the result of one file task.
type parseOutcome struct {
	path   string
	result *parser.ParseResult
	reason string // non-empty when the file is skipped
}

// Run parses every file in req and ingests the results. The returned
// report is non-nil whenever the builder ran; an error is returned when
// the context ends during parsing or the builder aborts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*graph.RunReport, error) {
	start := time.Now()
	files := dedupe(req.Files)

	for _, f := range files {
		o.emit(ProgressEvent{Path: f.Path, Status: ProgressPending})
	}

	outcomes := make([]parseOutcome, len(files))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = o.parseFile(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		runDuration.WithLabelValues("cancelled").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("ingest: parse phase: %w", err)
	}

	breq := graph.IngestRequest{
		GraphID:   req.GraphID,
		ProjectID: req.ProjectID,
		Results:   make(map[string]*parser.ParseResult, len(outcomes)),
	}
	for _, out := range outcomes {
		if out.reason != "" {
			breq.Unparsed = append(breq.Unparsed, out.path)
			continue
		}
		breq.Results[out.path] = out.result
	}

	report, err := o.builder.Ingest(ctx, breq)
	if report != nil {
		writeFailures.Add(float64(report.WriteFailures))
		o.emitWritten(breq, report)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	runDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	if err != nil {
		return report, fmt.Errorf("ingest: %w", err)
	}

	o.logger.Debug("ingest pipeline finished",
		zap.String("graph_id", report.GraphID),
		zap.Int("files", len(files)),
		zap.Int("unparsed", len(breq.Unparsed)),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// parseFile resolves an adapter for f and parses it under the per-file
// timeout, consulting the cache first.
func (o *Orchestrator) parseFile(ctx context.Context, f File) parseOutcome {
	out := parseOutcome{path: f.Path}

	lang := f.Language
	if lang == "" {
		lang, _ = parser.LanguageForPath(f.Path)
	}
	if o.enabled != nil && !o.enabled[lang] {
		return o.skip(out, skipDisabled, "language not enabled")
	}
	p, ok := o.registry.Get(lang)
	if !ok {
		return o.skip(out, skipUnsupported, parser.ErrUnsupportedLanguage.Error())
	}

	var key string
	if o.opts.Cache != nil {
		key = o.opts.Cache.Key(lang, f.Path, f.Content)
		if res, ok := o.opts.Cache.Get(key); ok {
			parseCacheLookups.WithLabelValues("hit").Inc()
			out.result = res
			o.emit(ProgressEvent{Path: f.Path, Status: ProgressParsed, Message: "cached"})
			return out
		}
		parseCacheLookups.WithLabelValues("miss").Inc()
	}

	res, err := parseWithTimeout(ctx, p, f, o.opts.ParseTimeout)
	if err != nil {
		o.logger.Warn("parse abandoned", zap.String("path", f.Path), zap.Error(err))
		return o.skip(out, skipTimeout, err.Error())
	}

	filesParsed.WithLabelValues(string(lang)).Inc()
	o.opts.Cache.Add(key, res)
	out.result = res
	o.emit(ProgressEvent{Path: f.Path, Status: ProgressParsed})
	return out
}

func (o *Orchestrator) skip(out parseOutcome, reason, msg string) parseOutcome {
	out.reason = reason
	filesSkipped.WithLabelValues(reason).Inc()
	o.emit(ProgressEvent{Path: out.path, Status: ProgressSkipped, Message: msg})
	return out
}

// parseWithTimeout runs the adapter on its own goroutine so a parse that
// overruns its deadline can be abandoned. The goroutine finishes in the
// background; its result is discarded.
func parseWithTimeout(ctx context.Context, p parser.Parser, f File, timeout time.Duration) (*parser.ParseResult, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *parser.ParseResult, 1)
	go func() {
		done <- p.Parse(pctx, f.Path, f.Content)
	}()

	select {
	case res := <-done:
		// A parse that observed the deadline before starting returns an
		// empty result; treat it as a timeout rather than an empty file.
		if err := pctx.Err(); err != nil && res.Empty() {
			return nil, err
		}
		return res, nil
	case <-pctx.Done():
		err := pctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("parse timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
}

// emitWritten reports the final state of each parsed file.
func (o *Orchestrator) emitWritten(req graph.IngestRequest, report *graph.RunReport) {
	failed := make(map[string]string)
	for _, f := range report.Failures {
		if path, ok := graph.FileOfUnit(f.Unit); ok {
			if _, seen := failed[path]; !seen {
				failed[path] = f.Error
			}
		}
	}
	paths := make([]string, 0, len(req.Results))
	for p := range req.Results {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if msg, ok := failed[p]; ok {
			o.emit(ProgressEvent{Path: p, Status: ProgressFailed, Message: msg})
			continue
		}
		o.emit(ProgressEvent{Path: p, Status: ProgressWritten})
	}
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(ev)
	}
}

// dedupe drops later files with an already-seen path and returns the
// remainder sorted by path.
func dedupe(files []File) []File {
	seen := make(map[string]bool, len(files))
	out := make([]File, 0, len(files))
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Collector is an OnProgress callback that records events; safe for
// concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []ProgressEvent
}

// Record appends ev.
func (c *Collector) Record(ev ProgressEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ProgressEvent(nil), c.events...)
}
