package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/parser"
)

// IngestRequest is one full snapshot of a repository, already parsed.
type IngestRequest struct {
	GraphID   string // generated with NewGraphID when empty
	ProjectID string
	Results   map[string]*parser.ParseResult // keyed by file path
	Unparsed  []string                       // files no adapter could parse
}

// UnitFailure is one write unit that failed without aborting the run.
type UnitFailure struct {
	Unit    string `json:"unit"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

// RunReport summarizes one Ingest call.
type RunReport struct {
	GraphID              string        `json:"graph_id"`
	ProjectID            string        `json:"project_id"`
	FilesIngested        int           `json:"files_ingested"`
	FilesSkippedUnparsed int           `json:"files_skipped_unparsed"`
	UnparsedFiles        []string      `json:"unparsed_files"`
	WriteFailures        int           `json:"write_failures"`
	Failures             []UnitFailure `json:"failures"`
	NodesWritten         int           `json:"nodes_written"`
	RelationshipsWritten int           `json:"relationships_written"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
}

// Builder maps parse results onto graph nodes and relationships.
type Builder struct {
	store  Store
	logger *zap.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// NewBuilder returns a Builder writing to store. A nil logger disables logging.
func NewBuilder(store Store, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:  store,
		logger: logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// classEntry and funcEntry are collect-phase index entries.
type classEntry struct {
	key      string
	filePath string
}

type funcEntry struct {
	key      string
	filePath string
}

// snapshot is the in-memory index built by the collect phase.
type snapshot struct {
	graphID string
	paths   []string
	results map[string]*parser.ParseResult
	classes map[string][]classEntry // simple name -> declarations
	funcs   map[string][]funcEntry  // simple name -> functions and methods
	owners  map[string]string       // class or function key -> file path
	written map[string]bool         // files whose write unit committed
	imports *ImportResolver
}

// Ingest writes req as one graph snapshot. Runs for the same graph id are
// serialized. A store connection failure aborts the run and is returned
// together with the partial report; any other unit failure is recorded in
// the report and the run continues.
func (b *Builder) Ingest(ctx context.Context, req IngestRequest) (*RunReport, error) {
	started := b.now()
	if req.GraphID == "" {
		req.GraphID = NewGraphID()
	}
	report := &RunReport{
		GraphID:       req.GraphID,
		ProjectID:     req.ProjectID,
		UnparsedFiles: []string{},
		Failures:      []UnitFailure{},
		StartedAt:     started,
	}
	defer func() { report.Duration = b.now().Sub(started) }()

	if req.ProjectID == "" {
		return report, errors.New("graph: ingest: project id is required")
	}

	unlock := b.locks.Lock(req.GraphID)
	defer unlock()

	snap := b.collect(req, report)

	log := b.logger.With(zap.String("graph_id", req.GraphID), zap.String("project_id", req.ProjectID))
	log.Info("ingest started", zap.Int("files", len(snap.paths)), zap.Int("unparsed", report.FilesSkippedUnparsed))

	// Phase 2: write.
	if _, err := b.unit(ctx, report, "project:"+req.GraphID, func(w Writer, c *counter) error {
		return c.node(ctx, w, Node{
			Label:       LabelProject,
			ID:          ProjectKey(req.GraphID),
			Props:       map[string]any{"graph_id": req.GraphID, "project_id": req.ProjectID},
			CreateProps: map[string]any{"created_at": started.UnixNano()},
		})
	}); err != nil {
		return report, err
	}

	for _, path := range snap.paths {
		res := snap.results[path]
		ok, err := b.unit(ctx, report, "file:"+path, func(w Writer, c *counter) error {
			return b.writeFile(ctx, w, c, snap, res)
		})
		if err != nil {
			return report, err
		}
		if ok {
			snap.written[path] = true
			report.FilesIngested++
		}
	}

	// Phase 3: link.
	for _, path := range snap.paths {
		if !snap.written[path] {
			continue
		}
		res := snap.results[path]
		if _, err := b.unit(ctx, report, "link:"+path, func(w Writer, c *counter) error {
			return b.linkFile(ctx, w, c, snap, res)
		}); err != nil {
			return report, err
		}
	}

	log.Info("ingest finished",
		zap.Int("files_ingested", report.FilesIngested),
		zap.Int("write_failures", report.WriteFailures),
		zap.Int("nodes_written", report.NodesWritten),
		zap.Int("relationships_written", report.RelationshipsWritten),
		zap.Duration("duration", b.now().Sub(started)),
	)
	return report, nil
}

// collect is phase 1: it indexes every class and function by simple name.
func (b *Builder) collect(req IngestRequest, report *RunReport) *snapshot {
	snap := &snapshot{
		graphID: req.GraphID,
		results: make(map[string]*parser.ParseResult, len(req.Results)),
		classes: make(map[string][]classEntry),
		funcs:   make(map[string][]funcEntry),
		owners:  make(map[string]string),
		written: make(map[string]bool),
	}
	unparsed := append([]string{}, req.Unparsed...)
	for path, res := range req.Results {
		if res == nil {
			unparsed = append(unparsed, path)
			continue
		}
		if res.FilePath != path {
			cp := *res
			cp.FilePath = path
			res = &cp
		}
		snap.results[path] = res
		snap.paths = append(snap.paths, path)
	}
	sort.Strings(snap.paths)
	sort.Strings(unparsed)
	report.UnparsedFiles = unparsed
	report.FilesSkippedUnparsed = len(unparsed)
	snap.imports = NewImportResolver(snap.paths)

	for _, path := range snap.paths {
		res := snap.results[path]
		for _, cls := range res.Classes {
			ck := ClassKey(req.GraphID, path, cls.FullName())
			snap.classes[cls.Name] = appendClass(snap.classes[cls.Name], classEntry{key: ck, filePath: path})
			snap.owners[ck] = path
			for _, m := range cls.Methods {
				fk := FunctionKey(req.GraphID, path, cls.FullName()+"."+m.Name)
				snap.funcs[m.Name] = appendFunc(snap.funcs[m.Name], funcEntry{key: fk, filePath: path})
				snap.owners[fk] = path
			}
		}
		for _, fn := range res.Functions {
			fk := FunctionKey(req.GraphID, path, fn.FullName())
			snap.funcs[fn.Name] = appendFunc(snap.funcs[fn.Name], funcEntry{key: fk, filePath: path})
			snap.owners[fk] = path
		}
	}
	return snap
}

func appendClass(list []classEntry, e classEntry) []classEntry {
	for _, x := range list {
		if x.key == e.key {
			return list
		}
	}
	return append(list, e)
}

func appendFunc(list []funcEntry, e funcEntry) []funcEntry {
	for _, x := range list {
		if x.key == e.key {
			return list
		}
	}
	return append(list, e)
}

// writeFile is the write unit for one file.
func (b *Builder) writeFile(ctx context.Context, w Writer, c *counter, snap *snapshot, res *parser.ParseResult) error {
	gid := snap.graphID
	path := res.FilePath
	fileKey := FileKey(gid, path)

	if err := c.node(ctx, w, Node{Label: LabelFile, ID: fileKey, Props: map[string]any{
		"graph_id": gid,
		"path":     path,
		"language": string(res.Language),
		"loc":      res.LOC,
	}}); err != nil {
		return err
	}
	if err := c.rel(ctx, w, NewRelationship(RelContains, ProjectKey(gid), fileKey, graphProps(gid))); err != nil {
		return err
	}

	for _, cls := range res.Classes {
		classKey := ClassKey(gid, path, cls.FullName())
		methods := collapseOverloads(cls.Methods)
		if err := c.node(ctx, w, Node{Label: LabelClass, ID: classKey, Props: b.classProps(snap, res, cls, len(methods))}); err != nil {
			return err
		}
		if err := c.rel(ctx, w, NewRelationship(RelContains, fileKey, classKey, graphProps(gid))); err != nil {
			return err
		}
		for _, m := range methods {
			qn := cls.FullName() + "." + m.Name
			fk := FunctionKey(gid, path, qn)
			if err := c.node(ctx, w, Node{Label: LabelFunction, ID: fk, Props: functionProps(gid, path, qn, cls.FullName(), m)}); err != nil {
				return err
			}
			if err := c.rel(ctx, w, NewRelationship(RelContains, classKey, fk, graphProps(gid))); err != nil {
				return err
			}
		}
	}

	for _, fn := range collapseOverloads(res.Functions) {
		fk := FunctionKey(gid, path, fn.FullName())
		if err := c.node(ctx, w, Node{Label: LabelFunction, ID: fk, Props: functionProps(gid, path, fn.FullName(), "", fn)}); err != nil {
			return err
		}
		if err := c.rel(ctx, w, NewRelationship(RelContains, fileKey, fk, graphProps(gid))); err != nil {
			return err
		}
	}

	for _, imp := range res.Imports {
		if imp.ModulePath == "" {
			continue
		}
		ik := ImportKey(gid, imp.ModulePath)
		if err := c.node(ctx, w, Node{Label: LabelImport, ID: ik, Props: map[string]any{
			"graph_id":    gid,
			"module_path": imp.ModulePath,
		}}); err != nil {
			return err
		}
		props := map[string]any{"graph_id": gid, "alias": imp.Alias}
		if target, ok := snap.imports.Resolve(imp.ModulePath, path, res.Language); ok {
			props["resolved_path"] = target
		}
		if err := c.rel(ctx, w, NewRelationship(RelImports, fileKey, ik, props)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) classProps(snap *snapshot, res *parser.ParseResult, cls parser.ClassLike, methodCount int) map[string]any {
	self := ClassKey(snap.graphID, res.FilePath, cls.FullName())
	var unresolved []string
	for _, st := range supertypes(cls) {
		if len(snap.classTargets(st, self)) == 0 {
			unresolved = append(unresolved, st)
		}
	}
	attrs := make([]string, 0, len(cls.Attributes))
	for _, a := range cls.Attributes {
		attrs = append(attrs, typed(a))
	}
	return map[string]any{
		"graph_id":              snap.graphID,
		"name":                  cls.Name,
		"kind":                  string(cls.Kind),
		"file_path":             res.FilePath,
		"qualified_name":        cls.FullName(),
		"superclass":            cls.Superclass,
		"interfaces":            JoinList(cls.Interfaces),
		"unresolved_supertypes": JoinList(unresolved),
		"modifiers":             JoinList(cls.Modifiers),
		"attributes":            JoinList(attrs),
		"method_count":          methodCount,
		"start_line":            cls.Range.StartLine,
		"end_line":              cls.Range.EndLine,
	}
}

func functionProps(gid, path, qualifiedName, owner string, fn parser.FunctionLike) map[string]any {
	params := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		params = append(params, typed(p))
	}
	return map[string]any{
		"graph_id":       gid,
		"name":           fn.Name,
		"file_path":      path,
		"qualified_name": qualifiedName,
		"owner_class":    owner,
		"is_method":      owner != "",
		"parameters":     JoinList(params),
		"return_type":    fn.ReturnType,
		"modifiers":      JoinList(fn.Modifiers),
		"start_line":     fn.Range.StartLine,
		"end_line":       fn.Range.EndLine,
	}
}

func graphProps(gid string) map[string]any {
	return map[string]any{"graph_id": gid}
}

// typed renders a variable as "name:type", or "name" when untyped.
func typed(v parser.Variable) string {
	if v.DeclaredType == "" {
		return v.Name
	}
	return v.Name + ":" + v.DeclaredType
}

// collapseOverloads merges functions sharing a qualified name into one
// entry: the first declaration wins and call sites are unioned.
func collapseOverloads(fns []parser.FunctionLike) []parser.FunctionLike {
	out := make([]parser.FunctionLike, 0, len(fns))
	index := make(map[string]int, len(fns))
	for _, fn := range fns {
		i, ok := index[fn.FullName()]
		if !ok {
			index[fn.FullName()] = len(out)
			fn.CallSites = append([]string{}, fn.CallSites...)
			out = append(out, fn)
			continue
		}
		for _, cs := range fn.CallSites {
			if !containsName(out[i].CallSites, cs) {
				out[i].CallSites = append(out[i].CallSites, cs)
			}
		}
	}
	return out
}

func containsName(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func supertypes(cls parser.ClassLike) []string {
	var out []string
	if cls.Superclass != "" {
		out = append(out, cls.Superclass)
	}
	return append(out, cls.Interfaces...)
}

// classTargets returns the keys of classes matching a supertype reference,
// excluding self.
func (s *snapshot) classTargets(ref, self string) []string {
	var out []string
	for _, e := range s.classes[parser.SimpleTypeName(ref)] {
		if e.key != self {
			out = append(out, e.key)
		}
	}
	return out
}

// linkFile is the link unit for one file: inheritance and call edges.
func (b *Builder) linkFile(ctx context.Context, w Writer, c *counter, snap *snapshot, res *parser.ParseResult) error {
	gid := snap.graphID
	path := res.FilePath

	link := func(t RelType, from string, targets []string) error {
		for _, to := range targets {
			if !snap.written[snap.owners[to]] {
				continue
			}
			if err := c.rel(ctx, w, NewRelationship(t, from, to, graphProps(gid))); err != nil {
				return err
			}
		}
		return nil
	}

	for _, cls := range res.Classes {
		self := ClassKey(gid, path, cls.FullName())
		if cls.Superclass != "" {
			if err := link(RelExtends, self, snap.classTargets(cls.Superclass, self)); err != nil {
				return err
			}
		}
		for _, iface := range cls.Interfaces {
			if err := link(RelImplements, self, snap.classTargets(iface, self)); err != nil {
				return err
			}
		}
		for _, m := range collapseOverloads(cls.Methods) {
			from := FunctionKey(gid, path, cls.FullName()+"."+m.Name)
			if err := link(RelCalls, from, snap.callTargets(m.CallSites)); err != nil {
				return err
			}
		}
	}
	for _, fn := range collapseOverloads(res.Functions) {
		from := FunctionKey(gid, path, fn.FullName())
		if err := link(RelCalls, from, snap.callTargets(fn.CallSites)); err != nil {
			return err
		}
	}
	return nil
}

// callTargets returns every function whose simple name equals a call-site
// name. Resolution is over-inclusive: same-named functions in unrelated
// files all match.
func (s *snapshot) callTargets(calls []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range calls {
		for _, e := range s.funcs[name] {
			if !seen[e.key] {
				seen[e.key] = true
				out = append(out, e.key)
			}
		}
	}
	return out
}

// counter tallies writes made inside one unit. It is reset at the start
// of each attempt because Neo4j may retry a transaction function.
type counter struct {
	nodes, rels int
}

func (c *counter) node(ctx context.Context, w Writer, n Node) error {
	if err := w.UpsertNode(ctx, n); err != nil {
		return err
	}
	c.nodes++
	return nil
}

func (c *counter) rel(ctx context.Context, w Writer, r Relationship) error {
	if err := w.UpsertRelationship(ctx, r); err != nil {
		return err
	}
	c.rels++
	return nil
}

// unit runs one write transaction and reports whether it committed. It
// returns a non-nil error only when the run must abort.
func (b *Builder) unit(ctx context.Context, report *RunReport, name string, fn func(Writer, *counter) error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("graph: ingest %s: %w", report.GraphID, err)
	}
	var c counter
	err := b.store.Batch(ctx, func(w Writer) error {
		c = counter{}
		return fn(w, &c)
	})
	if err == nil {
		report.NodesWritten += c.nodes
		report.RelationshipsWritten += c.rels
		return true, nil
	}
	if errors.Is(err, ErrStoreConnection) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		b.logger.Error("ingest aborted", zap.String("unit", name), zap.Error(err))
		return false, fmt.Errorf("graph: ingest %s: %w", report.GraphID, err)
	}
	cmd := commandOf(err)
	b.logger.Warn("write unit failed",
		zap.String("unit", name),
		zap.String("command", cmd),
		zap.Error(err),
	)
	report.WriteFailures++
	report.Failures = append(report.Failures, UnitFailure{Unit: name, Command: cmd, Error: err.Error()})
	return false, nil
}

// FileOfUnit returns the file path of a per-file write or link unit name
// as recorded in UnitFailure.Unit.
func FileOfUnit(unit string) (string, bool) {
	for _, prefix := range []string{"file:", "link:"} {
		if path, ok := strings.CutPrefix(unit, prefix); ok {
			return path, true
		}
	}
	return "", false
}

// keyedMutex serializes callers per key. Entries are dropped once no
// caller holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
