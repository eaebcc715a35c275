// Package server implements the Server Core: workspace state,
// the open-document map, inventory rebuild sequencing, and request routing
// that glues the Pattern Normalizer, Step Inventory, Source Loader,
// Diagnostics Engine, Completion Engine, and Hover & Definition together
// behind a transport-agnostic API (internal/rpc drives it from stdio;
// tests drive it directly).
package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Biometria-se/grizzly-lsp/internal/completion"
	"github.com/Biometria-se/grizzly-lsp/internal/config"
	"github.com/Biometria-se/grizzly-lsp/internal/diagnostics"
	"github.com/Biometria-se/grizzly-lsp/internal/document"
	"github.com/Biometria-se/grizzly-lsp/internal/errs"
	"github.com/Biometria-se/grizzly-lsp/internal/hoverdef"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/loader"
	"github.com/Biometria-se/grizzly-lsp/internal/logging"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
	"github.com/Biometria-se/grizzly-lsp/internal/protocol"
	"github.com/Biometria-se/grizzly-lsp/internal/render"
	"github.com/Biometria-se/grizzly-lsp/internal/telemetry"
)

// RebuildState is the inventory rebuild state machine: a workspace starts idle, moves to loading on the first rebuild
// trigger, and settles on ready or failed.
type RebuildState string

const (
	StateIdle    RebuildState = "idle"
	StateLoading RebuildState = "loading"
	StateReady   RebuildState = "ready"
	StateFailed  RebuildState = "failed"
)

// rebuildKey is the singleflight key for inventory rebuilds: there is only
// ever one active inventory per Server, so every concurrent trigger
// coalesces onto the same in-flight rebuild.
const rebuildKey = "rebuild"

// Sources abstracts harvesting a fresh set of step definitions, so tests can
// substitute a fake without shelling out to Python (mirrors loader.Executor's
// testability goal one layer up).
type Sources interface {
	Harvest(ctx context.Context, onProgress func(stage, message string)) ([]*inventory.Definition, error)
}

// LoaderSources is the production Sources backed by internal/loader.
type LoaderSources struct {
	Runner     loader.Executor
	PythonPath string
	WorkDir    string
	ModulePath string
	Types      pattern.ParseTypeRegistry
}

// Harvest runs the real Python harvester.
func (s LoaderSources) Harvest(ctx context.Context, onProgress func(stage, message string)) ([]*inventory.Definition, error) {
	return loader.Harvest(ctx, s.Runner, s.PythonPath, s.WorkDir, s.ModulePath, s.Types, onProgress)
}

// Server holds one workspace's state: the document map, the active
// inventory, and the config it was last (re)built from.
type Server struct {
	Sources    Sources
	PayloadDir string
	BuildVersion string

	inv   *inventory.Inventory
	diags *diagnostics.Engine
	cfg   *config.Watcher

	group        singleflight.Group
	mu           sync.RWMutex
	state        RebuildState
	lastErr      error
	documents    map[string]*document.Document

	progressMu sync.Mutex
	onProgress func(token, stage, message string)
}

// New constructs a Server around inv (created with inventory.New()) and cfg
// (created with config.NewWatcher). Both may be swapped independently of
// the Server's own lifecycle by their owning packages.
func New(inv *inventory.Inventory, cfg *config.Watcher, sources Sources, payloadDir, buildVersion string) *Server {
	return &Server{
		Sources:      sources,
		PayloadDir:   payloadDir,
		BuildVersion: buildVersion,
		inv:          inv,
		diags:        diagnostics.NewEngine(inv),
		cfg:          cfg,
		state:        StateIdle,
		documents:    map[string]*document.Document{},
	}
}

// OnProgress registers a callback invoked with a fresh rebuild token and
// each stage/message the Source Loader reports.
func (s *Server) OnProgress(fn func(token, stage, message string)) {
	s.progressMu.Lock()
	s.onProgress = fn
	s.progressMu.Unlock()
}

// State returns the current rebuild state and, if StateFailed, the error
// that caused it.
func (s *Server) State() (RebuildState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.lastErr
}

// Inventory returns the workspace's active Step Inventory.
func (s *Server) Inventory() *inventory.Inventory {
	return s.inv
}

// Rebuild triggers a step-inventory rebuild, coalescing with any in-flight
// rebuild via singleflight keyed by a constant (there is only ever one
// active inventory per Server). Every caller, whether it triggered the
// rebuild or merely arrived while one was in flight, observes the same
// terminal state.
func (s *Server) Rebuild(ctx context.Context) error {
	if err := s.cfg.Get().CheckCoreVersion(s.BuildVersion); err != nil {
		s.setState(StateFailed, err)
		return err
	}

	token := uuid.NewString()
	s.setState(StateLoading, nil)

	_, err, _ := s.group.Do(rebuildKey, func() (interface{}, error) {
		defs, hErr := s.Sources.Harvest(ctx, func(stage, message string) {
			s.progressMu.Lock()
			cb := s.onProgress
			s.progressMu.Unlock()
			if cb != nil {
				cb(token, stage, message)
			}
		})
		if hErr != nil {
			return nil, hErr
		}
		s.inv.Build(defs)
		return nil, nil
	})

	if err != nil {
		s.setState(StateFailed, err)
		if serr, ok := err.(*errs.Error); ok {
			telemetry.Capture(serr)
		}
		logging.Named("server").Sugar().Errorw("inventory rebuild failed", "error", err)
		return err
	}
	s.setState(StateReady, nil)
	return nil
}

func (s *Server) setState(state RebuildState, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()
}

// Open registers a newly opened document and runs diagnostics for it.
func (s *Server) Open(ctx context.Context, uri, text string, version int) (*diagnostics.Result, error) {
	doc := document.New(uri, text, version)
	return s.analyze(ctx, doc)
}

// Change replaces the document at uri with new text/version and re-runs
// diagnostics, coalescing with any in-flight run for the same URI.
func (s *Server) Change(ctx context.Context, uri, text string, version int) (*diagnostics.Result, error) {
	doc := document.New(uri, text, version)
	s.diags.Submit(doc)
	return s.analyze(ctx, doc)
}

// Close forgets a document; it no longer participates in completion/hover
// requests or further diagnostics runs.
func (s *Server) Close(uri string) {
	s.mu.Lock()
	delete(s.documents, uri)
	s.mu.Unlock()
}

func (s *Server) analyze(ctx context.Context, doc *document.Document) (*diagnostics.Result, error) {
	res, err := s.diags.Run(ctx, s.cfg.Get().VariableRegexes, doc)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.documents[doc.URI] = res.Document
	s.mu.Unlock()
	return res, nil
}

func (s *Server) document(uri string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[uri]
	return doc, ok
}

// Complete serves a textDocument/completion request for the document at uri.
func (s *Server) Complete(uri string, line, column int) []protocol.CompletionItem {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return completion.Complete(s.inv, doc, line, column)
}

// Hover serves a textDocument/hover request.
func (s *Server) Hover(uri string, line int) (*protocol.Hover, bool) {
	doc, ok := s.document(uri)
	if !ok {
		return nil, false
	}
	return hoverdef.Hover(s.inv, doc, line)
}

// Definition serves a textDocument/definition request.
func (s *Server) Definition(uri string, line, column int) []protocol.DefinitionResult {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	return hoverdef.Definition(s.inv, doc, line, column, s.PayloadDir)
}

// RenderGherkin serves the grizzly-ls/render-gherkin custom request (spec
// §6): renders doc's template tags against its declared variables, without
// re-running diagnostics.
func (s *Server) RenderGherkin(uri string, renderer *render.Renderer, vars map[string]string) (rendered string, success bool, message string) {
	doc, ok := s.document(uri)
	if !ok {
		return "", false, "document not open"
	}
	return renderer.RenderedOrDiagnostic(doc.Text, vars)
}

// RebuildAll is a convenience used by the CLI/tests to run a rebuild on an
// errgroup-backed worker.
func RebuildAll(ctx context.Context, servers ...*Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			return srv.Rebuild(ctx)
		})
	}
	return g.Wait()
}
