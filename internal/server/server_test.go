package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Biometria-se/grizzly-lsp/internal/config"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
)

// TestMain verifies that a server's rebuild coalescing (singleflight) and
// progress callbacks never leave a stray goroutine running past the test
// that started it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSources struct {
	defs []*inventory.Definition
	err  error
	runs int
}

func (f *fakeSources) Harvest(ctx context.Context, onProgress func(stage, message string)) ([]*inventory.Definition, error) {
	f.runs++
	if onProgress != nil {
		onProgress("harvesting", "collecting step definitions")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.defs, nil
}

func newTestWatcher(t *testing.T) *config.Watcher {
	t.Helper()
	w, err := config.NewWatcher("")
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w
}

func mustDef(t *testing.T, verb inventory.Verb, expr string) *inventory.Definition {
	t.Helper()
	n, err := pattern.Normalize(expr, nil)
	if err != nil {
		t.Fatalf("normalizing: %v", err)
	}
	return &inventory.Definition{
		Verb:               verb,
		Expression:         expr,
		CleanExpression:    n.CleanExpression,
		RegexPatterns:      n.RegexPatterns,
		ExpressionVariants: n.ExpressionVariants,
		Help:               "help",
	}
}

func TestRebuild_SucceedsAndReachesReady(t *testing.T) {
	srv := New(inventory.New(), newTestWatcher(t), &fakeSources{defs: []*inventory.Definition{
		mustDef(t, inventory.Given, `a user named "{name}"`),
	}}, t.TempDir(), "")

	require.NoError(t, srv.Rebuild(context.Background()))
	state, rebuildErr := srv.State()
	assert.Equal(t, StateReady, state)
	assert.NoError(t, rebuildErr)
}

func TestRebuild_FailureReachesFailedState(t *testing.T) {
	srv := New(inventory.New(), newTestWatcher(t), &fakeSources{err: errors.New("boom")}, t.TempDir(), "")

	require.Error(t, srv.Rebuild(context.Background()))
	state, rebuildErr := srv.State()
	assert.Equal(t, StateFailed, state)
	assert.Error(t, rebuildErr)
}

func TestRebuild_ConcurrentCallsCoalesceOntoOneHarvest(t *testing.T) {
	sources := &fakeSources{defs: []*inventory.Definition{mustDef(t, inventory.Given, "a thing happens")}}
	srv := New(inventory.New(), newTestWatcher(t), sources, t.TempDir(), "")

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- srv.Rebuild(context.Background()) }()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("unexpected rebuild error: %v", err)
		}
	}
	if sources.runs == 0 {
		t.Fatalf("expected at least one harvest to run")
	}
}

func TestOpenAndComplete_ServesCompletionsFromOpenDocument(t *testing.T) {
	def := mustDef(t, inventory.Given, `a user named "{name}"`)
	srv := New(inventory.New(), newTestWatcher(t), &fakeSources{defs: []*inventory.Definition{def}}, t.TempDir(), "")
	if err := srv.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if _, err := srv.Open(context.Background(), "file:///f.feature", "Feature: x\n", 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	items := srv.Complete("file:///f.feature", 0, 0)
	if len(items) == 0 {
		t.Fatalf("expected at least one completion item for a fresh Feature line")
	}
}

func TestComplete_UnknownDocumentReturnsNil(t *testing.T) {
	srv := New(inventory.New(), newTestWatcher(t), &fakeSources{}, t.TempDir(), "")
	if items := srv.Complete("file:///missing.feature", 0, 0); items != nil {
		t.Fatalf("expected nil for an unopened document, got %+v", items)
	}
}

func TestClose_RemovesDocumentFromFurtherRequests(t *testing.T) {
	srv := New(inventory.New(), newTestWatcher(t), &fakeSources{}, t.TempDir(), "")
	if _, err := srv.Open(context.Background(), "file:///f.feature", "Feature: x\n", 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	srv.Close("file:///f.feature")
	if _, ok := srv.Hover("file:///f.feature", 0); ok {
		t.Fatalf("expected Hover to report no match after Close")
	}
}
