package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Biometria-se/grizzly-lsp/internal/config"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
	"github.com/Biometria-se/grizzly-lsp/internal/render"
	"github.com/Biometria-se/grizzly-lsp/internal/rpc"
	"github.com/Biometria-se/grizzly-lsp/internal/server"
)

type fakeSources struct{ defs []*inventory.Definition }

func (f fakeSources) Harvest(ctx context.Context, onProgress func(stage, message string)) ([]*inventory.Definition, error) {
	return f.defs, nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	def, err := pattern.Normalize(`a user named "{name}"`, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	cfg, err := config.NewWatcher("")
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	srv := server.New(inventory.New(), cfg, fakeSources{defs: []*inventory.Definition{{
		Verb:               inventory.Given,
		Expression:         `a user named "{name}"`,
		CleanExpression:    def.CleanExpression,
		RegexPatterns:      def.RegexPatterns,
		ExpressionVariants: def.ExpressionVariants,
		Help:               "registers a user",
	}}}, t.TempDir(), "")
	if err := srv.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return srv
}

func TestDispatch_InitializeReturnsCapabilities(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(context.Background(), srv, render.New(), &rpc.Request{ID: 1, Method: "initialize"})
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected a successful initialize response, got %+v", resp)
	}
}

func TestDispatch_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(context.Background(), srv, render.New(), &rpc.Request{ID: 1, Method: "textDocument/bogus"})
	if resp == nil || resp.Error == nil || resp.Error.Code != rpc.MethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp)
	}
}

func TestDispatch_DidOpenIsANotificationWithNoResponse(t *testing.T) {
	srv := newTestServer(t)
	params, _ := json.Marshal(map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": "file:///f.feature", "text": "Feature: x\n", "version": 1},
	})
	resp := dispatch(context.Background(), srv, render.New(), &rpc.Request{Method: "textDocument/didOpen", Params: params})
	if resp != nil {
		t.Fatalf("expected no response for a notification, got %+v", resp)
	}
}

func TestDispatch_CompletionAfterOpenReturnsItems(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.Open(context.Background(), "file:///f.feature", "Feature: x\n", 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	params, _ := json.Marshal(map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": "file:///f.feature"},
		"position":     map[string]interface{}{"line": 0, "character": 0},
	})
	resp := dispatch(context.Background(), srv, render.New(), &rpc.Request{ID: 2, Method: "textDocument/completion", Params: params})
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected a successful completion response, got %+v", resp)
	}
}
