package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Biometria-se/grizzly-lsp/internal/render"
	"github.com/Biometria-se/grizzly-lsp/internal/rpc"
	"github.com/Biometria-se/grizzly-lsp/internal/server"
)

// Serve runs the request loop against codec until ctx is cancelled or the
// peer closes the stream. Every request is handled synchronously; the
// Server Core itself is where actual concurrency (rebuilds, diagnostics
// coalescing) happens.
func Serve(ctx context.Context, srv *server.Server, codec *rpc.Codec, log *zap.Logger) error {
	renderer := render.New()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := codec.ReadRequest()
		if err != nil {
			return err
		}

		resp := dispatch(ctx, srv, renderer, req)
		if resp == nil {
			continue // notification: no reply expected
		}
		if err := codec.WriteResponse(resp); err != nil {
			log.Sugar().Errorw("writing response", "method", req.Method, "error", err)
		}
	}
}

func dispatch(ctx context.Context, srv *server.Server, renderer *render.Renderer, req *rpc.Request) *rpc.Response {
	reply := func(result interface{}) *rpc.Response {
		if req.ID == nil {
			return nil
		}
		return &rpc.Response{ID: req.ID, Result: result}
	}
	fail := func(code int, err error) *rpc.Response {
		if req.ID == nil {
			return nil
		}
		return &rpc.Response{ID: req.ID, Error: &rpc.Error{Code: code, Message: err.Error()}}
	}

	switch req.Method {
	case "initialize":
		return reply(map[string]interface{}{
			"capabilities": map[string]interface{}{
				"textDocumentSync":   1,
				"completionProvider": map[string]interface{}{"triggerCharacters": []string{" ", "\"", "{"}},
				"hoverProvider":      true,
				"definitionProvider": true,
			},
		})

	case "textDocument/didOpen":
		var p didOpenParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		go func() {
			if _, err := srv.Open(ctx, p.TextDocument.URI, p.TextDocument.Text, p.TextDocument.Version); err != nil {
				_ = err // diagnostics publication is out of scope for this seam
			}
		}()
		return nil

	case "textDocument/didChange":
		var p didChangeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		if len(p.ContentChanges) == 0 {
			return nil
		}
		go func() {
			if _, err := srv.Change(ctx, p.TextDocument.URI, p.ContentChanges[0].Text, p.TextDocument.Version); err != nil {
				_ = err
			}
		}()
		return nil

	case "textDocument/didClose":
		var p didCloseParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		srv.Close(p.TextDocument.URI)
		return nil

	case "textDocument/completion":
		var p positionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		items := srv.Complete(p.TextDocument.URI, p.Position.Line, p.Position.Character)
		return reply(items)

	case "textDocument/hover":
		var p positionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		hover, ok := srv.Hover(p.TextDocument.URI, p.Position.Line)
		if !ok {
			return reply(nil)
		}
		return reply(hover)

	case "textDocument/definition":
		var p positionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		return reply(srv.Definition(p.TextDocument.URI, p.Position.Line, p.Position.Character))

	case "grizzly-ls/render-gherkin":
		var p renderGherkinParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fail(rpc.InvalidRequest, err)
		}
		rendered, ok, message := srv.RenderGherkin(p.TextDocument.URI, renderer, p.Variables)
		return reply(map[string]interface{}{"success": ok, "rendered": rendered, "message": message})

	case "shutdown":
		return reply(nil)

	case "exit":
		return nil

	default:
		return fail(rpc.MethodNotFound, fmt.Errorf("method not found: %s", req.Method))
	}
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type didOpenParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Text    string `json:"text"`
		Version int    `json:"version"`
	} `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version int    `json:"version"`
	} `json:"textDocument"`
	ContentChanges []struct {
		Text string `json:"text"`
	} `json:"contentChanges"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type positionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     struct {
		Line      int `json:"line"`
		Character int `json:"character"`
	} `json:"position"`
}

type renderGherkinParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Variables    map[string]string      `json:"variables"`
}
