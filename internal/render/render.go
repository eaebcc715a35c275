// Package render implements the Diagnostics Engine's templated-fragment
// preprocessing pass: feature files may contain Jinja2-style
// template tags the original project's preprocessor renders before parsing.
// This models that external collaborator with a real Go template engine
// rather than hand-rolling `{% %}`/`{{ }}` substitution.
package render

import (
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
)

// Renderer executes a buffer as a pongo2 template against a context built
// from the document's declared variables.
type Renderer struct{}

// New returns a ready-to-use Renderer. pongo2 templates carry no persistent
// state between renders, so Renderer itself is stateless.
func New() *Renderer { return &Renderer{} }

// Render executes text as a pongo2 template with vars bound into its
// context, returning the rendered text or a RenderFailed *errs.Error
// carrying the reported template error's line.
func (r *Renderer) Render(text string, vars map[string]string) (string, error) {
	tpl, err := pongo2.FromString(text)
	if err != nil {
		return "", wrapTemplateError(err)
	}

	ctx := make(pongo2.Context, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", wrapTemplateError(err)
	}
	return out, nil
}

// wrapTemplateError extracts the line pongo2 attaches to a template error,
// when available, so the diagnostic can anchor at the right source line.
func wrapTemplateError(err error) error {
	line := -1
	if terr, ok := err.(*pongo2.Error); ok && terr.Line > 0 {
		line = terr.Line
	}
	wrapped := errs.Wrap(errs.RenderFailed, "rendering template-tag blocks", err)
	if line >= 0 {
		return wrapped.At(line, 0)
	}
	return wrapped
}

// RenderedOrDiagnostic mirrors the `grizzly-ls/render-gherkin` custom
// request's `[success, rendered]` shape, collapsing the error
// path into a plain boolean so callers needing only success/text don't have
// to unwrap *errs.Error themselves.
func (r *Renderer) RenderedOrDiagnostic(text string, vars map[string]string) (rendered string, success bool, message string) {
	out, err := r.Render(text, vars)
	if err != nil {
		return text, false, fmt.Sprintf("%v", err)
	}
	return out, true, ""
}
