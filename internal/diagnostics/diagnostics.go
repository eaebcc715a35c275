// Package diagnostics implements the Diagnostics Engine:
// preprocess (render template tags) -> parse (Gherkin) -> match (inventory
// lookup) -> validate arguments -> emit diagnostics, coalesced per document
// so a burst of didChange notifications produces one run for the latest
// buffer rather than one run per keystroke.
package diagnostics

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	gherkinparser "github.com/cucumber/gherkin-go/v13"
	messages "github.com/cucumber/messages-go/v12"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"

	"github.com/Biometria-se/grizzly-lsp/internal/document"
	"github.com/Biometria-se/grizzly-lsp/internal/errs"
	"github.com/Biometria-se/grizzly-lsp/internal/gherkin"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/protocol"
	"github.com/Biometria-se/grizzly-lsp/internal/render"
)

// Result is one completed diagnostics run: the diagnostics to publish and
// the document enriched with matched-step/variable analysis, ready to back
// completion and hover.
type Result struct {
	Diagnostics []protocol.Diagnostic
	Document    *document.Document
}

// Engine runs the pipeline against a shared inventory, coalescing concurrent
// runs per document URI.
type Engine struct {
	Inventory *inventory.Inventory
	Renderer  *render.Renderer

	group singleflight.Group

	mu      sync.Mutex
	pending map[string]*document.Document // latest doc requested while a run for that URI is in flight
}

// NewEngine returns a ready-to-use Engine.
func NewEngine(inv *inventory.Inventory) *Engine {
	return &Engine{
		Inventory: inv,
		Renderer:  render.New(),
		pending:   map[string]*document.Document{},
	}
}

// Run executes the pipeline for doc, coalescing with any in-flight run for
// the same URI. If a newer document arrives for the same URI while a run is
// in flight, Run transparently re-executes for that newer buffer before
// returning, so every caller observes diagnostics for the most recent text.
func (e *Engine) Run(ctx context.Context, variablePatterns []*regexp.Regexp, doc *document.Document) (*Result, error) {
	current := doc
	for {
		v, err, _ := e.group.Do(current.URI, func() (interface{}, error) {
			return e.runOnce(variablePatterns, current)
		})

		e.mu.Lock()
		next, hasNext := e.pending[current.URI]
		if hasNext {
			delete(e.pending, current.URI)
		}
		e.mu.Unlock()

		if hasNext && next.Version != current.Version {
			current = next
			continue
		}
		if err != nil {
			return nil, err
		}
		return v.(*Result), nil
	}
}

// Submit records doc as the latest buffer for its URI without running the
// pipeline; a caller already inside Run for an older version of the same
// document will pick it up once its in-flight run completes. Used by the
// Server Core to register a didChange that arrived mid-run.
func (e *Engine) Submit(doc *document.Document) {
	e.mu.Lock()
	e.pending[doc.URI] = doc
	e.mu.Unlock()
}

func (e *Engine) runOnce(variablePatterns []*regexp.Regexp, doc *document.Document) (*Result, error) {
	rendered, renderErr := e.Renderer.Render(doc.Text, nil)
	if renderErr != nil {
		rerr, _ := renderErr.(*errs.Error)
		diag := protocol.Diagnostic{
			Range:    wholeDocumentRange(doc),
			Severity: protocol.SeverityError,
			Code:     string(errs.RenderFailed),
			Source:   "grizzly-ls",
			Message:  renderErr.Error(),
		}
		if rerr != nil && rerr.Line >= 0 {
			diag.Range = protocol.Range{
				Start: protocol.Position{Line: rerr.Line, Column: 0},
				End:   protocol.Position{Line: rerr.Line, Column: len([]rune(doc.Line(rerr.Line)))},
			}
		}
		return &Result{Diagnostics: []protocol.Diagnostic{diag}, Document: doc}, nil
	}

	gherkinDoc, parseErr := parseFeature(rendered)
	if parseErr != nil {
		return &Result{
			Diagnostics: []protocol.Diagnostic{{
				Range:    wholeDocumentRange(doc),
				Severity: protocol.SeverityError,
				Code:     string(errs.ParseFailed),
				Source:   "grizzly-ls",
				Message:  parseErr.Error(),
			}},
			Document: doc,
		}, nil
	}

	var diags []protocol.Diagnostic
	matched := map[int]document.MatchedStep{}

	for _, lineNo := range stepLines(gherkinDoc) {
		verb, text, startCol, ok := gherkin.StepTextAt(doc.Lines, lineNo)
		if !ok {
			continue
		}
		def, _, found := e.Inventory.Lookup(verb, text)
		if !found {
			diags = append(diags, unknownStepDiagnostic(e.Inventory, verb, text, lineNo, startCol, doc))
			continue
		}
		matched[lineNo] = document.MatchedStep{Verb: verb, Expression: def.Expression}
		diags = append(diags, validateArguments(def, doc.Line(lineNo), lineNo)...)
	}

	out := doc.WithAnalysis(matched, variablePatterns)
	return &Result{Diagnostics: diags, Document: out}, nil
}

func wholeDocumentRange(doc *document.Document) protocol.Range {
	lastLine := len(doc.Lines) - 1
	if lastLine < 0 {
		lastLine = 0
	}
	return protocol.Range{
		Start: protocol.Position{Line: 0, Column: 0},
		End:   protocol.Position{Line: lastLine, Column: len([]rune(doc.Line(lastLine)))},
	}
}

// unknownStepDiagnostic builds an UnknownStep diagnostic with a
// nearest-neighbor suggestion, using sahilm/fuzzy's subsequence scoring
// across every clean expression under the same verb.
func unknownStepDiagnostic(inv *inventory.Inventory, verb inventory.Verb, text string, line, startCol int, doc *document.Document) protocol.Diagnostic {
	msg := fmt.Sprintf("no step definition matches %q", text)
	if suggestion, ok := nearestStep(inv, verb, text); ok {
		msg = fmt.Sprintf("%s — did you mean %q?", msg, suggestion)
	}
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Column: startCol},
			End:   protocol.Position{Line: line, Column: startCol + len([]rune(text))},
		},
		Severity: protocol.SeverityError,
		Code:     string(errs.UnknownStep),
		Source:   "grizzly-ls",
		Message:  msg,
	}
}

func nearestStep(inv *inventory.Inventory, verb inventory.Verb, text string) (string, bool) {
	defs := inv.All(verb)
	if len(defs) == 0 {
		return "", false
	}
	candidates := make([]string, len(defs))
	for i, d := range defs {
		candidates[i] = d.CleanExpression
	}
	matches := fuzzy.Find(text, candidates)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

// validateArguments checks every quoted argument on line against the
// matched definition's enumerated alternatives, emitting ArgumentInvalid
// for any value outside the allowed set.
func validateArguments(def *inventory.Definition, lineText string, line int) []protocol.Diagnostic {
	if len(def.ArgumentEnums) == 0 {
		return nil
	}
	var diags []protocol.Diagnostic
	runes := []rune(lineText)
	pos := 0
	start := -1
	for i, r := range runes {
		if r != '"' {
			continue
		}
		if start == -1 {
			start = i + 1
			continue
		}
		pos++
		value := string(runes[start:i])
		if allowed, ok := def.ArgumentEnums[pos]; ok && !contains(allowed, value) {
			diags = append(diags, protocol.Diagnostic{
				Range: protocol.Range{
					Start: protocol.Position{Line: line, Column: start},
					End:   protocol.Position{Line: line, Column: i},
				},
				Severity: protocol.SeverityError,
				Code:     string(errs.ArgumentInvalid),
				Source:   "grizzly-ls",
				Message:  fmt.Sprintf("%q is not one of the allowed values: %s", value, strings.Join(allowed, ", ")),
			})
		}
		start = -1
	}
	return diags
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// parseFeature parses rendered feature text into a Gherkin AST, wrapping any
// failure as a ParseFailed error.
func parseFeature(text string) (*messages.GherkinDocument, error) {
	ids := newIDGenerator()
	doc, err := gherkinparser.ParseGherkinDocument(strings.NewReader(text), ids)
	if err != nil {
		return nil, errs.Wrap(errs.ParseFailed, "parsing feature file", err)
	}
	return doc, nil
}

func newIDGenerator() func() string {
	var n int
	return func() string {
		n++
		return strconv.Itoa(n)
	}
}

// stepLines returns the 0-indexed line number of every Step in doc's
// Background and Scenarios, in document order.
func stepLines(doc *messages.GherkinDocument) []int {
	var lines []int
	if doc == nil || doc.Feature == nil {
		return lines
	}
	for _, child := range doc.Feature.Children {
		if bg := child.GetBackground(); bg != nil {
			for _, s := range bg.Steps {
				lines = append(lines, stepLine(s))
			}
		}
		if sc := child.GetScenario(); sc != nil {
			for _, s := range sc.Steps {
				lines = append(lines, stepLine(s))
			}
		}
	}
	return lines
}

func stepLine(step *messages.GherkinDocument_Feature_Step) int {
	if step.Location == nil {
		return 0
	}
	return int(step.Location.Line) - 1
}
