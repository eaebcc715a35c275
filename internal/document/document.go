// Package document holds the per-buffer document model. A Document is immutable once constructed; a change notification
// produces a new Document and the server swaps it into its document map
// rather than mutating one in place.
package document

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
)

// MatchedStep is one line's resolved step, once matched against the
// inventory.
type MatchedStep struct {
	Verb       inventory.Verb
	Expression string
}

// Document is one open buffer's state.
type Document struct {
	URI     string
	Text    string
	Version int

	Lines []string

	// MatchedSteps maps a 0-indexed line number to its resolved step, for
	// every line the Diagnostics/Analyzer pipeline has matched so far.
	MatchedSteps map[int]MatchedStep

	// Variables is the set of declared variable names, extracted via
	// VariablePatterns from matched steps.
	Variables map[string]struct{}

	// VariableOrder lists the same names in the order their declaring step
	// first appears in the document (top to bottom), since variable
	// completion should offer variables in declaration order.
	VariableOrder []string
}

// New constructs a Document from raw text. It does not parse or match steps
// — that is the Diagnostics Engine's job; New only splits lines
// so the Analyzer has something to index into immediately on open/change.
func New(uri, text string, version int) *Document {
	return &Document{
		URI:          uri,
		Text:         text,
		Version:      version,
		Lines:        strings.Split(text, "\n"),
		MatchedSteps: map[int]MatchedStep{},
		Variables:    map[string]struct{}{},
	}
}

// WithAnalysis returns a copy of d with matched steps and declared variables
// populated, leaving d itself untouched (documents are immutable once
// constructed).
func (d *Document) WithAnalysis(matched map[int]MatchedStep, variablePatterns []*regexp.Regexp) *Document {
	out := &Document{
		URI:          d.URI,
		Text:         d.Text,
		Version:      d.Version,
		Lines:        d.Lines,
		MatchedSteps: matched,
		Variables:    map[string]struct{}{},
	}

	lines := make([]int, 0, len(matched))
	for line := range matched {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	for _, line := range lines {
		m := matched[line]
		for _, rx := range variablePatterns {
			sub := rx.FindStringSubmatch(m.Expression)
			if len(sub) <= 1 {
				continue
			}
			name := sub[1]
			if _, seen := out.Variables[name]; !seen {
				out.Variables[name] = struct{}{}
				out.VariableOrder = append(out.VariableOrder, name)
			}
		}
	}
	return out
}

// Line returns the 0-indexed line, or "" if out of range.
func (d *Document) Line(n int) string {
	if n < 0 || n >= len(d.Lines) {
		return ""
	}
	return d.Lines[n]
}
