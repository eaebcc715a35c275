// Package hoverdef implements Hover & Definition: resolving a
// cursor position to a step definition's documentation, or to the external
// file a payload-like literal argument refers to.
package hoverdef

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Biometria-se/grizzly-lsp/internal/document"
	"github.com/Biometria-se/grizzly-lsp/internal/gherkin"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/protocol"
)

// Hover matches the line under the cursor against inv via the line's
// effective verb, returning the definition's Help text with a range
// spanning the step expression, excluding the keyword.
// It returns (nil, false) when the line has no match.
func Hover(inv *inventory.Inventory, doc *document.Document, line int) (*protocol.Hover, bool) {
	verb, stepText, startCol, ok := gherkin.StepTextAt(doc.Lines, line)
	if !ok {
		return nil, false
	}

	def, _, ok := inv.Lookup(verb, stepText)
	if !ok {
		return nil, false
	}

	endCol := startCol + utf8.RuneCountInString(stepText)
	return &protocol.Hover{
		Contents: def.Help,
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Column: startCol},
			End:   protocol.Position{Line: line, Column: endCol},
		},
	}, true
}

// Definition resolves the target(s) for a cursor position: a step
// definition's source location, or — when the cursor sits inside a quoted
// argument the matched definition marks as a filename reference — the
// referenced file under projectRoot's configured subdirectory. Returns an empty, non-nil slice (not an error) when there
// is no match or the referenced file doesn't exist.
func Definition(inv *inventory.Inventory, doc *document.Document, line, column int, payloadDir string) []protocol.DefinitionResult {
	text := doc.Line(line)
	verb, stepText, startCol, ok := gherkin.StepTextAt(doc.Lines, line)
	if !ok {
		return nil
	}
	def, _, ok := inv.Lookup(verb, stepText)
	if !ok {
		return nil
	}

	if pos, inside := quotedArgumentAt(text, column); inside {
		if def.FileArgumentPositions[pos] {
			return fileArgumentTarget(text, pos, line, payloadDir)
		}
	}

	if def.SourceLocation == nil {
		return nil
	}
	endCol := startCol + utf8.RuneCountInString(stepText)
	return []protocol.DefinitionResult{{
		TargetURI: def.SourceLocation.File,
		TargetRange: protocol.Range{
			Start: protocol.Position{Line: def.SourceLocation.Line, Column: 0},
			End:   protocol.Position{Line: def.SourceLocation.Line, Column: 0},
		},
		OriginSelectionRange: protocol.Range{
			Start: protocol.Position{Line: line, Column: startCol},
			End:   protocol.Position{Line: line, Column: endCol},
		},
	}}
}

// fileArgumentTarget resolves the quoted literal at argument position pos on
// text to a file under payloadDir, returning a single result whose origin
// range covers the quoted literal's inner span, or nil
// if the file doesn't exist.
func fileArgumentTarget(text string, pos, line int, payloadDir string) []protocol.DefinitionResult {
	ranges := quoteRanges(text)
	if pos < 1 || pos > len(ranges) {
		return nil
	}
	r := ranges[pos-1]
	runes := []rune(text)
	literal := string(runes[r[0]:r[1]])

	target := filepath.Join(payloadDir, literal)
	if _, err := os.Stat(target); err != nil {
		return nil
	}

	return []protocol.DefinitionResult{{
		TargetURI: target,
		TargetRange: protocol.Range{
			Start: protocol.Position{Line: 0, Column: 0},
			End:   protocol.Position{Line: 0, Column: 0},
		},
		OriginSelectionRange: protocol.Range{
			Start: protocol.Position{Line: line, Column: r[0]},
			End:   protocol.Position{Line: line, Column: r[1]},
		},
	}}
}

// quotedArgumentAt returns the 1-based index of the quoted slot containing
// column, left to right, or 0, false if column doesn't sit inside one.
func quotedArgumentAt(text string, column int) (int, bool) {
	for i, r := range quoteRanges(text) {
		if column >= r[0] && column <= r[1] {
			return i + 1, true
		}
	}
	return 0, false
}

// quoteRanges returns the [start,end) rune-offset span *inside* each "..."
// literal on text, in left-to-right order.
func quoteRanges(text string) [][2]int {
	var ranges [][2]int
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		if r != '"' {
			continue
		}
		if start == -1 {
			start = i + 1
		} else {
			ranges = append(ranges, [2]int{start, i})
			start = -1
		}
	}
	return ranges
}
