// Package completion implements the Completion Engine: given a
// classified cursor context from internal/gherkin, produce a ranked list of
// protocol.CompletionItem values for keywords, steps, variable references,
// and enumerated step arguments.
package completion

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Biometria-se/grizzly-lsp/internal/document"
	"github.com/Biometria-se/grizzly-lsp/internal/gherkin"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/protocol"
	"github.com/Biometria-se/grizzly-lsp/internal/snippet"
)

// Complete classifies the cursor at (line, column) in doc and dispatches to
// the matching completion rule. It returns nil for ContextOutside, and for
// ContextArgumentEnum when the line's matched step can no longer be resolved
// in inv (e.g. a stale document awaiting reanalysis).
func Complete(inv *inventory.Inventory, doc *document.Document, line, column int) []protocol.CompletionItem {
	matched, hasMatched := doc.MatchedSteps[line]

	var argEnumAt func(pos int) bool
	var matchedDef *inventory.Definition
	if hasMatched {
		if def, _, ok := inv.Lookup(matched.Verb, matched.Expression); ok {
			matchedDef = def
			argEnumAt = func(pos int) bool { return len(def.ArgumentEnums[pos]) > 0 }
		}
	}

	cursor := gherkin.Classify(doc.Lines, line, column, hasMatched && matchedDef != nil, argEnumAt)

	switch cursor.Kind {
	case gherkin.ContextKeyword:
		state := gherkin.ComputeState(doc.Lines, line)
		return Keywords(state, cursor, line, column)
	case gherkin.ContextStep:
		return Steps(inv, cursor, line)
	case gherkin.ContextVariableRef:
		return Variables(doc, cursor, line, column)
	case gherkin.ContextArgumentEnum:
		if matchedDef != nil {
			return ArgumentEnumerations(matchedDef, cursor, line, column)
		}
	}
	return nil
}

// Keywords returns the legal keyword set at the cursor's document state,
// fuzzy-narrowed by the prefix already typed.
func Keywords(state gherkin.DocumentState, cursor gherkin.Cursor, line, column int) []protocol.CompletionItem {
	legal := gherkin.LegalKeywords(state)
	narrowed := gherkin.NarrowByPrefix(legal, cursor.KeywordPrefix)

	prefixLen := utf8.RuneCountInString(cursor.KeywordPrefix)
	rng := protocol.Range{
		Start: protocol.Position{Line: line, Column: column - prefixLen},
		End:   protocol.Position{Line: line, Column: column},
	}

	items := make([]protocol.CompletionItem, 0, len(narrowed))
	for i, kw := range narrowed {
		items = append(items, protocol.CompletionItem{
			Label:      string(kw),
			InsertText: kw.InsertText(),
			Kind:       protocol.KindKeyword,
			Range:      rng,
			SortIndex:  i,
		})
	}
	return items
}

// stepCandidate is one (definition, variant) pair surviving the substring
// filter, carrying what ranking needs.
type stepCandidate struct {
	defIndex     int
	variantIndex int
	variant      string
	isPrefix     bool
}

// Steps returns step-completion candidates for the text typed after a verb.
// Candidate matching is a substring test against each expression variant's
// normalized text rather than a strict prefix test against the definition's
// clean expression: a worked example ("variable" typed under Given must
// surface "set context variable \"\" to \"\"", where "variable" is not a
// prefix of that expression) only holds under substring matching, with
// prefix-before-substring ordering restoring prefix matches to the top of
// the list. This resolution is recorded in DESIGN.md.
func Steps(inv *inventory.Inventory, cursor gherkin.Cursor, line int) []protocol.CompletionItem {
	definitions := inv.All(cursor.Verb)
	normText := inventory.NormalizeText(cursor.StepText)

	var candidates []stepCandidate
	for di, d := range definitions {
		for vi, variant := range d.ExpressionVariants {
			normVariant := inventory.NormalizeText(variant)
			if normText == "" {
				candidates = append(candidates, stepCandidate{di, vi, variant, true})
				continue
			}
			idx := strings.Index(normVariant, normText)
			if idx < 0 {
				continue
			}
			candidates = append(candidates, stepCandidate{di, vi, variant, idx == 0})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.isPrefix != b.isPrefix {
			return a.isPrefix // (a) exact prefix before substring
		}
		if a.variantIndex != b.variantIndex {
			return a.variantIndex < b.variantIndex // (b) lower variant index first
		}
		return a.defIndex < b.defIndex // (c) registration order
	})

	endCol := cursor.VerbColumn + utf8.RuneCountInString(cursor.StepText)
	rng := protocol.Range{
		Start: protocol.Position{Line: line, Column: cursor.VerbColumn},
		End:   protocol.Position{Line: line, Column: endCol},
	}

	items := make([]protocol.CompletionItem, 0, len(candidates))
	for i, c := range candidates {
		tmpl := snippet.FromQuotedSlots(c.variant)
		items = append(items, protocol.CompletionItem{
			Label:      c.variant,
			InsertText: tmpl.Serialize(),
			Kind:       protocol.KindFunction,
			Range:      rng,
			SortIndex:  i,
		})
	}
	return items
}

// Variables returns variable-reference completion candidates: names declared
// earlier in the document, in declaration order, with the insert text
// trimmed against whatever closing punctuation already follows the cursor.
func Variables(doc *document.Document, cursor gherkin.Cursor, line, column int) []protocol.CompletionItem {
	after := runesFrom(doc.Line(line), column)
	partialLen := utf8.RuneCountInString(cursor.VariablePartial)
	rng := protocol.Range{
		Start: protocol.Position{Line: line, Column: column - partialLen},
		End:   protocol.Position{Line: line, Column: column},
	}

	items := make([]protocol.CompletionItem, 0, len(doc.VariableOrder))
	for i, name := range doc.VariableOrder {
		if cursor.VariablePartial != "" && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(cursor.VariablePartial)) {
			continue
		}
		items = append(items, protocol.CompletionItem{
			Label:      name,
			InsertText: variableInsertText(name, after),
			Kind:       protocol.KindVariable,
			Range:      rng,
			SortIndex:  i,
		})
	}
	return items
}

// variableClose is the full closing sequence a variable reference needs
// after its name: a space, the double brace, and the enclosing quote (spec
// §8 scenario 4: `"{{` closed by ` foo }}"`).
const variableClose = ` }}"`

// variableInsertText builds the insert text for one variable reference
// completion, skipping whatever suffix of variableClose the user already
// typed right after the cursor. The part already present in `after` anchors at the *end* of
// variableClose — e.g. `}}"` already typed means only the leading space and
// name are still needed, not a second `}}"`.
func variableInsertText(name, after string) string {
	already := 0
	for n := len(variableClose); n > 0; n-- {
		if strings.HasPrefix(after, variableClose[len(variableClose)-n:]) {
			already = n
			break
		}
	}
	return " " + name + variableClose[:len(variableClose)-already]
}

// runesFrom returns the text on line starting at the rune offset column.
func runesFrom(line string, column int) string {
	runes := []rune(line)
	if column < 0 {
		column = 0
	}
	if column > len(runes) {
		column = len(runes)
	}
	return string(runes[column:])
}

// ArgumentEnumerations returns the enumerated alternatives for the quoted
// slot the cursor sits inside,
// sourced from the matched definition's ArgumentEnums. Replacement is a
// zero-width insertion at the cursor; the caller (editor) handles overwriting
// the selected text, same as a plain word-completion item.
func ArgumentEnumerations(def *inventory.Definition, cursor gherkin.Cursor, line, column int) []protocol.CompletionItem {
	values := def.ArgumentEnums[cursor.ArgumentPosition]
	if len(values) == 0 {
		return nil
	}
	pos := protocol.Position{Line: line, Column: column}
	rng := protocol.Range{Start: pos, End: pos}

	items := make([]protocol.CompletionItem, 0, len(values))
	for i, v := range values {
		items = append(items, protocol.CompletionItem{
			Label:      v,
			InsertText: v,
			Kind:       protocol.KindVariable,
			Range:      rng,
			SortIndex:  i,
		})
	}
	return items
}
