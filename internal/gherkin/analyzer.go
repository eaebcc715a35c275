package gherkin

import (
	"regexp"
	"strings"

	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
)

// ContextKind is the cursor classification result.
type ContextKind int

const (
	ContextKeyword ContextKind = iota
	ContextStep
	ContextVariableRef
	ContextArgumentEnum
	ContextOutside
)

// Cursor is the full result of classifying a cursor position.
type Cursor struct {
	Kind ContextKind

	// Set when Kind == ContextKeyword.
	KeywordPrefix string

	// Set when Kind == ContextStep.
	Verb           inventory.Verb
	StepText       string // text already typed after the verb, up to the cursor
	VerbColumn     int    // column just past "<Verb> ", i.e. where StepText begins

	// Set when Kind == ContextVariableRef.
	VariablePartial string

	// Set when Kind == ContextArgumentEnum.
	ArgumentPosition int // 1-based, left to right among quoted slots
}

// longest-match-first; order matters because "Scenario Outline"/"Scenario
// Template" must be tried before the bare "Scenario" prefix.
var lineKeywordOrder = []Keyword{
	KeywordScenarioOutline, KeywordScenarioTemplate,
	KeywordBackground, KeywordFeature, KeywordScenario,
	KeywordExamples, KeywordScenarios,
	KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut,
}

var starStep = regexp.MustCompile(`^\*\s*`)

// matchFullLineKeyword reports whether a fully-written line (one above the
// cursor, not the line being edited) starts with a recognized keyword, and
// returns the rest of the line after the keyword/colon.
func matchFullLineKeyword(line string) (Keyword, string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for _, kw := range lineKeywordOrder {
		prefix := string(kw)
		if strings.HasPrefix(trimmed, prefix) {
			rest := trimmed[len(prefix):]
			rest = strings.TrimPrefix(rest, ":")
			return kw, strings.TrimSpace(rest), true
		}
	}
	if starStep.MatchString(trimmed) {
		return "*", starStep.ReplaceAllString(trimmed, ""), true
	}
	return "", "", false
}

func isStepVerbKeyword(kw Keyword) bool {
	switch kw {
	case KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut, "*":
		return true
	}
	return false
}

func isScenarioLikeKeyword(kw Keyword) bool {
	switch kw {
	case KeywordScenario, KeywordScenarioOutline, KeywordScenarioTemplate, KeywordBackground:
		return true
	}
	return false
}

// ComputeState scans lines[0:beforeLine] (the current feature, assumed to
// span the whole buffer — grizzly feature files are single-Feature) to
// derive the keyword legality automaton's state at beforeLine.
func ComputeState(lines []string, beforeLine int) DocumentState {
	var st DocumentState
	limit := beforeLine
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		kw, _, ok := matchFullLineKeyword(lines[i])
		if !ok {
			continue
		}
		switch kw {
		case KeywordFeature:
			st.HasFeature = true
		case KeywordBackground:
			st.HasBackground = true
		case KeywordScenario, KeywordScenarioOutline, KeywordScenarioTemplate:
			st.ScenariosSeen++
		}
		if isStepVerbKeyword(kw) {
			st.StepKeywordSeen = true
		}
	}
	return st
}

// EffectiveVerb returns the verb that governs line: the nearest preceding line with an explicit verb
// (Given/When/Then) in the same scenario/background block; "given" if none.
func EffectiveVerb(lines []string, line int) inventory.Verb {
	boundary := scenarioBoundary(lines, line)
	for i := line - 1; i >= boundary; i-- {
		kw, _, ok := matchFullLineKeyword(lines[i])
		if !ok {
			continue
		}
		switch kw {
		case KeywordGiven:
			return inventory.Given
		case KeywordWhen:
			return inventory.When
		case KeywordThen:
			return inventory.Then
		}
	}
	return inventory.Given
}

// scenarioBoundary returns the line index of the nearest preceding
// Scenario/Scenario Outline/Scenario Template/Background line at or before
// `line`, or 0 if none (start of file).
func scenarioBoundary(lines []string, line int) int {
	for i := line - 1; i >= 0; i-- {
		kw, _, ok := matchFullLineKeyword(lines[i])
		if ok && isScenarioLikeKeyword(kw) {
			return i
		}
	}
	return 0
}

var doubleBraceOpen = "{{"
var doubleBraceClose = "}}"

// lastUnclosedDoubleBrace returns the byte index just past the last "{{" in
// before that has no matching "}}" after it, or -1 if none.
func lastUnclosedDoubleBrace(before string) int {
	lastOpen := strings.LastIndex(before, doubleBraceOpen)
	if lastOpen == -1 {
		return -1
	}
	afterOpen := before[lastOpen+len(doubleBraceOpen):]
	if strings.Contains(afterOpen, doubleBraceClose) {
		return -1
	}
	return lastOpen + len(doubleBraceOpen)
}

// quotedArgumentPosition returns the 1-based index (left to right) of the
// quoted slot containing column on line, or 0, false if the column doesn't
// sit strictly inside a "..." span.
func quotedArgumentPosition(line string, column int) (int, bool) {
	quotes := quoteRanges(line)
	for i, r := range quotes {
		if column > r[0] && column <= r[1] {
			return i + 1, true
		}
	}
	return 0, false
}

// quoteRanges returns [start,end) byte ranges for each "..." span on line,
// start being the index just after the opening quote and end the index of
// the closing quote.
func quoteRanges(line string) [][2]int {
	var ranges [][2]int
	start := -1
	for i, r := range line {
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

// matchVerbPrefix reports whether trimmed (already left-trimmed of
// whitespace) begins with a complete step-verb keyword token followed by a
// space (or is exactly that keyword, cursor sitting right after it).
func matchVerbPrefix(trimmed string) (kw Keyword, rest string, ok bool) {
	stepKws := []Keyword{KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut}
	for _, k := range stepKws {
		prefix := string(k)
		if trimmed == prefix {
			return k, "", true
		}
		if strings.HasPrefix(trimmed, prefix+" ") {
			return k, trimmed[len(prefix)+1:], true
		}
	}
	if trimmed == "*" || strings.HasPrefix(trimmed, "* ") {
		return "*", strings.TrimPrefix(strings.TrimPrefix(trimmed, "*"), " "), true
	}
	return "", "", false
}

func verbKeywordToVerb(lines []string, line int, kw Keyword) inventory.Verb {
	switch kw {
	case KeywordGiven:
		return inventory.Given
	case KeywordWhen:
		return inventory.When
	case KeywordThen:
		return inventory.Then
	default: // And, But, *
		return EffectiveVerb(lines, line)
	}
}

// StepTextAt returns the effective verb, step text, and the column the step
// text starts at for a fully-written step line (one already typed in full,
// not an in-progress edit — see Classify for the cursor-aware version). ok
// is false when the line isn't a step line at all. Shared by Hover &
// Definition and the Diagnostics Engine so both resolve "what step is this
// line" identically.
func StepTextAt(lines []string, line int) (verb inventory.Verb, text string, startColumn int, ok bool) {
	raw := ""
	if line >= 0 && line < len(lines) {
		raw = lines[line]
	}
	trimmed := strings.TrimLeft(raw, " \t")
	leading := len([]rune(raw)) - len([]rune(trimmed))

	kw, rest, matched := matchVerbPrefix(trimmed)
	if !matched {
		return "", "", 0, false
	}
	verb = verbKeywordToVerb(lines, line, kw)
	col := leading + len([]rune(string(kw))) + 1
	return verb, strings.TrimSpace(rest), col, true
}

// Classify determines the cursor's context, in priority order:
// variable-reference (an open "{{"), argument-enumeration (inside a matched
// step's quoted slot with enumerated alternatives), keyword, step, outside.
//
// matchedArgEnumAt, when non-nil, reports whether the given 1-based
// argument position of the step matched on `line` has enumerated
// alternatives; it is supplied by the caller (internal/completion) because
// only it holds a reference to the inventory definition matched for that
// line.
func Classify(lines []string, line, column int, hasMatchedStep bool, matchedArgEnumAt func(pos int) bool) Cursor {
	text := ""
	if line >= 0 && line < len(lines) {
		text = lines[line]
	}
	runes := []rune(text)
	if column > len(runes) {
		column = len(runes)
	}
	before := string(runes[:column])

	if idx := lastUnclosedDoubleBrace(before); idx >= 0 {
		return Cursor{Kind: ContextVariableRef, VariablePartial: before[idx:]}
	}

	if hasMatchedStep && matchedArgEnumAt != nil {
		if pos, ok := quotedArgumentPosition(text, column); ok && matchedArgEnumAt(pos) {
			return Cursor{Kind: ContextArgumentEnum, ArgumentPosition: pos}
		}
	}

	trimmed := strings.TrimLeft(before, " \t")

	if kw, rest, ok := matchVerbPrefix(trimmed); ok {
		verb := verbKeywordToVerb(lines, line, kw)
		verbCol := column - len([]rune(rest))
		return Cursor{Kind: ContextStep, Verb: verb, StepText: rest, VerbColumn: verbCol}
	}

	if trimmed == "" || !strings.Contains(trimmed, " ") {
		return Cursor{Kind: ContextKeyword, KeywordPrefix: trimmed}
	}

	return Cursor{Kind: ContextOutside}
}
