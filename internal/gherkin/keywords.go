// Package gherkin implements the Gherkin Analyzer: cursor
// classification, step boundary detection, and the keyword legality
// automaton behind keyword completion.
package gherkin

import "strings"

// Keyword is one Gherkin skeleton token.
type Keyword string

const (
	KeywordFeature           Keyword = "Feature"
	KeywordBackground        Keyword = "Background"
	KeywordScenario          Keyword = "Scenario"
	KeywordScenarioOutline   Keyword = "Scenario Outline"
	KeywordScenarioTemplate  Keyword = "Scenario Template"
	KeywordExamples          Keyword = "Examples"
	KeywordScenarios         Keyword = "Scenarios"
	KeywordGiven             Keyword = "Given"
	KeywordWhen              Keyword = "When"
	KeywordThen              Keyword = "Then"
	KeywordAnd               Keyword = "And"
	KeywordBut               Keyword = "But"
)

// structuralKeywords is the base set of structural keywords, order-stable:
// Background, Scenario, Scenario Outline, Scenario Template, in that order.
var structuralKeywords = []Keyword{
	KeywordBackground, KeywordScenario, KeywordScenarioOutline, KeywordScenarioTemplate,
}

var stepAndExampleKeywords = []Keyword{
	KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut,
	KeywordExamples, KeywordScenarios,
}

// DocumentState is the small finite automaton's state.
type DocumentState struct {
	HasFeature       bool
	HasBackground    bool
	ScenariosSeen    int
	StepKeywordSeen  bool
}

// LegalKeywords computes the ordered, deduplicated set of keywords legal at
// a cursor position given the document state above it.
func LegalKeywords(state DocumentState) []Keyword {
	if !state.HasFeature {
		return []Keyword{KeywordFeature}
	}

	set := make([]Keyword, 0, len(structuralKeywords)+len(stepAndExampleKeywords))
	for _, k := range structuralKeywords {
		if k == KeywordBackground && state.HasBackground {
			continue // rule 3: remove Background once present
		}
		set = append(set, k)
	}
	if state.ScenariosSeen > 0 {
		set = append(set, stepAndExampleKeywords...) // rule 4: additive
	}
	return set
}

// NarrowByPrefix applies fuzzy narrowing: keywords whose characters appear,
// in order, somewhere in the prefix are kept. This implementation requires
// only membership — a case-insensitive subsequence test with no
// scoring/ranking beyond the legal-keyword order above (see DESIGN.md).
func NarrowByPrefix(keywords []Keyword, prefix string) []Keyword {
	if prefix == "" {
		return keywords
	}
	var out []Keyword
	for _, k := range keywords {
		if isCaseInsensitiveSubsequence(prefix, string(k)) {
			out = append(out, k)
		}
	}
	return out
}

func isCaseInsensitiveSubsequence(needle, haystack string) bool {
	needle = strings.ToLower(needle)
	haystack = strings.ToLower(haystack)
	i := 0
	for _, r := range haystack {
		if i >= len(needle) {
			break
		}
		if rune(needle[i]) == r {
			i++
		}
	}
	return i == len(needle)
}

// InsertText returns the text to insert for a keyword completion: a colon
// and space for structural keywords, or a trailing space for step verbs.
func (k Keyword) InsertText() string {
	switch k {
	case KeywordGiven, KeywordWhen, KeywordThen, KeywordAnd, KeywordBut:
		return string(k) + " "
	default:
		return string(k) + ": "
	}
}
