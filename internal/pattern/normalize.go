// Package pattern implements the Pattern Normalizer: it turns a
// step-definition's expression string into compiled regexes, human-readable
// variants, and a canonical "clean" form.
//
// The approach is grounded in the parameter-type expansion used by
// cucumber/gobdd-style suites (AddParameterTypes + applyParameterTypes): a
// pattern is a literal string sprinkled with brace placeholders, and typed
// placeholders backed by an enum expand into the cross product of their
// alternatives before the regex is compiled.
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
)

// ParseTypeRegistry maps a parse-type name (the part after ':' in
// "{name:Type}") to its literal alternatives, when the type is enum-like.
// Types absent from the registry, or present with a nil/empty slice, are
// treated as free-form captures.
type ParseTypeRegistry map[string][]string

// Placeholder describes one "{...}" slot found in a pattern.
type Placeholder struct {
	Name   string // may be empty for "{}"
	Type   string // may be empty when untyped
	Quoted bool   // true if the placeholder sits inside a "..." literal
	Start  int    // byte offset of '{' in the source pattern
	End    int    // byte offset just past the matching '}'
}

// Definition is the output of normalizing one pattern string.
type Definition struct {
	// CleanExpression has every quoted placeholder replaced by an empty
	// quoted slot; used for display and prefix matching.
	CleanExpression string
	// RegexPatterns are anchored, compiled regexes; one per alternation
	// combination. Always non-empty on success.
	RegexPatterns []*regexp.Regexp
	// ExpressionVariants parallels RegexPatterns: the human-readable
	// expansion used as a completion label for that combination.
	ExpressionVariants []string
}

var bracePlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)?(:([A-Za-z_][A-Za-z0-9_]*))?\}`)

// Normalize converts a pattern string into a Definition, or an
// *errs.Error with Kind == errs.PatternMalformed if the braces are
// unbalanced.
func Normalize(expression string, types ParseTypeRegistry) (*Definition, error) {
	if err := checkBalancedBraces(expression); err != nil {
		return nil, err
	}

	placeholders := findPlaceholders(expression)

	clean := buildCleanExpression(expression, placeholders)

	combos, err := expandAlternations(placeholders, types)
	if err != nil {
		return nil, err
	}

	def := &Definition{CleanExpression: clean}
	for _, combo := range combos {
		variant := substituteVariant(expression, placeholders, combo)
		rx, err := buildRegex(expression, placeholders, combo, types)
		if err != nil {
			return nil, errs.Wrap(errs.PatternMalformed, fmt.Sprintf("compiling regex for %q", expression), err)
		}
		def.RegexPatterns = append(def.RegexPatterns, rx)
		def.ExpressionVariants = append(def.ExpressionVariants, variant)
	}

	if len(def.RegexPatterns) == 0 {
		// No placeholders at all: one pattern, the literal itself.
		rx, err := regexp.Compile("^" + regexp.QuoteMeta(expression) + "$")
		if err != nil {
			return nil, errs.Wrap(errs.PatternMalformed, "compiling literal pattern", err)
		}
		def.RegexPatterns = []*regexp.Regexp{rx}
		def.ExpressionVariants = []string{expression}
	}

	return def, nil
}

func checkBalancedBraces(expr string) error {
	depth := 0
	for _, r := range expr {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return errs.New(errs.PatternMalformed, fmt.Sprintf("unbalanced '}' in %q", expr))
			}
		}
	}
	if depth != 0 {
		return errs.New(errs.PatternMalformed, fmt.Sprintf("unbalanced '{' in %q", expr))
	}
	return nil
}

func findPlaceholders(expr string) []Placeholder {
	matches := bracePlaceholder.FindAllStringSubmatchIndex(expr, -1)
	placeholders := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		p := Placeholder{Start: m[0], End: m[1]}
		if m[2] != -1 {
			p.Name = expr[m[2]:m[3]]
		}
		if m[6] != -1 {
			p.Type = expr[m[6]:m[7]]
		}
		p.Quoted = isInsideQuotes(expr, m[0])
		placeholders = append(placeholders, p)
	}
	return placeholders
}

// isInsideQuotes reports whether the byte offset sits between a preceding
// unescaped '"' and a following one on the same line, i.e. the placeholder
// is a quoted literal slot such as `"{name}"`.
func isInsideQuotes(expr string, pos int) bool {
	before := expr[:pos]
	return strings.Count(before, `"`)%2 == 1
}

// buildCleanExpression replaces every quoted placeholder with an empty
// quoted slot (`""`): it is substituteVariant with no alternative chosen
// for any placeholder.
func buildCleanExpression(expr string, placeholders []Placeholder) string {
	return substituteVariant(expr, placeholders, alternationCombo{})
}

// alternationCombo maps each placeholder index (within the placeholders
// slice) that has enum alternatives to the chosen alternative string.
type alternationCombo map[int]string

// expandAlternations computes the Cartesian product of every typed
// placeholder's alternatives, in lexicographic order over alternative
// names, so the resulting variant list is order-stable.
func expandAlternations(placeholders []Placeholder, types ParseTypeRegistry) ([]alternationCombo, error) {
	var altIndices []int
	var altValues [][]string
	for i, p := range placeholders {
		if p.Type == "" {
			continue
		}
		values, ok := types[p.Type]
		if !ok || len(values) == 0 {
			continue
		}
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		altIndices = append(altIndices, i)
		altValues = append(altValues, sorted)
	}

	if len(altIndices) == 0 {
		return []alternationCombo{{}}, nil
	}

	var combos []alternationCombo
	var rec func(depth int, current alternationCombo)
	rec = func(depth int, current alternationCombo) {
		if depth == len(altIndices) {
			copied := make(alternationCombo, len(current))
			for k, v := range current {
				copied[k] = v
			}
			combos = append(combos, copied)
			return
		}
		for _, v := range altValues[depth] {
			current[altIndices[depth]] = v
			rec(depth+1, current)
		}
		delete(current, altIndices[depth])
	}
	rec(0, alternationCombo{})
	return combos, nil
}

// substituteVariant renders the human-readable expansion for one
// alternation combination: a placeholder with a chosen alternative is
// replaced by that literal value; every other placeholder collapses to
// nothing, same as CleanExpression (its surrounding quote characters are
// untouched literal text, so a non-chosen quoted placeholder reads as an
// empty "" slot). With an empty combo this produces exactly CleanExpression.
func substituteVariant(expr string, placeholders []Placeholder, combo alternationCombo) string {
	var b strings.Builder
	last := 0
	for i, p := range placeholders {
		b.WriteString(expr[last:p.Start])
		if v, ok := combo[i]; ok {
			b.WriteString(v)
		}
		last = p.End
	}
	b.WriteString(expr[last:])
	return b.String()
}

// buildRegex compiles one anchored regex for a given alternation
// combination. A placeholder with a chosen alternative becomes that literal,
// escaped; any other placeholder becomes a capture group — `[^"]*` inside
// quotes, `.*` otherwise. Literal text is escaped with
// regexp.QuoteMeta.
func buildRegex(expr string, placeholders []Placeholder, combo alternationCombo, types ParseTypeRegistry) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for i, p := range placeholders {
		b.WriteString(regexp.QuoteMeta(expr[last:p.Start]))
		if v, ok := combo[i]; ok {
			b.WriteString(regexp.QuoteMeta(v))
		} else if p.Quoted {
			b.WriteString(`[^"]*`)
		} else {
			b.WriteString(`.*`)
		}
		last = p.End
	}
	b.WriteString(regexp.QuoteMeta(expr[last:]))
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// QuotedPlaceholderPositions returns, in left-to-right order, the 1-based
// position and parse-type name of every *quoted* placeholder in expression
// (quoted placeholders are the ones that become a "..." argument slot at
// match time). Callers use this to line up a placeholder's declared type
// with its argument position once the pattern has been normalized — e.g.
// the Source Loader marking a position as a file reference, or argument
// validators keyed by position.
func QuotedPlaceholderPositions(expression string) []struct {
	Position int
	Type     string
} {
	placeholders := findPlaceholders(expression)
	var out []struct {
		Position int
		Type     string
	}
	pos := 0
	for _, p := range placeholders {
		if !p.Quoted {
			continue
		}
		pos++
		out = append(out, struct {
			Position int
			Type     string
		}{Position: pos, Type: p.Type})
	}
	return out
}
