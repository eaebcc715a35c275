package completion

import (
	"regexp"
	"testing"

	"github.com/Biometria-se/grizzly-lsp/internal/document"
	"github.com/Biometria-se/grizzly-lsp/internal/gherkin"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
)

func mustDefine(t *testing.T, verb inventory.Verb, expr string) *inventory.Definition {
	t.Helper()
	def, err := pattern.Normalize(expr, nil)
	if err != nil {
		t.Fatalf("normalizing %q: %v", expr, err)
	}
	return &inventory.Definition{
		Verb:               verb,
		Expression:         expr,
		CleanExpression:    def.CleanExpression,
		RegexPatterns:      def.RegexPatterns,
		ExpressionVariants: def.ExpressionVariants,
	}
}

func TestComplete_KeywordFreshFile(t *testing.T) {
	doc := document.New("f", "", 0)
	items := Complete(inventory.New(), doc, 0, 0)
	if len(items) != 1 || items[0].Label != "Feature" || items[0].InsertText != "Feature: " {
		t.Fatalf("expected exactly [Feature: ], got %+v", items)
	}
}

func TestComplete_KeywordFuzzyNarrowing(t *testing.T) {
	lines := []string{"Feature:", "\tBackground:", "\tScenario:", "\t\ten"}
	doc := document.New("f", "", 0)
	doc.Lines = lines
	col := len([]rune(lines[3]))
	items := Complete(inventory.New(), doc, 3, col)

	want := map[string]bool{"Given": true, "Scenario": true, "Then": true, "When": true}
	got := map[string]bool{}
	for _, it := range items {
		got[it.Label] = true
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("expected %s among narrowed keywords, got %+v", k, items)
		}
	}
}

func TestSteps_VariablePrefixMatchesSubstringCandidates(t *testing.T) {
	inv := inventory.New()
	inv.Build([]*inventory.Definition{
		mustDefine(t, inventory.Given, `set context variable "{}" to "{}"`),
		mustDefine(t, inventory.Given, `ask for value of variable "{}"`),
		mustDefine(t, inventory.Given, `set global context variable "{}" to "{}"`),
		mustDefine(t, inventory.Given, `set alias "{}" for variable "{}"`),
		mustDefine(t, inventory.Given, `value for variable "{}" is "{}"`),
		mustDefine(t, inventory.Given, `a user of type "{}"`),
	})

	cursor := gherkin.Cursor{Kind: gherkin.ContextStep, Verb: inventory.Given, StepText: "variable", VerbColumn: 6}
	items := Steps(inv, cursor, 0)

	wantLabels := map[string]bool{
		`set context variable "" to ""`:        true,
		`ask for value of variable ""`:         true,
		`set global context variable "" to ""`: true,
		`set alias "" for variable ""`:         true,
		`value for variable "" is ""`:          true,
	}
	if len(items) != len(wantLabels) {
		t.Fatalf("expected %d candidates, got %d: %+v", len(wantLabels), len(items), items)
	}
	for _, it := range items {
		if !wantLabels[it.Label] {
			t.Fatalf("unexpected label %q (unrelated step leaked in): %+v", it.Label, items)
		}
	}

	for _, it := range items {
		if it.Label == `set context variable "" to ""` {
			if it.InsertText != `set context variable "$1" to "$2"` {
				t.Fatalf("expected left-to-right $1,$2 substitution, got %q", it.InsertText)
			}
		}
	}
}

func TestSteps_ExactPrefixRankedBeforeSubstring(t *testing.T) {
	inv := inventory.New()
	inv.Build([]*inventory.Definition{
		mustDefine(t, inventory.Given, `a thing with a foo`),
		mustDefine(t, inventory.Given, `foo the bar`),
	})
	cursor := gherkin.Cursor{Kind: gherkin.ContextStep, Verb: inventory.Given, StepText: "foo", VerbColumn: 6}
	items := Steps(inv, cursor, 0)
	if len(items) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", items)
	}
	if items[0].Label != "foo the bar" {
		t.Fatalf("expected prefix match ranked first, got %+v", items)
	}
}

func TestComplete_VariableReferenceInsertText(t *testing.T) {
	lines := []string{
		`And value for variable "foo" is "none"`,
		`And value for variable "bar" is "none"`,
		`Then log message "{{`,
	}
	doc := document.New("f", "", 0)
	doc.Lines = lines
	matched := map[int]document.MatchedStep{
		0: {Verb: inventory.Given, Expression: `value for variable "foo" is "none"`},
		1: {Verb: inventory.Given, Expression: `value for variable "bar" is "none"`},
	}
	variablePattern := regexp.MustCompile(`value for variable "([^"]+)" is`)
	doc = doc.WithAnalysis(matched, []*regexp.Regexp{variablePattern})

	col := len([]rune(lines[2]))
	items := Complete(inventory.New(), doc, 2, col)

	if len(items) != 2 {
		t.Fatalf("expected 2 variable completions, got %+v", items)
	}
	if items[0].Label != "foo" || items[0].InsertText != ` foo }}"` {
		t.Fatalf("expected foo first with closing insert text, got %+v", items[0])
	}
	if items[1].Label != "bar" || items[1].InsertText != ` bar }}"` {
		t.Fatalf("expected bar second with closing insert text, got %+v", items[1])
	}
}

func TestVariableInsertText_SkipsAlreadyTypedClosing(t *testing.T) {
	got := variableInsertText("foo", `}}"`)
	if got != " foo " {
		t.Fatalf("expected no duplicated closing when already present, got %q", got)
	}
	if full := variableInsertText("foo", ""); full != ` foo }}"` {
		t.Fatalf("expected full closing when nothing follows, got %q", full)
	}
}

func TestArgumentEnumerations_EmptyWhenNoAlternatives(t *testing.T) {
	def := &inventory.Definition{ArgumentEnums: map[int][]string{}}
	cursor := gherkin.Cursor{Kind: gherkin.ContextArgumentEnum, ArgumentPosition: 1}
	items := ArgumentEnumerations(def, cursor, 0, 0)
	if items != nil {
		t.Fatalf("expected nil for no enumerated alternatives, got %+v", items)
	}
}

func TestArgumentEnumerations_ListsAlternatives(t *testing.T) {
	def := &inventory.Definition{ArgumentEnums: map[int][]string{1: {"get", "post"}}}
	cursor := gherkin.Cursor{Kind: gherkin.ContextArgumentEnum, ArgumentPosition: 1}
	items := ArgumentEnumerations(def, cursor, 0, 5)
	if len(items) != 2 || items[0].Label != "get" || items[1].Label != "post" {
		t.Fatalf("expected [get post], got %+v", items)
	}
}
