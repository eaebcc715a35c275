package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
)

// fakeExecutor replays a canned set of stdout lines instead of spawning a
// real process, so these tests never invoke a real pip/python3.
type fakeExecutor struct {
	lines   []string
	err     error
	calls   int
	lastDir string
	lastCmd string
	lastArg []string
}

func (f *fakeExecutor) Run(ctx context.Context, dir, name string, args []string, onLine func(line string)) error {
	f.calls++
	f.lastDir, f.lastCmd, f.lastArg = dir, name, args
	if f.err != nil {
		return f.err
	}
	for _, l := range f.lines {
		onLine(l)
	}
	return nil
}

func TestHarvest_DecodesDefinitionsAndSkipsProgress(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"kind":"progress","stage":"importing","message":"steps.requests"}`,
		`{"verb":"given","pattern":"a user of type \"{type}\"","help":"registers a user","file":"steps/requests.py","line":10,"file_arg_positions":[]}`,
		`{"kind":"progress","stage":"done","message":"1 steps"}`,
	}}

	defs, err := Harvest(context.Background(), exec, "/venv/bin/python3", t.TempDir(), "steps.requests", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d: %+v", len(defs), defs)
	}
	d := defs[0]
	if d.Verb != inventory.Given || d.Help != "registers a user" {
		t.Fatalf("unexpected definition: %+v", d)
	}
	if d.SourceLocation.File != "steps/requests.py" || d.SourceLocation.Line != 10 {
		t.Fatalf("unexpected source location: %+v", d.SourceLocation)
	}
	if len(d.RegexPatterns) == 0 {
		t.Fatalf("expected the harvested pattern to be normalized into regexes")
	}
}

func TestHarvest_ReportsProgressCallback(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"kind":"progress","stage":"importing","message":"steps.requests"}`,
	}}
	var stages []string
	_, err := Harvest(context.Background(), exec, "python3", t.TempDir(), "steps.requests", nil, func(stage, msg string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stages) != 1 || stages[0] != "importing" {
		t.Fatalf("expected one 'importing' progress callback, got %v", stages)
	}
}

func TestHarvest_SkipsMalformedPatternWithoutFailingWholeHarvest(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"verb":"given","pattern":"unbalanced {","help":"","file":"f.py","line":1,"file_arg_positions":[]}`,
		`{"verb":"when","pattern":"a valid step","help":"","file":"f.py","line":2,"file_arg_positions":[]}`,
	}}
	defs, err := Harvest(context.Background(), exec, "python3", t.TempDir(), "steps", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 || defs[0].Verb != inventory.When {
		t.Fatalf("expected the malformed entry skipped and the valid one kept, got %+v", defs)
	}
}

func TestHarvest_ArgumentEnumsFromTypeRegistry(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"verb":"given","pattern":"a user of type \"{type:StrictResponse}\"","help":"","file":"f.py","line":1,"file_arg_positions":[]}`,
	}}
	types := pattern.ParseTypeRegistry{"StrictResponse": {"get", "post"}}
	defs, err := Harvest(context.Background(), exec, "python3", t.TempDir(), "steps", types, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %+v", defs)
	}
	values := defs[0].ArgumentEnums[1]
	if len(values) != 2 {
		t.Fatalf("expected 2 enumerated alternatives at position 1, got %v", values)
	}
}

func TestHarvest_WrapsExecutorFailureAsSourceLoadFailed(t *testing.T) {
	exec := &fakeExecutor{err: context.DeadlineExceeded}
	_, err := Harvest(context.Background(), exec, "python3", t.TempDir(), "steps", nil, nil)
	if err == nil {
		t.Fatalf("expected an error when the executor fails")
	}
	if !strings.Contains(err.Error(), "SourceLoadFailed") {
		t.Fatalf("expected a SourceLoadFailed error, got %v", err)
	}
}

func TestEnvPreparer_SkipsReinstallWhenRequirementsUnchanged(t *testing.T) {
	dir := t.TempDir()
	reqFile := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(reqFile, []byte("behave==1.2.6\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{}
	p := &EnvPreparer{Runner: exec, VenvDir: filepath.Join(dir, ".venv"), RequirementsFile: reqFile}

	if err := p.Prepare(context.Background()); err != nil {
		t.Fatalf("first prepare failed: %v", err)
	}
	firstCalls := exec.calls

	if err := p.Prepare(context.Background()); err != nil {
		t.Fatalf("second prepare failed: %v", err)
	}
	if exec.calls != firstCalls {
		t.Fatalf("expected no additional subprocess calls on unchanged requirements, first=%d second=%d", firstCalls, exec.calls)
	}
}

func TestIgnoreMatcher_MatchesGlobPatterns(t *testing.T) {
	m := NewIgnoreMatcher([]string{"**/generated/**", "*.bak"})
	if !m.Ignored("steps/generated/foo.py") {
		t.Fatalf("expected generated/ file to be ignored")
	}
	if m.Ignored("steps/requests.py") {
		t.Fatalf("did not expect requests.py to be ignored")
	}
}
