// Package loader implements the Source Loader: causing the
// external, Python step-definition library to register its patterns, then
// harvesting the result as typed (verb, pattern, help, source_location)
// triples. The Go server never becomes a Python runtime itself — it shells
// out to one, opaquely, and only trusts the harvester's JSON-lines output.
package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/logging"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
)

// Executor runs an external command and streams its stdout line by line,
// abstracting os/exec so tests can substitute a fake process.
type Executor interface {
	// Run starts name with args in dir, calling onLine for every line the
	// child writes to stdout, and returns once the child exits.
	Run(ctx context.Context, dir, name string, args []string, onLine func(line string)) error
}

// execExecutor is the real Executor, backed by os/exec with the child in
// its own process group (process_unix.go / process_other.go).
type execExecutor struct{}

// NewExecutor returns the process-group-isolated Executor used outside tests.
func NewExecutor() Executor { return execExecutor{} }

func (execExecutor) Run(ctx context.Context, dir, name string, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		killProcessGroup(cmd)
	}
	if waitErr != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), waitErr, stderr.String())
	}
	return nil
}

// harvestLine is the harvester's per-definition JSON envelope (SPEC_FULL
// §4.C "one JSON object per line").
type harvestLine struct {
	Verb    string `json:"verb"`
	Pattern string `json:"pattern"`
	Help    string `json:"help"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	// FileArgPositions is the 1-based quoted-argument positions the step
	// library marks as filename references, harvested alongside
	// the pattern rather than inferred Go-side.
	FileArgPositions []int `json:"file_arg_positions"`
}

// progressLine is the harvester's separate, schema-less progress channel
// (pip's own `--report`/`--progress-bar` JSON differs across pip versions,
// so it's read with gjson path queries instead of a struct).
type progressLine struct {
	raw string
}

func (p progressLine) Stage() string  { return gjson.Get(p.raw, "stage").String() }
func (p progressLine) Message() string {
	if v := gjson.Get(p.raw, "message"); v.Exists() {
		return v.String()
	}
	return gjson.Get(p.raw, "status").String()
}

// Harvest runs the embedded harvester script against the module at
// modulePath (a dotted Python import path) using the interpreter at
// pythonPath, decoding its stdout into catalogue-ready inventory.Definition
// values. types resolves enum parse-types to their alternatives for both
// regex alternation (internal/pattern) and argument-enumeration completion.
// onProgress receives every non-definition line verbatim. A
// malformed pattern is skipped with a logged PatternMalformed error rather
// than failing the whole harvest.
func Harvest(ctx context.Context, runner Executor, pythonPath, workDir, modulePath string, types pattern.ParseTypeRegistry, onProgress func(stage, message string)) ([]*inventory.Definition, error) {
	scriptPath, cleanup, err := writeHarvestScript(workDir)
	if err != nil {
		return nil, errs.Wrap(errs.SourceLoadFailed, "writing embedded harvest script", err)
	}
	defer cleanup()

	var defs []*inventory.Definition

	runErr := runner.Run(ctx, workDir, pythonPath, []string{scriptPath, modulePath}, func(line string) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
			return
		}
		if gjson.Get(trimmed, "kind").String() == "progress" {
			if onProgress != nil {
				p := progressLine{raw: trimmed}
				onProgress(p.Stage(), p.Message())
			}
			return
		}
		var hl harvestLine
		if err := json.Unmarshal([]byte(trimmed), &hl); err != nil {
			logging.Named("loader").Sugar().Warnw("skipping malformed harvest line", "line", trimmed, "error", err)
			return
		}
		def, err := toDefinition(hl, types)
		if err != nil {
			logging.Named("loader").Sugar().Warnw("skipping malformed step definition", "pattern", hl.Pattern, "error", err)
			return
		}
		defs = append(defs, def)
	})
	if runErr != nil {
		return nil, errs.Wrap(errs.SourceLoadFailed, fmt.Sprintf("harvesting step definitions from %s", modulePath), runErr)
	}
	return defs, nil
}

func toDefinition(hl harvestLine, types pattern.ParseTypeRegistry) (*inventory.Definition, error) {
	var verb inventory.Verb
	switch strings.ToLower(hl.Verb) {
	case "given":
		verb = inventory.Given
	case "when":
		verb = inventory.When
	case "then":
		verb = inventory.Then
	default:
		return nil, fmt.Errorf("unrecognized verb %q", hl.Verb)
	}

	normalized, err := pattern.Normalize(hl.Pattern, types)
	if err != nil {
		return nil, err
	}

	fileArgs := make(map[int]bool, len(hl.FileArgPositions))
	for _, pos := range hl.FileArgPositions {
		fileArgs[pos] = true
	}

	argEnums := map[int][]string{}
	for _, p := range pattern.QuotedPlaceholderPositions(hl.Pattern) {
		if values, ok := types[p.Type]; ok && len(values) > 0 {
			argEnums[p.Position] = values
		}
	}

	return &inventory.Definition{
		Verb:                  verb,
		Expression:            hl.Pattern,
		CleanExpression:       normalized.CleanExpression,
		RegexPatterns:         normalized.RegexPatterns,
		ExpressionVariants:    normalized.ExpressionVariants,
		Help:                  hl.Help,
		SourceLocation:        &inventory.SourceLocation{File: hl.File, Line: hl.Line},
		ArgumentEnums:         argEnums,
		FileArgumentPositions: fileArgs,
	}, nil
}
