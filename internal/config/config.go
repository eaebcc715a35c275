// Package config decodes and hot-reloads the workspace's initializationOptions:
// a typed, validated struct behind an atomic pointer so in-flight requests
// never see a half-applied reload.
package config

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
)

// QuickFix holds the optional "create step" template.
type QuickFix struct {
	StepImplTemplate string `json:"step_impl_template" toml:"step_impl_template"`
}

// Config is the decoded, validated initializationOptions object.
type Config struct {
	VariablePattern       []string `json:"variable_pattern" toml:"variable_pattern"`
	UseVirtualEnvironment bool     `json:"use_virtual_environment" toml:"use_virtual_environment"`
	PipExtraIndexURL      string   `json:"pip_extra_index_url" toml:"pip_extra_index_url"`
	DiagnosticsOnSaveOnly bool     `json:"diagnostics_on_save_only" toml:"diagnostics_on_save_only"`
	QuickFix              QuickFix `json:"quick_fix" toml:"quick_fix"`
	FileIgnorePatterns    []string `json:"file_ignore_patterns" toml:"file_ignore_patterns"`

	// MinCoreVersion gates workspaces that require LS features newer than
	// this build.
	MinCoreVersion string `json:"min_core_version" toml:"min_core_version"`
	LogLevel       string `json:"log_level" toml:"log_level"`

	// VariableRegexes are VariablePattern compiled once at load time; each
	// must carry exactly one capture group.
	VariableRegexes []*regexp.Regexp `json:"-" toml:"-"`
}

// pyprojectFile is the slice of pyproject.toml grizzly-ls actually reads:
// the `[tool.grizzly-ls]` table, sitting alongside the rest of a Python
// project's `[tool.*]` configuration (poetry, black, mypy, ...).
type pyprojectFile struct {
	Tool struct {
		GrizzlyLS Config `toml:"grizzly-ls"`
	} `toml:"tool"`
}

// Default returns the zero-configuration defaults applied when
// initializationOptions omits a field entirely.
func Default() *Config {
	return &Config{
		UseVirtualEnvironment: true,
		LogLevel:              "info",
	}
}

// Decode parses raw initializationOptions JSON into a validated Config,
// starting from Default() so omitted fields keep their default.
func Decode(raw []byte) (*Config, error) {
	cfg := Default()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, errs.Wrap(errs.Internal, "decoding initializationOptions", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeTOML parses a workspace's pyproject.toml, reading its
// `[tool.grizzly-ls]` table into a validated Config starting from
// Default(). A pyproject.toml with no such table yields Default().
func DecodeTOML(raw []byte) (*Config, error) {
	var file pyprojectFile
	file.Tool.GrizzlyLS = *Default()
	if len(raw) > 0 {
		if err := toml.Unmarshal(raw, &file); err != nil {
			return nil, errs.Wrap(errs.Internal, "decoding pyproject.toml", err)
		}
	}
	cfg := &file.Tool.GrizzlyLS
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate compiles VariablePattern and checks MinCoreVersion, failing
// closed.
func (c *Config) validate() error {
	c.VariableRegexes = c.VariableRegexes[:0]
	for _, pat := range c.VariablePattern {
		rx, err := regexp.Compile(pat)
		if err != nil {
			return errs.Wrap(errs.Internal, fmt.Sprintf("compiling variable_pattern %q", pat), err)
		}
		if rx.NumSubexp() != 1 {
			return errs.New(errs.Internal, fmt.Sprintf("variable_pattern %q must have exactly one capture group, has %d", pat, rx.NumSubexp()))
		}
		c.VariableRegexes = append(c.VariableRegexes, rx)
	}
	return nil
}

// CheckCoreVersion refuses to load a workspace that pins a MinCoreVersion
// newer than buildVersion. An empty MinCoreVersion or
// buildVersion skips the check (unversioned builds, e.g. `go run` from
// source, never gate a workspace).
func (c *Config) CheckCoreVersion(buildVersion string) error {
	if c.MinCoreVersion == "" || buildVersion == "" {
		return nil
	}
	required, err := semver.NewVersion(c.MinCoreVersion)
	if err != nil {
		return errs.Wrap(errs.Internal, fmt.Sprintf("parsing min_core_version %q", c.MinCoreVersion), err)
	}
	actual, err := semver.NewVersion(buildVersion)
	if err != nil {
		return errs.Wrap(errs.Internal, fmt.Sprintf("parsing build version %q", buildVersion), err)
	}
	if actual.LessThan(required) {
		return errs.New(errs.Internal, fmt.Sprintf("workspace requires grizzly-ls >= %s, running %s", required, actual))
	}
	return nil
}
