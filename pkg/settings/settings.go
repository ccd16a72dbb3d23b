// Package settings builds the immutable configuration handle passed to
// every file-processing unit. Values are layered: built-in defaults,
// then CRYSKNIFE_* environment variables, then explicit CLI overrides.
package settings

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Settings carries every resolved knob the pipeline needs. Built once
// per invocation and never mutated afterwards.
type Settings struct {
	// Plugin is the guard tag, e.g. "Crysknife".
	Plugin string `koanf:"plugin"`

	// SourceRoot is the plugin's own source tree (holds SourcePatch/).
	SourceRoot string `koanf:"source"`
	// DestRoot is the engine source tree being injected into.
	DestRoot string `koanf:"destination"`

	PatchContext     int     `koanf:"patch-context"`
	ContentTolerance float64 `koanf:"content-tolerance"`
	// LineTolerance <= 0 means unbounded positional drift.
	LineTolerance float64 `koanf:"line-tolerance"`

	DryRun  bool `koanf:"dry-run"`
	Force   bool `koanf:"force"`
	Link    bool `koanf:"link"`
	Verbose int  `koanf:"verbose"`

	Include []string `koanf:"include"`
	Exclude []string `koanf:"exclude"`

	// Defines feed the rule engine's IsTruthy predicate and ${Var}
	// substitution, alongside [Variables] from the config file.
	Defines map[string]string `koanf:"defines"`

	Parallelism int `koanf:"parallelism"`
}

// defaults mirrors the documented CLI defaults.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"plugin":            "",
		"source":            "",
		"destination":       "",
		"patch-context":     50,
		"content-tolerance": 0.5,
		"line-tolerance":    0.0,
		"dry-run":           false,
		"force":             false,
		"link":              false,
		"verbose":           0,
		"parallelism":       runtime.NumCPU(),
	}
}

// Load layers defaults, environment and the given overrides into a
// Settings value. Overrides use the same keys as the koanf tags.
func Load(overrides map[string]interface{}) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// CRYSKNIFE_PATCH_CONTEXT=80 -> patch-context, etc.
	if err := k.Load(env.Provider("CRYSKNIFE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CRYSKNIFE_")
		return strings.ReplaceAll(strings.ToLower(s), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if s.Defines == nil {
		s.Defines = map[string]string{}
	}
	return &s, s.validate()
}

func (s *Settings) validate() error {
	if s.PatchContext < 1 {
		return fmt.Errorf("patch-context must be positive, got %d", s.PatchContext)
	}
	if s.ContentTolerance < 0 || s.ContentTolerance > 1 {
		return fmt.Errorf("content-tolerance must be within [0,1], got %g", s.ContentTolerance)
	}
	if s.Parallelism < 1 {
		s.Parallelism = 1
	}
	return nil
}

// LineDrift returns the positional tolerance as a float, +Inf when
// unbounded.
func (s *Settings) LineDrift() float64 {
	if s.LineTolerance <= 0 {
		return math.Inf(1)
	}
	return s.LineTolerance
}
