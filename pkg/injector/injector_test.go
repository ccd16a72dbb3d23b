package injector_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunHsiao/crysknife/pkg/errors"
	"github.com/YunHsiao/crysknife/pkg/filesystem"
	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/injector"
	"github.com/YunHsiao/crysknife/pkg/patch"
	"github.com/YunHsiao/crysknife/pkg/rules"
	"github.com/YunHsiao/crysknife/pkg/settings"
	"github.com/YunHsiao/crysknife/pkg/types"
)

func defaultSettings() *settings.Settings {
	return &settings.Settings{
		Plugin:           "Crysknife",
		SourceRoot:       "/plugin",
		DestRoot:         "/engine",
		PatchContext:     10,
		ContentTolerance: 0.5,
		Parallelism:      2,
		Defines:          map[string]string{},
	}
}

func newInjector(t *testing.T, fs types.FS, set *settings.Settings, config string) *injector.Injector {
	t.Helper()
	engine, err := rules.NewEngine(config, set.Defines)
	require.NoError(t, err)
	return injector.New(fs, set, engine)
}

func writeTarget(t *testing.T, fs types.FS, path, text string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(path, []byte(text), 0644))
}

func readTarget(t *testing.T, fs types.FS, path string) string {
	t.Helper()
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func run(t *testing.T, in *injector.Injector, action injector.Action) *injector.Report {
	t.Helper()
	report, err := in.Run(context.Background(), action)
	require.NoError(t, err)
	return report
}

func resultFor(t *testing.T, report *injector.Report, target string) injector.Result {
	t.Helper()
	for _, res := range report.Results {
		if res.Target == target {
			return res
		}
	}
	t.Fatalf("no result for %s", target)
	return injector.Result{}
}

const pristine = `#include "Core.h"

void Init() {
	StockA();
	StockB();
	StockC();
	StockD();
}
`

const guarded = `#include "Core.h"

void Init() {
	// Crysknife-: Begin
	// StockA();
	// StockB();
	// StockC();
	// Crysknife: End
	// Crysknife: Begin
	Custom1();
	Custom2();
	// Crysknife: End
	StockD();
}
`

func TestInjector_RoundTrip(t *testing.T) {
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Include = []string{"Engine/Core.cpp"}
	in := newInjector(t, fs, set, "")

	writeTarget(t, fs, "/engine/Engine/Core.cpp", guarded)

	t.Run("generate_records_the_guarded_edits", func(t *testing.T) {
		report := run(t, in, injector.ActionGenerate)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeGenerated, res.Outcome)

		vset, err := in.Store().Load("Engine/Core.cpp")
		require.NoError(t, err)
		assert.Len(t, vset.Records, 2) // one deletion, one addition
	})

	t.Run("clear_restores_the_pristine_file", func(t *testing.T) {
		report := run(t, in, injector.ActionClear)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeCleared, res.Outcome)
		assert.Equal(t, pristine, readTarget(t, fs, "/engine/Engine/Core.cpp"))
	})

	t.Run("apply_reproduces_the_guarded_file_exactly", func(t *testing.T) {
		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeApplied, res.Outcome)
		assert.Equal(t, guarded, readTarget(t, fs, "/engine/Engine/Core.cpp"))
	})

	t.Run("second_apply_reports_nothing", func(t *testing.T) {
		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
		assert.False(t, report.Changed())
		assert.Equal(t, guarded, readTarget(t, fs, "/engine/Engine/Core.cpp"))
	})

	t.Run("regenerate_after_apply_is_a_noop", func(t *testing.T) {
		report := run(t, in, injector.ActionGenerate)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
	})

	t.Run("second_clear_reports_nothing", func(t *testing.T) {
		run(t, in, injector.ActionClear)
		report := run(t, in, injector.ActionClear)
		res := resultFor(t, report, "Engine/Core.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
	})
}

func TestInjector_ApplySurvivesDrift(t *testing.T) {
	// The engine file gained unrelated lines since the patch was
	// recorded; fuzzy matching still anchors both segments.
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Include = []string{"Engine/Core.cpp"}
	in := newInjector(t, fs, set, "")

	writeTarget(t, fs, "/engine/Engine/Core.cpp", guarded)
	run(t, in, injector.ActionGenerate)

	drifted := `// New engine copyright banner.
#include "Core.h"
#include "Extra.h"

void Init() {
	StockA();
	StockB();
	StockC();
	StockD();
}
`
	writeTarget(t, fs, "/engine/Engine/Core.cpp", drifted)

	report := run(t, in, injector.ActionApply)
	res := resultFor(t, report, "Engine/Core.cpp")
	require.Equal(t, injector.OutcomeApplied, res.Outcome)

	out := readTarget(t, fs, "/engine/Engine/Core.cpp")
	assert.Contains(t, out, "// Crysknife-: Begin")
	assert.Contains(t, out, "\t// StockA();")
	assert.Contains(t, out, "\tCustom1();")
	assert.NotContains(t, out, "\tStockA();\n") // stock is guarded out again
	assert.Contains(t, out, "#include \"Extra.h\"")
}

func TestInjector_Conflict(t *testing.T) {
	fs := filesystem.NewMemory()
	in := newInjector(t, fs, defaultSettings(), "")

	require.NoError(t, in.Store().Append(&patch.Record{
		Target:    "Engine/Gone.cpp",
		Kind:      guard.Addition,
		Style:     guard.Block,
		Preceding: []string{"alpha", "beta"},
		Following: []string{"gamma"},
		Body:      []string{"x();"},
	}))
	writeTarget(t, fs, "/engine/Engine/Gone.cpp", "one\ntwo\nthree\n")

	report := run(t, in, injector.ActionApply)
	res := resultFor(t, report, "Engine/Gone.cpp")

	assert.Equal(t, injector.OutcomeConflict, res.Outcome)
	assert.True(t, errors.IsErrorCode(res.Err, errors.ErrNoMatchFound))
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "Engine/Gone.cpp", res.Conflict.Target)
	assert.True(t, report.Failed())
	// The target is left untouched.
	assert.Equal(t, "one\ntwo\nthree\n", readTarget(t, fs, "/engine/Engine/Gone.cpp"))
}

func TestInjector_RulesIntegration(t *testing.T) {
	t.Run("skip_leaves_the_file_alone", func(t *testing.T) {
		fs := filesystem.NewMemory()
		in := newInjector(t, fs, defaultSettings(), "[Vendor]\nSkipIf=Always\n")

		require.NoError(t, in.Store().Append(&patch.Record{
			Target: "Vendor/Lib.cpp", Kind: guard.Addition, Style: guard.Block,
			Preceding: []string{"a"}, Body: []string{"x();"},
		}))
		writeTarget(t, fs, "/engine/Vendor/Lib.cpp", "a\n")

		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "Vendor/Lib.cpp")
		assert.Equal(t, injector.OutcomeSkipped, res.Outcome)
		assert.False(t, report.Failed())
		assert.Equal(t, "a\n", readTarget(t, fs, "/engine/Vendor/Lib.cpp"))
	})

	t.Run("skip_on_existing_replacement_target", func(t *testing.T) {
		fs := filesystem.NewMemory()
		config := "[ThirdParty/astc-encoder]\nSkipIf=TargetExists:ThirdParty/astcenc\n"
		in := newInjector(t, fs, defaultSettings(), config)

		require.NoError(t, in.Store().Append(&patch.Record{
			Target: "ThirdParty/astc-encoder/core.cpp", Kind: guard.Addition, Style: guard.Block,
			Preceding: []string{"a"}, Body: []string{"x();"},
		}))
		writeTarget(t, fs, "/engine/ThirdParty/astc-encoder/core.cpp", "a\n")
		writeTarget(t, fs, "/engine/ThirdParty/astcenc/readme.md", "replacement\n")

		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "ThirdParty/astc-encoder/core.cpp")
		assert.Equal(t, injector.OutcomeSkipped, res.Outcome)
	})

	t.Run("remap_redirects_the_write", func(t *testing.T) {
		fs := filesystem.NewMemory()
		in := newInjector(t, fs, defaultSettings(), "[Old]\nRemapIf=Always\nRemapTarget=New\n")

		require.NoError(t, in.Store().Append(&patch.Record{
			Target: "Old/File.cpp", Kind: guard.Addition, Style: guard.Block,
			Preceding: []string{"a"}, Following: []string{"b"}, Body: []string{"x();"},
		}))
		writeTarget(t, fs, "/engine/New/File.cpp", "a\nb\n")

		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "Old/File.cpp")
		require.Equal(t, injector.OutcomeApplied, res.Outcome)

		out := readTarget(t, fs, "/engine/New/File.cpp")
		assert.Equal(t, "a\n// Crysknife: Begin\nx();\n// Crysknife: End\nb\n", out)
	})
}

func TestInjector_Filters(t *testing.T) {
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Exclude = []string{"Vendor"}
	in := newInjector(t, fs, set, "")

	for _, target := range []string{"Engine/A.cpp", "Vendor/B.cpp"} {
		require.NoError(t, in.Store().Append(&patch.Record{
			Target: target, Kind: guard.Addition, Style: guard.Block,
			Preceding: []string{"a"}, Body: []string{"x();"},
		}))
	}
	writeTarget(t, fs, "/engine/Engine/A.cpp", "a\n")
	writeTarget(t, fs, "/engine/Vendor/B.cpp", "a\n")

	report := run(t, in, injector.ActionStatus)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "Engine/A.cpp", report.Results[0].Target)
}

func TestInjector_Placement(t *testing.T) {
	fs := filesystem.NewMemory()
	in := newInjector(t, fs, defaultSettings(), "")

	writeTarget(t, fs, "/plugin/SourcePatch/Module/New.cpp", "hello\n")

	t.Run("register_places_standalone_files", func(t *testing.T) {
		report := run(t, in, injector.ActionRegister)
		res := resultFor(t, report, "Module/New.cpp")
		assert.Equal(t, injector.OutcomePlaced, res.Outcome)
		assert.Equal(t, "hello\n", readTarget(t, fs, "/engine/Module/New.cpp"))
	})

	t.Run("second_register_reports_nothing", func(t *testing.T) {
		report := run(t, in, injector.ActionRegister)
		res := resultFor(t, report, "Module/New.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
	})

	t.Run("unregister_removes_them", func(t *testing.T) {
		report := run(t, in, injector.ActionUnregister)
		res := resultFor(t, report, "Module/New.cpp")
		assert.Equal(t, injector.OutcomeRemoved, res.Outcome)

		_, err := fs.Stat("/engine/Module/New.cpp")
		assert.Error(t, err)
	})

	t.Run("second_unregister_reports_nothing", func(t *testing.T) {
		report := run(t, in, injector.ActionUnregister)
		res := resultFor(t, report, "Module/New.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
	})
}

func TestInjector_StatusDoesNotWrite(t *testing.T) {
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Include = []string{"Engine/Core.cpp"}
	in := newInjector(t, fs, set, "")

	writeTarget(t, fs, "/engine/Engine/Core.cpp", guarded)
	run(t, in, injector.ActionGenerate)
	writeTarget(t, fs, "/engine/Engine/Core.cpp", pristine)

	report := run(t, in, injector.ActionStatus)
	res := resultFor(t, report, "Engine/Core.cpp")
	// Status reports the pending apply without touching the tree.
	assert.Equal(t, injector.OutcomeApplied, res.Outcome)
	assert.Equal(t, pristine, readTarget(t, fs, "/engine/Engine/Core.cpp"))
}

func TestInjector_AdjacentSingleLineSegments(t *testing.T) {
	// Two independent single-line guards sit one line apart. Both must
	// survive the full round trip; neither may be mistaken for an
	// older version of the other.
	const source = `a
	x(); // Crysknife
b
	y(); // Crysknife
c
`
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Include = []string{"Engine/Pair.cpp"}
	in := newInjector(t, fs, set, "")

	writeTarget(t, fs, "/engine/Engine/Pair.cpp", source)
	run(t, in, injector.ActionGenerate)

	t.Run("apply_on_guarded_file_changes_nothing", func(t *testing.T) {
		report := run(t, in, injector.ActionApply)
		res := resultFor(t, report, "Engine/Pair.cpp")
		assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
		assert.Equal(t, source, readTarget(t, fs, "/engine/Engine/Pair.cpp"))
	})

	t.Run("clear_then_apply_restores_both", func(t *testing.T) {
		report := run(t, in, injector.ActionClear)
		res := resultFor(t, report, "Engine/Pair.cpp")
		require.Equal(t, injector.OutcomeCleared, res.Outcome)
		assert.Equal(t, "a\nb\nc\n", readTarget(t, fs, "/engine/Engine/Pair.cpp"))

		report = run(t, in, injector.ActionApply)
		res = resultFor(t, report, "Engine/Pair.cpp")
		require.Equal(t, injector.OutcomeApplied, res.Outcome)
		assert.Equal(t, source, readTarget(t, fs, "/engine/Engine/Pair.cpp"))
	})
}

func TestInjector_WholeFileSegment(t *testing.T) {
	// A guard block spanning the entire file records no context at
	// all; it must still round-trip instead of reporting a conflict.
	const source = `// Crysknife: Begin
Everything();
// Crysknife: End
`
	fs := filesystem.NewMemory()
	set := defaultSettings()
	set.Include = []string{"Engine/Whole.cpp"}
	in := newInjector(t, fs, set, "")

	writeTarget(t, fs, "/engine/Engine/Whole.cpp", source)
	run(t, in, injector.ActionGenerate)

	report := run(t, in, injector.ActionClear)
	res := resultFor(t, report, "Engine/Whole.cpp")
	require.Equal(t, injector.OutcomeCleared, res.Outcome)
	assert.Equal(t, "", readTarget(t, fs, "/engine/Engine/Whole.cpp"))

	report = run(t, in, injector.ActionApply)
	res = resultFor(t, report, "Engine/Whole.cpp")
	require.Equal(t, injector.OutcomeApplied, res.Outcome)
	// An empty buffer carries no trailing-newline flag, so the
	// reapplied text ends without one.
	assert.Equal(t, strings.TrimSuffix(source, "\n"),
		readTarget(t, fs, "/engine/Engine/Whole.cpp"))

	report = run(t, in, injector.ActionApply)
	res = resultFor(t, report, "Engine/Whole.cpp")
	assert.Equal(t, injector.OutcomeUpToDate, res.Outcome)
}

func TestInjector_UnmatchableRecordDoesNotBlockTheRest(t *testing.T) {
	// One recorded segment still anchors, the other's stock vanished
	// from the engine entirely. The surviving segment lands; the
	// unmatchable one is treated as superseded rather than failing
	// the whole file.
	fs := filesystem.NewMemory()
	in := newInjector(t, fs, defaultSettings(), "")

	matching := &patch.Record{
		Target: "Engine/Half.cpp", Kind: guard.Addition, Style: guard.Block,
		Preceding: []string{"a", "b"}, Following: []string{"c"}, Body: []string{"x();"},
	}
	stale := &patch.Record{
		Target: "Engine/Half.cpp", Kind: guard.Deletion, Style: guard.Block,
		Preceding: []string{"gone1"}, Following: []string{"gone2"}, Stock: []string{"vanished();"},
	}
	require.NoError(t, in.Store().Append(matching))
	require.NoError(t, in.Store().Append(stale))

	writeTarget(t, fs, "/engine/Engine/Half.cpp", "a\nb\nc\n")

	report := run(t, in, injector.ActionApply)
	res := resultFor(t, report, "Engine/Half.cpp")
	require.Equal(t, injector.OutcomeApplied, res.Outcome)

	out := readTarget(t, fs, "/engine/Engine/Half.cpp")
	assert.Contains(t, out, "x();")
	assert.NotContains(t, out, "vanished();")
}
