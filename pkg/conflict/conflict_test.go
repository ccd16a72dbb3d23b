package conflict_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunHsiao/crysknife/pkg/conflict"
	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/match"
	"github.com/YunHsiao/crysknife/pkg/patch"
)

func linesOf(report *conflict.Report, want conflict.LineType) []string {
	var out []string
	for _, l := range report.Diff {
		if l.Type == want {
			out = append(out, l.Content)
		}
	}
	return out
}

func TestBuild_WithNearMiss(t *testing.T) {
	rec := &patch.Record{
		Target:    "Engine/Core.cpp",
		Kind:      guard.Addition,
		Style:     guard.Block,
		Preceding: []string{"a", "b"},
		Following: []string{"c"},
		Body:      []string{"x();"},
	}
	lines := []string{"a", "x", "c"}
	near := &match.Candidate{Record: rec, Position: 2, Score: 2.0 / 3.0}

	report := conflict.Build("Engine/Core.cpp", lines, rec, near)

	assert.Equal(t, "Engine/Core.cpp", report.Target)
	assert.Equal(t, "a\nx\nc", report.TargetText)
	assert.True(t, report.HasNearMiss)
	assert.Equal(t, 2, report.Position)
	assert.InDelta(t, 2.0/3.0, report.Score, 1e-9)

	// The diff pinpoints the divergent line: the target has "x" where
	// the record expected "b".
	assert.Contains(t, linesOf(report, conflict.LineRemoved), "x")
	assert.Contains(t, linesOf(report, conflict.LineAdded), "b")
	context := linesOf(report, conflict.LineContext)
	assert.Contains(t, context, "a")
	assert.Contains(t, context, "c")
}

func TestBuild_WithoutNearMiss(t *testing.T) {
	rec := &patch.Record{
		Target:    "Engine/Core.cpp",
		Kind:      guard.Addition,
		Style:     guard.Block,
		Preceding: []string{"alpha"},
		Following: []string{"omega"},
		Body:      []string{"x();"},
	}
	lines := []string{"one", "two"}

	report := conflict.Build("Engine/Core.cpp", lines, rec, nil)

	assert.False(t, report.HasNearMiss)
	assert.Zero(t, report.Position)
	require.NotEmpty(t, report.Diff)
	assert.Contains(t, linesOf(report, conflict.LineAdded), "alpha")
	assert.Contains(t, linesOf(report, conflict.LineAdded), "omega")
}

func TestBuild_DeletionExpectsStock(t *testing.T) {
	rec := &patch.Record{
		Target:    "Engine/Core.cpp",
		Kind:      guard.Deletion,
		Style:     guard.Block,
		Preceding: []string{"p"},
		Following: []string{"f"},
		Stock:     []string{"s1", "s2"},
	}
	lines := []string{"p", "zzz", "f"}

	report := conflict.Build("Engine/Core.cpp", lines, rec, nil)

	// The expected window includes the vanished stock lines.
	added := linesOf(report, conflict.LineAdded)
	assert.Contains(t, added, "s1")
	assert.Contains(t, added, "s2")
	assert.Contains(t, linesOf(report, conflict.LineRemoved), "zzz")
}

func TestBuild_EmptyTarget(t *testing.T) {
	rec := &patch.Record{
		Target:    "Engine/New.cpp",
		Kind:      guard.Addition,
		Style:     guard.Block,
		Preceding: []string{"head"},
		Body:      []string{"x();"},
	}

	report := conflict.Build("Engine/New.cpp", nil, rec, nil)

	assert.Empty(t, report.TargetText)
	assert.Contains(t, linesOf(report, conflict.LineAdded), "head")
}
