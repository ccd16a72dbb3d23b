// Package conflict produces structured diff data when no anchor
// position clears the fuzzy threshold. It renders nothing itself;
// presentation belongs to the caller. The data is sufficient to
// reconstruct a full three-part diff deterministically: the target
// text, the expected context/body, and the best near-miss.
package conflict

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/match"
	"github.com/YunHsiao/crysknife/pkg/patch"
)

// LineType classifies one diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is a single line of the computed diff.
type Line struct {
	Content string
	Type    LineType
}

// Report carries everything needed to diagnose an unmatched patch.
type Report struct {
	// Target is the path the record failed to anchor in.
	Target string
	// TargetText is the full (cleared) target content.
	TargetText string
	// Record is the newest attempted record.
	Record *patch.Record

	// HasNearMiss is true when some position scored best without
	// qualifying; Position and Score then describe it.
	HasNearMiss bool
	Position    int
	Score       float64

	// Diff is the line diff between the text actually present around
	// the near-miss position and the text the record expected there.
	// Without a near miss it diffs against the start of the file.
	Diff []Line
}

// Build assembles a report for a record that found no qualifying
// anchor in lines. near may be nil.
func Build(target string, lines []string, record *patch.Record, near *match.Candidate) *Report {
	r := &Report{
		Target:     target,
		TargetText: strings.Join(lines, "\n"),
		Record:     record,
	}

	at := 0
	if near != nil {
		r.HasNearMiss = true
		r.Position = near.Position
		r.Score = near.Score
		at = near.Position
	}

	r.Diff = diffLines(actualWindow(lines, record, at), expectedWindow(record))
	return r
}

// expectedWindow is what the record wanted to see around its anchor:
// preceding context, the stock text for deletions, following context.
func expectedWindow(record *patch.Record) []string {
	window := make([]string, 0, len(record.Preceding)+len(record.Stock)+len(record.Following))
	window = append(window, record.Preceding...)
	if record.Kind == guard.Deletion {
		window = append(window, record.Stock...)
	}
	window = append(window, record.Following...)
	return window
}

// actualWindow is the slice of the target the record would have
// anchored against at position at.
func actualWindow(lines []string, record *patch.Record, at int) []string {
	from := at - len(record.Preceding)
	if from < 0 {
		from = 0
	}
	to := at + len(record.Stock) + len(record.Following)
	if to > len(lines) {
		to = len(lines)
	}
	return lines[from:to]
}

// diffLines computes a line-level diff using a character reduction so
// line boundaries survive the round trip through diffmatchpatch.
func diffLines(actual, expected []string) []Line {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(joinBlock(actual), joinBlock(expected))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []Line
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text != "\n" {
			continue
		}
		for _, content := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, Line{Content: content, Type: LineContext})
			case diffmatchpatch.DiffDelete:
				out = append(out, Line{Content: content, Type: LineRemoved})
			case diffmatchpatch.DiffInsert:
				out = append(out, Line{Content: content, Type: LineAdded})
			}
		}
	}
	return out
}

func joinBlock(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
