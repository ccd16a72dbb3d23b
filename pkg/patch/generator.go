package patch

import (
	"github.com/rs/zerolog"

	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/logging"
)

// Generator derives records from a live, guard-annotated file and
// appends them to the store as new versions. Unchanged segments are
// recognized and skipped, so a fully up-to-date file is a no-op.
type Generator struct {
	parser  *guard.Parser
	store   *Store
	context int
	logger  zerolog.Logger
}

// NewGenerator creates a generator clipping context windows at the
// given number of lines.
func NewGenerator(parser *guard.Parser, store *Store, contextLines int) *Generator {
	return &Generator{
		parser:  parser,
		store:   store,
		context: contextLines,
		logger:  logging.GetLogger("patch.generator"),
	}
}

// Derive parses the live text mapped to target and returns the
// candidate records, one per segment, without touching the store.
func (g *Generator) Derive(target, text string) ([]*Record, error) {
	lines, _ := guard.SplitLines(text)
	segments, err := g.parser.Parse(lines)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(segments))
	removed := 0
	for i := range segments {
		seg := &segments[i]
		records = append(records, &Record{
			Target:    target,
			Kind:      seg.Kind,
			Style:     seg.Style,
			Comment:   seg.Comment,
			Offset:    seg.Start - removed,
			Preceding: g.precedingContext(lines, segments, i),
			Following: g.followingContext(lines, segments, i),
			Body:      append([]string(nil), seg.Body...),
			Stock:     append([]string(nil), seg.Stock...),
		})
		// Track how many lines clearing the segments above would
		// remove, so Offset points into the cleared target.
		removed += seg.Span() - len(seg.Stock)
	}
	return records, nil
}

// Generate derives records for the live text and appends every one
// not already stored. Returns how many new versions were written;
// zero means the store already matched the file.
func (g *Generator) Generate(target, text string) (int, error) {
	records, err := g.Derive(target, text)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	set, err := g.store.Load(target)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, record := range records {
		if set.Contains(record) {
			continue
		}
		if err := g.store.Append(record); err != nil {
			return added, err
		}
		set.Records = append(set.Records, record)
		added++
	}

	if added > 0 {
		g.logger.Info().
			Str("target", target).
			Int("added", added).
			Msg("Generated patch versions")
	}
	return added, nil
}

// precedingContext clips up to g.context lines before segment i,
// stopping at the file start or the previous segment's guard boundary.
func (g *Generator) precedingContext(lines []string, segments []guard.Segment, i int) []string {
	seg := &segments[i]
	from := seg.Start - g.context
	if from < 0 {
		from = 0
	}
	if i > 0 && segments[i-1].End+1 > from {
		from = segments[i-1].End + 1
	}
	return append([]string(nil), lines[from:seg.Start]...)
}

// followingContext clips up to g.context lines after segment i,
// stopping at the file end or the next segment's guard boundary.
func (g *Generator) followingContext(lines []string, segments []guard.Segment, i int) []string {
	seg := &segments[i]
	to := seg.End + 1 + g.context
	if to > len(lines) {
		to = len(lines)
	}
	if i+1 < len(segments) && segments[i+1].Start < to {
		to = segments[i+1].Start
	}
	return append([]string(nil), lines[seg.End+1:to]...)
}
