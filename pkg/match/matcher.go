package match

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/YunHsiao/crysknife/pkg/guard"
	"github.com/YunHsiao/crysknife/pkg/logging"
	"github.com/YunHsiao/crysknife/pkg/patch"
)

// Candidate is one scored anchor position for one record. Position is
// the insertion index into the target's lines for additions, and the
// first line of the stock block for deletions.
type Candidate struct {
	Record   *patch.Record
	Position int
	Score    float64
	Distance float64
}

// Matcher scores candidate positions for records against a target
// buffer. The target must not already contain the patch (callers
// clear it first).
type Matcher struct {
	compare   LineComparer
	tolerance float64 // content tolerance: max mismatching fraction
	drift     float64 // line tolerance: max positional drift, +Inf for none
	logger    zerolog.Logger
}

// NewMatcher creates a matcher. contentTolerance is the fraction of
// context lines allowed to mismatch (0.5 by default upstream);
// lineDrift prunes candidates further than that many lines from the
// record's original offset, math.Inf(1) to disable.
func NewMatcher(compare LineComparer, contentTolerance, lineDrift float64) *Matcher {
	if compare == nil {
		compare = ExactLine
	}
	return &Matcher{
		compare:   compare,
		tolerance: contentTolerance,
		drift:     lineDrift,
		logger:    logging.GetLogger("match"),
	}
}

// qualifies applies the content tolerance threshold with a small
// epsilon so the boundary case (exactly floor(T*N) mismatches) passes.
func (m *Matcher) qualifies(score float64) bool {
	return score+1e-9 >= 1-m.tolerance
}

// scoreAt computes the agreement of a record's context windows with
// the text around position k. The denominator is the number of
// context lines actually inside the file.
func (m *Matcher) scoreAt(lines []string, record *patch.Record, k int) (float64, bool) {
	if len(record.Preceding)+len(record.Following) == 0 {
		// The record carries no context at all (its segment spanned
		// the whole file): every position is a vacuous match, and the
		// distance tie-break anchors it at the recorded offset.
		return 1, true
	}

	after := k
	if record.Kind == guard.Deletion {
		after = k + len(record.Stock)
	}

	considered, matched := 0, 0
	for i := 0; i < len(record.Preceding); i++ {
		pos := k - 1 - i
		if pos < 0 {
			break
		}
		considered++
		if m.compare(record.Preceding[len(record.Preceding)-1-i], lines[pos]) {
			matched++
		}
	}
	for i := 0; i < len(record.Following); i++ {
		pos := after + i
		if pos >= len(lines) {
			break
		}
		considered++
		if m.compare(record.Following[i], lines[pos]) {
			matched++
		}
	}

	if considered == 0 {
		return 0, false
	}
	return float64(matched) / float64(considered), true
}

// stockAt reports whether the record's stock lines are present
// verbatim starting at k. Already-restored text must match exactly;
// anything else means the engine rewrote the stock.
func stockAt(lines []string, record *patch.Record, k int) bool {
	if k+len(record.Stock) > len(lines) {
		return false
	}
	for i, s := range record.Stock {
		if lines[k+i] != s {
			return false
		}
	}
	return true
}

// bestFor finds the record's best candidate position, qualified or
// not. ok is false when the record has no viable position at all
// (e.g. a deletion whose stock text is gone).
func (m *Matcher) bestFor(lines []string, record *patch.Record) (Candidate, bool) {
	best := Candidate{Record: record, Score: -1}
	found := false

	limit := len(lines)
	if record.Kind == guard.Deletion {
		limit = len(lines) - len(record.Stock)
	}
	for k := 0; k <= limit; k++ {
		if record.Kind == guard.Deletion && !stockAt(lines, record, k) {
			continue
		}
		dist := math.Abs(float64(k - record.Offset))
		if dist > m.drift {
			continue
		}
		score, ok := m.scoreAt(lines, record, k)
		if !ok {
			continue
		}
		if score > best.Score || (score == best.Score && dist < best.Distance) {
			best = Candidate{Record: record, Position: k, Score: score, Distance: dist}
			found = true
		}
	}
	return best, found
}

// Match selects the best qualifying (position, record) pair across
// every record in the set, tried newest to oldest. Ties break by
// newest record, then smallest positional distance. When nothing
// qualifies, best is nil and nearMiss carries the highest-scoring
// non-qualifying candidate for diagnostics, if any existed.
func (m *Matcher) Match(lines []string, set *patch.VersionSet) (best *Candidate, nearMiss *Candidate) {
	for _, record := range set.NewestFirst() {
		cand, ok := m.bestFor(lines, record)
		if !ok {
			continue
		}
		c := cand
		if m.qualifies(c.Score) {
			// Strictly-greater keeps the newest on equal score.
			if best == nil || c.Score > best.Score {
				best = &c
			}
		} else if nearMiss == nil || c.Score > nearMiss.Score {
			nearMiss = &c
		}
	}
	if best != nil {
		nearMiss = nil
	}
	return best, nearMiss
}

// SelectSites picks the records to actually inject when a target
// carries several independent segments. Each record contributes its
// best qualifying candidate; candidates are then taken best-first,
// and a candidate anchored at a site already claimed by a better one
// is treated as a superseded version of the same change. Returned
// candidates are sorted by position.
func (m *Matcher) SelectSites(lines []string, set *patch.VersionSet) (selected []Candidate, nearMiss *Candidate) {
	var qualifying []Candidate
	for _, record := range set.NewestFirst() {
		cand, ok := m.bestFor(lines, record)
		if !ok {
			continue
		}
		if m.qualifies(cand.Score) {
			qualifying = append(qualifying, cand)
		} else if nearMiss == nil || cand.Score > nearMiss.Score {
			nearMiss = &cand
		}
	}

	// Best-first on score; the stable sort keeps newest-first order
	// for equal scores. Positional distance already broke ties among
	// one record's own candidate positions.
	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].Score > qualifying[j].Score
	})

	for _, cand := range qualifying {
		if claimed(selected, cand) {
			continue
		}
		selected = append(selected, cand)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Position < selected[j].Position
	})

	if len(selected) > 0 {
		nearMiss = nil
	}
	return selected, nearMiss
}

// sameSiteSlack is how close two equal-body addition anchors must be
// to count as versions of the same change rather than distinct
// segments.
const sameSiteSlack = 2

// claimed reports whether a candidate's change is already covered by a
// better-scoring selection. Distinct segments can legitimately sit on
// adjacent lines, so anchor proximity alone is never identity: records
// collapse only when they look like versions of one change (context
// windows in substantial agreement, or an identical payload anchoring
// at nearly the same spot). Deletions additionally collapse when their
// stock ranges overlap, since two guards cannot own the same lines.
func claimed(selected []Candidate, cand Candidate) bool {
	for _, s := range selected {
		a, b := s.Record, cand.Record
		if a.Kind != b.Kind {
			continue
		}
		if contextAgreement(a, b) {
			return true
		}
		if a.Kind == guard.Deletion {
			if cand.Position < s.Position+len(a.Stock) &&
				s.Position < cand.Position+len(b.Stock) {
				return true
			}
			continue
		}
		delta := cand.Position - s.Position
		if delta < 0 {
			delta = -delta
		}
		if delta <= sameSiteSlack && equalLines(a.Body, b.Body) {
			return true
		}
	}
	return false
}

// contextAgreement reports whether two records describe the same site:
// both context windows agree on at least half of their shared length.
func contextAgreement(a, b *patch.Record) bool {
	return windowAgreement(a.Preceding, b.Preceding, true) >= 0.5 &&
		windowAgreement(a.Following, b.Following, false) >= 0.5
}

// windowAgreement measures how much two context windows agree over
// their shared length. Preceding windows align at the anchor (their
// ends), following windows at their starts. Two empty windows agree
// vacuously; an empty window against a non-empty one does not.
func windowAgreement(a, b []string, alignEnd bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	matched := 0
	for i := 0; i < n; i++ {
		var x, y string
		if alignEnd {
			x, y = a[len(a)-1-i], b[len(b)-1-i]
		} else {
			x, y = a[i], b[i]
		}
		if x == y {
			matched++
		}
	}
	return float64(matched) / float64(n)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
