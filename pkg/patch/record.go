// Package patch holds the persisted unit of change: what a guard
// segment looked like, where it sat, and the stock text around it.
// Records are immutable once created; newer engine versions supersede
// them with new records instead of editing old ones.
package patch

import (
	"github.com/YunHsiao/crysknife/pkg/guard"
)

// Record is one persisted change against one target file. Preceding
// and Following are the unguarded lines around the segment at
// generation time (the matching anchor). Offset is the segment's line
// position in the cleared target, a hint only; absolute line numbers
// drift heavily across engine versions.
type Record struct {
	Target    string
	Kind      guard.Kind
	Style     guard.Style
	Comment   string
	Order     int
	Offset    int
	Preceding []string
	Following []string
	Body      []string
	Stock     []string
}

// Same reports whether two records describe the identical change:
// equal kind, context windows and body. Order and Offset are recency
// and drift hints, not identity.
func (r *Record) Same(other *Record) bool {
	if r.Kind != other.Kind {
		return false
	}
	return equalLines(r.Preceding, other.Preceding) &&
		equalLines(r.Following, other.Following) &&
		equalLines(r.Body, other.Body) &&
		equalLines(r.Stock, other.Stock)
}

// Segment converts the record back into the guard segment it encodes.
func (r *Record) Segment() *guard.Segment {
	return &guard.Segment{
		Kind:    r.Kind,
		Style:   r.Style,
		Comment: r.Comment,
		Body:    r.Body,
		Stock:   r.Stock,
	}
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

// VersionSet is every record stored for one target path, creation
// order ascending (newest last).
type VersionSet struct {
	Target  string
	Records []*Record
}

// NewestFirst returns the records most recent first, the order the
// matcher tries them in.
func (v *VersionSet) NewestFirst() []*Record {
	out := make([]*Record, len(v.Records))
	for i, r := range v.Records {
		out[len(v.Records)-1-i] = r
	}
	return out
}

// Contains reports whether an identical record is already present.
func (v *VersionSet) Contains(r *Record) bool {
	for _, existing := range v.Records {
		if existing.Same(r) {
			return true
		}
	}
	return false
}

// NextOrder returns the creation order the next appended record gets.
func (v *VersionSet) NextOrder() int {
	max := -1
	for _, r := range v.Records {
		if r.Order > max {
			max = r.Order
		}
	}
	return max + 1
}
