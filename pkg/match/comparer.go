// Package match locates the best anchor position for stored patch
// records inside a target file that has shifted since the records
// were generated, and picks the best version among them.
package match

import "strings"

// LineComparer decides whether a context line agrees with a target
// line. Exact comparison is the baseline; finer fuzz is a pluggable
// strategy, not a built-in heuristic.
type LineComparer func(a, b string) bool

// ExactLine matches lines byte for byte.
func ExactLine(a, b string) bool {
	return a == b
}

// FoldSpace matches lines ignoring leading/trailing whitespace and
// collapsing interior runs, tolerating pure reformatting.
func FoldSpace(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
