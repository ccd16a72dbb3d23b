// Package guard parses and renders the comment guards that delimit
// plugin-owned code inside stock engine files.
//
// Three guard forms are recognized, with the plugin tag T:
//
//	Block:      // T{comment}: Begin ... // T: End
//	SingleLine: {code} // T{comment}
//	NextLine:   // T{comment}  (exactly one code line follows)
//
// A '-' immediately after the tag marks a Deletion guard: the guarded
// lines are a comment-out of stock code, and the original text is
// recoverable.
package guard

// Kind distinguishes code the plugin adds from stock code it removes.
type Kind int

const (
	Addition Kind = iota
	Deletion
)

func (k Kind) String() string {
	if k == Deletion {
		return "deletion"
	}
	return "addition"
}

// Style is the concrete guard form a segment was written with.
type Style int

const (
	Block Style = iota
	SingleLine
	NextLine
)

func (s Style) String() string {
	switch s {
	case SingleLine:
		return "single-line"
	case NextLine:
		return "next-line"
	default:
		return "block"
	}
}

// Segment is one guarded region found in a text buffer. Start and End
// are 0-based line indices spanning the guard lines themselves. Body
// holds the payload lines exactly as present in the file, without the
// guard comment lines. For Deletion segments Stock holds the original
// lines recovered by uncommenting Body.
type Segment struct {
	Kind    Kind
	Style   Style
	Start   int
	End     int
	Comment string
	Body    []string
	Stock   []string
}

// Span returns the number of file lines the segment occupies,
// guard lines included.
func (s *Segment) Span() int {
	return s.End - s.Start + 1
}
