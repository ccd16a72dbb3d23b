package guard

import (
	"strings"

	"github.com/YunHsiao/crysknife/pkg/errors"
)

// Parser recognizes guard segments for one plugin tag.
type Parser struct {
	tag    string
	marker string
}

// NewParser creates a parser for the given plugin tag.
func NewParser(tag string) *Parser {
	return &Parser{tag: tag, marker: "// " + tag}
}

// Tag returns the plugin tag this parser recognizes.
func (p *Parser) Tag() string {
	return p.tag
}

type guardForm int

const (
	formBegin guardForm = iota
	formEnd
	formComment  // comment-only guard line, NextLine opener
	formTrailing // code followed by a trailing guard, SingleLine
)

type guardLine struct {
	form     guardForm
	deletion bool
	comment  string
	code     string
}

// classify decides whether a line carries a guard for our tag and, if
// so, which form. Non-guard lines return ok=false.
func (p *Parser) classify(line string) (guardLine, bool) {
	idx := strings.Index(line, p.marker)
	if idx < 0 {
		return guardLine{}, false
	}

	var g guardLine
	rest := line[idx+len(p.marker):]
	if strings.HasPrefix(rest, "-") {
		g.deletion = true
		rest = rest[1:]
	}
	rest = strings.TrimRight(rest, " \t")

	code := strings.TrimRight(line[:idx], " \t")
	hasCode := strings.TrimSpace(code) != ""

	switch {
	case strings.HasSuffix(rest, ": Begin"):
		g.form = formBegin
		g.comment = strings.TrimSuffix(rest, ": Begin")
	case strings.HasSuffix(strings.TrimSuffix(rest, "-"), ": End"):
		// Trailing '-' on End is tolerated and ignored.
		g.form = formEnd
	case hasCode:
		g.form = formTrailing
		g.code = code
		g.comment = rest
	default:
		g.form = formComment
		g.comment = rest
	}
	return g, true
}

type parseState int

const (
	stateOutside parseState = iota
	stateInBlock
)

// Parse scans lines and returns every guard segment in file order.
// Malformed guards (unmatched Begin/End, nested Begin, a guard marker
// inside an open block, a dangling NextLine guard) fail with a
// MALFORMED_GUARD error carrying the offending 1-based line number.
func (p *Parser) Parse(lines []string) ([]Segment, error) {
	var segments []Segment

	state := stateOutside
	var open Segment // current block while state == stateInBlock

	for i := 0; i < len(lines); i++ {
		g, isGuard := p.classify(lines[i])

		if state == stateInBlock {
			if !isGuard {
				open.Body = append(open.Body, lines[i])
				continue
			}
			switch g.form {
			case formEnd:
				open.End = i
				if open.Kind == Deletion {
					stock, err := p.recoverStock(open.Body, open.Start)
					if err != nil {
						return nil, err
					}
					open.Stock = stock
				}
				segments = append(segments, open)
				state = stateOutside
			case formBegin:
				return nil, p.malformed(i, "nested guard Begin inside an open block")
			default:
				return nil, p.malformed(i, "guard marker inside an open block")
			}
			continue
		}

		if !isGuard {
			continue
		}

		switch g.form {
		case formBegin:
			open = Segment{
				Kind:    kindOf(g.deletion),
				Style:   Block,
				Start:   i,
				Comment: g.comment,
			}
			state = stateInBlock

		case formEnd:
			return nil, p.malformed(i, "guard End without a matching Begin")

		case formTrailing:
			seg := Segment{
				Kind:    kindOf(g.deletion),
				Style:   SingleLine,
				Start:   i,
				End:     i,
				Comment: g.comment,
				Body:    []string{g.code},
			}
			if seg.Kind == Deletion {
				stock, err := p.recoverStock(seg.Body, i)
				if err != nil {
					return nil, err
				}
				seg.Stock = stock
			}
			segments = append(segments, seg)

		case formComment:
			if i+1 >= len(lines) {
				return nil, p.malformed(i, "next-line guard at end of file")
			}
			if _, nextIsGuard := p.classify(lines[i+1]); nextIsGuard {
				return nil, p.malformed(i+1, "next-line guard not followed by a code line")
			}
			seg := Segment{
				Kind:    kindOf(g.deletion),
				Style:   NextLine,
				Start:   i,
				End:     i + 1,
				Comment: g.comment,
				Body:    []string{lines[i+1]},
			}
			if seg.Kind == Deletion {
				stock, err := p.recoverStock(seg.Body, i+1)
				if err != nil {
					return nil, err
				}
				seg.Stock = stock
			}
			segments = append(segments, seg)
			i++
		}
	}

	if state == stateInBlock {
		return nil, p.malformed(open.Start, "guard Begin without a matching End")
	}

	return segments, nil
}

// recoverStock uncomments a deletion segment's body to get the
// original lines back.
func (p *Parser) recoverStock(body []string, at int) ([]string, error) {
	stock := make([]string, 0, len(body))
	for _, line := range body {
		restored, ok := Uncomment(line)
		if !ok {
			return nil, p.malformed(at, "deletion guard wraps a line that is not commented out")
		}
		stock = append(stock, restored)
	}
	return stock, nil
}

func (p *Parser) malformed(line int, msg string) error {
	return errors.Newf(errors.ErrMalformedGuard, "%s (line %d)", msg, line+1).
		WithDetail("line", line+1).
		WithDetail("tag", p.tag)
}

func kindOf(deletion bool) Kind {
	if deletion {
		return Deletion
	}
	return Addition
}
