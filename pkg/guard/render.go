package guard

// RenderAddition wraps body lines in an Addition guard of the given
// style. Block guards take their indentation from the first body line.
func RenderAddition(tag string, style Style, comment string, body []string) []string {
	switch style {
	case SingleLine:
		if len(body) == 1 {
			return []string{body[0] + " // " + tag + comment}
		}
	case NextLine:
		if len(body) == 1 {
			return []string{indentOf(body[0]) + "// " + tag + comment, body[0]}
		}
	}

	indent := ""
	if len(body) > 0 {
		indent = indentOf(body[0])
	}
	out := make([]string, 0, len(body)+2)
	out = append(out, indent+"// "+tag+comment+": Begin")
	out = append(out, body...)
	out = append(out, indent+"// "+tag+": End")
	return out
}

// RenderDeletion comments out stock lines and wraps them in a Deletion
// guard of the given style.
func RenderDeletion(tag string, style Style, comment string, stock []string) []string {
	switch style {
	case SingleLine:
		if len(stock) == 1 {
			return []string{CommentOut(stock[0]) + " // " + tag + "-" + comment}
		}
	case NextLine:
		if len(stock) == 1 {
			return []string{indentOf(stock[0]) + "// " + tag + "-" + comment, CommentOut(stock[0])}
		}
	}

	indent := ""
	if len(stock) > 0 {
		indent = indentOf(stock[0])
	}
	out := make([]string, 0, len(stock)+2)
	out = append(out, indent+"// "+tag+"-"+comment+": Begin")
	for _, line := range stock {
		out = append(out, CommentOut(line))
	}
	out = append(out, indent+"// "+tag+": End")
	return out
}

// Render emits the guarded form of a segment, reproducing the style it
// was recorded with.
func Render(tag string, seg *Segment) []string {
	if seg.Kind == Deletion {
		return RenderDeletion(tag, seg.Style, seg.Comment, seg.Stock)
	}
	return RenderAddition(tag, seg.Style, seg.Comment, seg.Body)
}

// Clear removes every guard segment of the tag from lines: Addition
// segments vanish entirely, Deletion segments are restored to their
// original stock lines. The second return reports whether anything
// changed.
func Clear(p *Parser, lines []string) ([]string, bool, error) {
	segments, err := p.Parse(lines)
	if err != nil {
		return nil, false, err
	}
	if len(segments) == 0 {
		return lines, false, nil
	}

	out := make([]string, 0, len(lines))
	next := 0
	for si := range segments {
		seg := &segments[si]
		out = append(out, lines[next:seg.Start]...)
		if seg.Kind == Deletion {
			out = append(out, seg.Stock...)
		}
		next = seg.End + 1
	}
	out = append(out, lines[next:]...)
	return out, true, nil
}
