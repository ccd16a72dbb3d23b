package guard

import "strings"

// SplitLines splits text into lines and reports whether the original
// text ended with a newline, so JoinLines can reproduce it exactly.
func SplitLines(text string) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = text[:len(text)-1]
	}
	return strings.Split(text, "\n"), trailing
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		out += "\n"
	}
	return out
}

// indentOf returns the leading whitespace of a line.
func indentOf(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}

// CommentOut disables a stock line by inserting a line comment after
// its indentation. Empty lines become a bare comment marker so the
// operation stays reversible.
func CommentOut(line string) string {
	indent := indentOf(line)
	rest := line[len(indent):]
	if rest == "" {
		return indent + "//"
	}
	return indent + "// " + rest
}

// Uncomment reverses CommentOut. The second return is false when the
// line does not carry a line comment after its indentation.
func Uncomment(line string) (string, bool) {
	indent := indentOf(line)
	rest := line[len(indent):]
	switch {
	case rest == "//":
		return indent, true
	case strings.HasPrefix(rest, "// "):
		return indent + rest[3:], true
	case strings.HasPrefix(rest, "//"):
		return indent + rest[2:], true
	default:
		return line, false
	}
}
