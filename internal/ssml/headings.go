package ssml

import "strings"

// Heading is a `== Title ==` style heading found in a text.
type Heading struct {
	Start int    // byte offset of the opening run
	End   int    // byte offset just past the closing run
	Level int    // length of the `=` run on each side
	Title string // title with surrounding whitespace trimmed
}

// FindHeadings returns the non-overlapping headings of text in order.
//
// A heading is a maximal run of `=`, horizontal whitespace, a single-line
// title, horizontal whitespace and a closing run of exactly the same length.
// The shortest title that satisfies this wins.
func FindHeadings(text string) []Heading {
	var headings []Heading
	for i := 0; i < len(text); {
		if h, ok := matchHeading(text, i); ok {
			headings = append(headings, h)
			i = h.End
			continue
		}
		i++
	}
	return headings
}

func matchHeading(text string, start int) (Heading, bool) {
	if text[start] != '=' || (start > 0 && text[start-1] == '=') {
		return Heading{}, false
	}

	level := runLength(text, start)
	open := start + level
	titleStart := open
	for titleStart < len(text) && isBlank(text[titleStart]) {
		titleStart++
	}
	if titleStart == open || titleStart >= len(text) || isLineBreak(text[titleStart]) {
		return Heading{}, false
	}

	for k := titleStart + 1; k < len(text); k++ {
		c := text[k]
		if isLineBreak(c) {
			return Heading{}, false
		}
		if c != '=' || !isBlank(text[k-1]) {
			continue
		}
		n := runLength(text, k)
		if n != level {
			// the whole run belongs to the title
			k += n - 1
			continue
		}
		return Heading{
			Start: start,
			End:   k + n,
			Level: level,
			Title: strings.TrimSpace(text[titleStart:k]),
		}, true
	}
	return Heading{}, false
}

func runLength(text string, i int) int {
	n := 0
	for i+n < len(text) && text[i+n] == '=' {
		n++
	}
	return n
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func isLineBreak(c byte) bool {
	return c == '\n' || c == '\r'
}
