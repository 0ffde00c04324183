// Package document splits a plain-text document into titled sections and
// cuts each section into SSML chunks small enough for the speech backend.
package document

import "github.com/dgnsrekt/speakdoc/internal/ssml"

// Section is a contiguous span of the document. The first section of every
// document is untitled; all others are introduced by a heading.
type Section struct {
	// Title is empty for the untitled leading section.
	Title string

	// Content includes the section's own heading line, which the annotator
	// later speaks as a topic announcement.
	Content string
}

// Titled reports whether the section was introduced by a heading.
func (s Section) Titled() bool {
	return s.Title != ""
}

// SplitSections partitions text at its headings. The returned sections
// cover text exactly once and in order; a text without headings yields a
// single untitled section.
func SplitSections(text string) []Section {
	headings := ssml.FindHeadings(text)
	sections := make([]Section, 0, len(headings)+1)

	start, title := 0, ""
	for _, h := range headings {
		sections = append(sections, Section{Title: title, Content: text[start:h.Start]})
		start, title = h.Start, h.Title
	}
	return append(sections, Section{Title: title, Content: text[start:]})
}
