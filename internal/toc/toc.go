// Package toc derives chapter timestamps from the measured durations of a
// document's synthesized chunks.
package toc

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dgnsrekt/speakdoc/internal/document"
)

// Entry is one chapter of the table of contents.
type Entry struct {
	// Title is empty for the untitled leading section.
	Title string

	// Offset is the playback position in seconds at which the section starts.
	Offset float64

	// Time is Offset formatted as HH:MM:SS.
	Time string
}

// Titled reports whether the entry belongs to a titled section.
func (e Entry) Titled() bool {
	return e.Title != ""
}

// String renders the entry as an "HH:MM:SS title" line.
func (e Entry) String() string {
	return e.Time + " " + e.Title
}

// Build returns one entry per section. counts[i] is the number of chunks
// section i produced and durations holds every chunk's length in seconds in
// document order.
func Build(sections []document.Section, counts []int, durations []float64) ([]Entry, error) {
	if len(sections) != len(counts) {
		return nil, fmt.Errorf("have %d sections but %d chunk counts", len(sections), len(counts))
	}
	total := 0
	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("section %d has negative chunk count %d", i, n)
		}
		total += n
	}
	if total != len(durations) {
		return nil, fmt.Errorf("sections account for %d chunks but %d durations were measured", total, len(durations))
	}

	entries := make([]Entry, len(sections))
	offset, next := 0.0, 0
	for i, s := range sections {
		entries[i] = Entry{Title: s.Title, Offset: offset, Time: FormatTimestamp(offset)}
		for _, d := range durations[next : next+counts[i]] {
			offset += d
		}
		next += counts[i]
	}
	return entries, nil
}

// FormatTimestamp formats whole seconds as zero-padded HH:MM:SS. Fractions
// are truncated.
func FormatTimestamp(seconds float64) string {
	total := int64(math.Floor(math.Max(seconds, 0)))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// Format renders the titled entries one per line.
func Format(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if !e.Titled() {
			continue
		}
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Write writes Format(entries) to w.
func Write(w io.Writer, entries []Entry) error {
	_, err := io.WriteString(w, Format(entries))
	return err
}
