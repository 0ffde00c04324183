package ssml

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Emphasis levels understood by SSML backends.
const (
	EmphasisStrong   = "strong"
	EmphasisModerate = "moderate"
	EmphasisReduced  = "reduced"
	EmphasisNone     = "none"
)

var (
	ampersandRe = regexp.MustCompile(`\s*&\s*`)
	quoteRe     = regexp.MustCompile(`"[^"\r\n]*"`)
	newlineRe   = regexp.MustCompile(`[\r\n]+`)

	angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// Options controls the pause durations and emphasis levels of the cues.
type Options struct {
	QuoteBreak    time.Duration
	QuoteEmphasis string

	// HeadingBreak is reduced by HeadingDifference for every `=` of the
	// heading delimiter, so deeper headings pause less.
	HeadingBreak      time.Duration
	HeadingDifference time.Duration
	HeadingEmphasis   string

	EllipsisBreak time.Duration
	DashBreak     time.Duration
	NewlineBreak  time.Duration
}

// DefaultOptions returns the default cue settings.
func DefaultOptions() Options {
	return Options{
		QuoteBreak:        250 * time.Millisecond,
		QuoteEmphasis:     EmphasisModerate,
		HeadingBreak:      4000 * time.Millisecond,
		HeadingDifference: 250 * time.Millisecond,
		HeadingEmphasis:   EmphasisStrong,
		EllipsisBreak:     1500 * time.Millisecond,
		DashBreak:         500 * time.Millisecond,
		NewlineBreak:      1000 * time.Millisecond,
	}
}

// Validate checks that durations are non-negative and emphasis levels known.
func (o Options) Validate() error {
	breaks := map[string]time.Duration{
		"quote break":        o.QuoteBreak,
		"heading break":      o.HeadingBreak,
		"heading difference": o.HeadingDifference,
		"ellipsis break":     o.EllipsisBreak,
		"dash break":         o.DashBreak,
		"newline break":      o.NewlineBreak,
	}
	for name, d := range breaks {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d)
		}
	}
	if !validEmphasis(o.QuoteEmphasis) {
		return fmt.Errorf("invalid quote emphasis %q", o.QuoteEmphasis)
	}
	if !validEmphasis(o.HeadingEmphasis) {
		return fmt.Errorf("invalid heading emphasis %q", o.HeadingEmphasis)
	}
	return nil
}

func validEmphasis(level string) bool {
	switch level {
	case EmphasisStrong, EmphasisModerate, EmphasisReduced, EmphasisNone:
		return true
	}
	return false
}

// Annotator converts plain text into SSML. It holds no mutable state and
// is safe for concurrent use.
type Annotator struct {
	opts Options
}

// NewAnnotator creates an annotator with the given cue settings.
func NewAnnotator(opts Options) *Annotator {
	return &Annotator{opts: opts}
}

// Annotate returns the SSML form of text.
//
// The rules run in a fixed order and each later rule only ever sees markup
// it cannot match: ampersands, quotes, headings, ellipses, em-dashes and
// finally newlines. Characters XML cannot carry are replaced first.
func (a *Annotator) Annotate(text string) string {
	s := ampersandRe.ReplaceAllString(xmlText(text), " and ")
	s = angleEscaper.Replace(s)

	s = quoteRe.ReplaceAllStringFunc(s, func(quoted string) string {
		brk := breakTag(a.opts.QuoteBreak)
		return brk + emphasis(a.opts.QuoteEmphasis, quoted) + brk
	})

	s = a.annotateHeadings(s)

	s = strings.ReplaceAll(s, "...", breakTag(a.opts.EllipsisBreak)+"...")
	s = strings.ReplaceAll(s, "—", breakTag(a.opts.DashBreak)+"—")
	s = newlineRe.ReplaceAllLiteralString(s, breakTag(a.opts.NewlineBreak)+"\n")

	return "<speak>" + s + "</speak>"
}

func (a *Annotator) annotateHeadings(s string) string {
	headings := FindHeadings(s)
	if len(headings) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(headings)*96)
	prev := 0
	for _, h := range headings {
		brk := breakTag(a.HeadingBreak(h.Level))
		b.WriteString(s[prev:h.Start])
		b.WriteString(brk)
		b.WriteString("Topic ")
		b.WriteString(emphasis(a.opts.HeadingEmphasis, h.Title))
		b.WriteString(brk)
		prev = h.End
	}
	b.WriteString(s[prev:])
	return b.String()
}

// HeadingBreak returns the pause used around a heading of the given level,
// never less than zero.
func (a *Annotator) HeadingBreak(level int) time.Duration {
	d := a.opts.HeadingBreak - time.Duration(level)*a.opts.HeadingDifference
	if d < 0 {
		return 0
	}
	return d
}

// xmlText drops invalid UTF-8 and turns every character outside the XML
// Char production, such as form feeds, into a space.
func xmlText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return ' '
	}, s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func breakTag(d time.Duration) string {
	return fmt.Sprintf(`<break time="%dms"/>`, d.Milliseconds())
}

func emphasis(level, text string) string {
	return `<emphasis level="` + level + `">` + text + `</emphasis>`
}
