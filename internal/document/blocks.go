package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgnsrekt/speakdoc/internal/ssml"
)

// MinBlockSize is the smallest accepted block budget. Anything smaller
// cannot hold the speak wrapper plus a single cue.
const MinBlockSize = 64

// BlockOptions bounds the size of each chunk.
type BlockOptions struct {
	// Size is the byte budget for the annotated chunk. Every chunk's markup
	// is strictly shorter than Size unless a single rune cannot fit.
	Size int

	// Separator is the preferred cut point, a sentence end by default.
	Separator string
}

// DefaultBlockOptions returns a budget that fits Polly's SSML request limit.
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{
		Size:      3000,
		Separator: ".",
	}
}

// Validate checks the budget and separator.
func (o BlockOptions) Validate() error {
	if o.Size < MinBlockSize {
		return fmt.Errorf("block size must be at least %d bytes, got %d", MinBlockSize, o.Size)
	}
	if utf8.RuneCountInString(o.Separator) != 1 {
		return fmt.Errorf("block separator must be a single character, got %q", o.Separator)
	}
	return nil
}

// Chunk is one annotated slice of a section, the unit sent to the backend.
type Chunk struct {
	// Index is the document-wide sequence number, contiguous from zero.
	Index int

	// Section is the index of the section the chunk was cut from.
	Section int

	// Source is the raw text that was annotated into Markup.
	Source string
	Markup string
}

// Splitter cuts section text into chunks whose markup fits the budget.
type Splitter struct {
	annotator *ssml.Annotator
	opts      BlockOptions
}

// NewSplitter creates a splitter that measures chunks with annotator.
func NewSplitter(annotator *ssml.Annotator, opts BlockOptions) *Splitter {
	return &Splitter{annotator: annotator, opts: opts}
}

// SplitBlock peels the next chunk off text and returns its markup together
// with the remaining raw text.
//
// The cut point is found by geometric backoff rather than an exact search:
// the candidate end shrinks by a quarter each round and the cut falls just
// after the last separator before it. The first candidate whose markup fits
// wins. Text that fits whole is returned whole.
func (s *Splitter) SplitBlock(text string) (markup, rest string) {
	if markup := s.annotator.Annotate(text); len(markup) < s.opts.Size {
		return markup, ""
	}

	end := s.opts.Size
	for {
		end = end * 3 / 4
		cut := s.cutIndex(text, end)
		markup = s.annotator.Annotate(text[:cut])
		if len(markup) < s.opts.Size || end == 0 {
			return markup, text[cut:]
		}
	}
}

// cutIndex returns the cut position for a candidate end. It never returns
// zero for non-empty text and never splits a rune.
func (s *Splitter) cutIndex(text string, end int) int {
	window := min(len(text), end+len(s.opts.Separator))
	if i := strings.LastIndex(text[:window], s.opts.Separator); i >= 0 {
		return i + len(s.opts.Separator)
	}

	cut := min(len(text), end)
	for cut > 0 && cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(text)
		cut = size
	}
	return cut
}

// Chunk splits every section into chunks. It returns the chunks in document
// order and, per section, how many chunks that section produced.
func (s *Splitter) Chunk(sections []Section) ([]Chunk, []int) {
	var chunks []Chunk
	counts := make([]int, len(sections))

	for i, section := range sections {
		for rest := section.Content; rest != ""; {
			markup, next := s.SplitBlock(rest)
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Section: i,
				Source:  rest[:len(rest)-len(next)],
				Markup:  markup,
			})
			counts[i]++
			rest = next
		}
	}
	return chunks, counts
}
