package ssml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned by Validate for markup that is not a single
// well-formed speak document.
var ErrMalformed = errors.New("malformed SSML")

// Validate checks that markup is well-formed XML with exactly one root
// element named speak.
func Validate(markup string) error {
	dec := xml.NewDecoder(strings.NewReader(markup))
	depth := 0
	roots := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if t.Name.Local != "speak" {
					return fmt.Errorf("%w: root element %q", ErrMalformed, t.Name.Local)
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return fmt.Errorf("%w: text outside root element", ErrMalformed)
			}
		}
	}

	if roots != 1 {
		return fmt.Errorf("%w: expected one root element, found %d", ErrMalformed, roots)
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced elements", ErrMalformed)
	}
	return nil
}
