// Package chunker splits paged document text into bounded, overlapping segments.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docqa/internal/document"
)

// ErrInvalidConfig is returned when size and overlap do not satisfy size > overlap >= 0.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Segment is a chunk of page text tagged with the page it came from.
type Segment struct {
	Text       string // Verbatim page text, overlapping its neighbours
	SourcePage int    // 0-based page index where the text starts
	SequenceID int    // Position in the whole document (0, 1, 2...)
}

// separators are tried in order when looking for a clean place to cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker cuts text into windows of at most Size runes, with Overlap runes
// shared between consecutive windows of the same page.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Size and overlap are measured in runes.
func New(size, overlap int) (*Chunker, error) {
	if overlap < 0 || size <= overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum segment length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive segments of a page.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every page of doc independently and numbers the resulting
// segments in document order. Blank pages and windows that fall entirely
// inside a whitespace run produce no segments.
func (c *Chunker) Split(doc *document.Document) []Segment {
	var segments []Segment
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, text := range c.SplitText(page.Text) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			segments = append(segments, Segment{
				Text:       text,
				SourcePage: page.Index,
				SequenceID: len(segments),
			})
		}
	}
	return segments
}

// SplitText cuts text into windows. Every window after the first starts
// exactly Overlap runes before the end of the previous one, so the original
// text is window[0] + window[i][Overlap:] for the remaining windows.
func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{text}
	}

	var out []string
	start := 0
	for {
		end := start + c.size
		if end >= n {
			out = append(out, string(runes[start:]))
			break
		}
		end = c.cutPoint(runes, start, end)
		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
	return out
}

// cutPoint moves end back to just after the strongest separator found in the
// second half of the window. The returned end always leaves start+overlap behind
// it so the next window makes progress.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	floor := start + max(c.overlap+1, c.size/2)
	if floor >= end {
		return end
	}

	window := string(runes[floor:end])
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// idx is a byte offset into window; convert back to runes
		cut := floor + len([]rune(window[:idx])) + len([]rune(sep))
		if cut > start+c.overlap && cut <= end {
			return cut
		}
	}
	return end
}
