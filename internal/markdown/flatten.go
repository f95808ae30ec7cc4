// Package markdown normalises model-written Markdown summaries.
package markdown

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// reasoningBlock matches the <think> section emitted by reasoning models.
var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Flattener rewrites nested bullet lists as a single level of bullets.
type Flattener struct {
	parser goldmark.Markdown
}

// NewFlattener creates a flattener with the default CommonMark parser.
func NewFlattener() *Flattener {
	return &Flattener{parser: goldmark.New()}
}

// StripReasoning removes <think> sections and surrounding whitespace.
func StripReasoning(s string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(s, ""))
}

// Flatten returns source with every list item, however deeply nested, as a
// top-level "- " bullet in document order. Other blocks are kept as plain
// lines. Input without any list is returned trimmed but otherwise unchanged.
func (f *Flattener) Flatten(source string) string {
	src := []byte(source)
	doc := f.parser.Parser().Parse(text.NewReader(src))

	hasList := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindList {
			hasList = true
			break
		}
	}
	if !hasList {
		return strings.TrimSpace(source)
	}

	var lines []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		lines = flattenBlock(n, src, lines)
	}
	return strings.Join(lines, "\n")
}

func flattenBlock(n ast.Node, src []byte, out []string) []string {
	if n.Kind() != ast.KindList {
		if t := blockText(n, src); t != "" {
			out = append(out, t)
		}
		return out
	}

	for item := n.FirstChild(); item != nil; item = item.NextSibling() {
		var parts []string
		var nested []ast.Node
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Kind() == ast.KindList {
				nested = append(nested, c)
				continue
			}
			if t := blockText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			out = append(out, "- "+strings.Join(parts, " "))
		}
		for _, list := range nested {
			out = flattenBlock(list, src, out)
		}
	}
	return out
}

// blockText joins the source lines of a leaf block.
func blockText(n ast.Node, src []byte) string {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return ""
	}

	sep := " "
	if n.Kind() == ast.KindFencedCodeBlock || n.Kind() == ast.KindCodeBlock {
		sep = "\n"
	}

	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if line := strings.TrimSpace(string(seg.Value(src))); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, sep)
}
