// Package document holds the paged text model produced by extraction and the
// PDF extraction capability itself.
package document

import "sort"

// Page is the extracted text of one page. Index is 0-based.
type Page struct {
	Index int
	Text  string
}

// Document is an ordered, immutable sequence of pages loaded from Source.
type Document struct {
	Source string
	Pages  []Page
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// SelectPages returns a copy of the document restricted to the given page
// indices. Pages keep their original indices and document order; indices not
// present in the document are ignored.
func (d *Document) SelectPages(indices []int) *Document {
	wanted := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		wanted[i] = struct{}{}
	}

	selected := make([]Page, 0, len(wanted))
	for _, p := range d.Pages {
		if _, ok := wanted[p.Index]; ok {
			selected = append(selected, p)
		}
	}

	return &Document{Source: d.Source, Pages: selected}
}

// Indices returns the sorted page indices present in the document.
func (d *Document) Indices() []int {
	out := make([]int, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Index
	}
	sort.Ints(out)
	return out
}
