package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageList parses a 1-based page list such as "1,3-5" into sorted,
// unique 0-based page indices.
func ParsePageList(s string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		if first < 1 || last < first {
			return nil, fmt.Errorf("invalid page range %q: pages start at 1", part)
		}

		for p := first; p <= last; p++ {
			seen[p-1] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("no pages in %q", s)
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}

// FromDisplay converts 1-based page numbers to 0-based indices. Numbers below
// 1 cannot name a page and are dropped.
func FromDisplay(pages []int) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p >= 1 {
			out = append(out, p-1)
		}
	}
	return out
}

// ToDisplay converts 0-based page indices to 1-based page numbers.
func ToDisplay(indices []int) []int {
	out := make([]int, len(indices))
	for i, p := range indices {
		out[i] = p + 1
	}
	return out
}
