package pdftools

import (
	"strconv"
	"strings"

	"docpress/contracts"
)

// ParsePages expands a page list such as "1-3,5,2" into 1-based page
// numbers, in the order given. Every page must exist in a document of
// total pages.
func ParsePages(field, list string, total int) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, contracts.Invalid(field, nil, "no pages given")
	}
	var pages []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := pageNumber(field, lo, total)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if strings.TrimSpace(hi) == "" {
				last = total
			} else if last, err = pageNumber(field, hi, total); err != nil {
				return nil, err
			}
		}
		if first > last {
			return nil, contracts.Invalid(field, part, "range start is after its end")
		}
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil, contracts.Invalid(field, list, "no pages given")
	}
	return pages, nil
}

func pageNumber(field, s string, total int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, contracts.Invalid(field, s, "not a page number")
	}
	if n < 1 || n > total {
		return 0, contracts.Invalid(field, n, "page out of range 1-"+strconv.Itoa(total))
	}
	return n, nil
}

func selection(pages []int) []string {
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	return sel
}
