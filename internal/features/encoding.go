package features

import (
	"fmt"
	"sort"
)

// CategoryEncoding maps the categories seen at fit time to 0..n-1 in sorted order.
// Values never seen during fitting encode as Fallback, the most frequent fitted category.
type CategoryEncoding struct {
	Classes  []string `json:"classes"`
	Fallback string   `json:"fallback"`

	index map[string]int
}

func newCategoryEncoding(classes []string, fallback string) (*CategoryEncoding, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoding has no classes")
	}
	enc := &CategoryEncoding{
		Classes:  append([]string(nil), classes...),
		Fallback: fallback,
		index:    make(map[string]int, len(classes)),
	}
	for i, c := range enc.Classes {
		if _, dup := enc.index[c]; dup {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		enc.index[c] = i
	}
	if _, ok := enc.index[fallback]; !ok {
		return nil, fmt.Errorf("fallback %q is not a known class", fallback)
	}
	return enc, nil
}

// fitEncoding learns an encoding from the observed values. Empty strings are ignored.
func fitEncoding(values []string) (*CategoryEncoding, error) {
	observed := make([]string, 0, len(values))
	seen := make(map[string]struct{})
	var classes []string
	for _, v := range values {
		if v == "" {
			continue
		}
		observed = append(observed, v)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	return newCategoryEncoding(classes, mode(observed))
}

// Encode returns the code for value and whether value was seen at fit time.
func (e *CategoryEncoding) Encode(value string) (int, bool) {
	if code, ok := e.index[value]; ok {
		return code, true
	}
	return e.index[e.Fallback], false
}
