package storage

import (
	"fmt"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination selects a 1-based page of a listing.
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize clamps the page and page size to usable values.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the number of rows skipped before the page.
func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Page is one page of a listing plus the total row count.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// Slice cuts the page described by p out of an already filtered and ordered
// result set.
func Slice[T any](all []T, p Pagination) Page[T] {
	p = p.Normalize()
	start := p.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	return Page[T]{Items: items, Total: len(all), Page: p.Page, PageSize: p.PageSize}
}

// Ordering is a validated sort key. Field is one of the names allowed by the
// listing that parsed it.
type Ordering struct {
	Field string
	Desc  bool
}

// ParseOrdering reads "field" or "-field". An empty value orders by fallback.
func ParseOrdering(v, fallback string, allowed ...string) (Ordering, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Ordering{Field: fallback}, nil
	}
	o := Ordering{Field: v}
	if strings.HasPrefix(v, "-") {
		o = Ordering{Field: v[1:], Desc: true}
	}
	for _, name := range allowed {
		if name == o.Field {
			return o, nil
		}
	}
	return Ordering{}, fmt.Errorf("cannot order by %q", v)
}
