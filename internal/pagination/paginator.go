// Package pagination slices ordered in-memory collections into fixed-size
// pages with bounds-safe navigation. A Paginator never mutates its source
// slice; it only tracks the current page and page size.
package pagination

// DefaultPageSize is used when no explicit size is configured.
const DefaultPageSize = 10

// View is a point-in-time snapshot of one page, ready to serialize.
type View[T any] struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
	Items      []T  `json:"items"`
}

// Paginator pages over an ordered slice. The zero value is not usable; use
// New.
type Paginator[T any] struct {
	items []T
	page  int
	size  int
}

// New creates a paginator over items, positioned on page 1 with
// DefaultPageSize.
func New[T any](items []T) *Paginator[T] {
	return &Paginator[T]{items: items, page: 1, size: DefaultPageSize}
}

// NewWithSize creates a paginator with an explicit page size. Sizes below 1
// fall back to DefaultPageSize.
func NewWithSize[T any](items []T, size int) *Paginator[T] {
	if size < 1 {
		size = DefaultPageSize
	}
	return &Paginator[T]{items: items, page: 1, size: size}
}

// TotalPages reports the number of pages. An empty collection still counts
// as a single empty page.
func (p *Paginator[T]) TotalPages() int {
	n := (len(p.items) + p.size - 1) / p.size
	if n == 0 {
		return 1
	}
	return n
}

// Page returns the current 1-based page index.
func (p *Paginator[T]) Page() int { return p.page }

// PageSize returns the current page size.
func (p *Paginator[T]) PageSize() int { return p.size }

// HasNext reports whether a page exists after the current one.
func (p *Paginator[T]) HasNext() bool { return p.page < p.TotalPages() }

// HasPrev reports whether a page exists before the current one.
func (p *Paginator[T]) HasPrev() bool { return p.page > 1 }

// Items returns the slice for the current page. The result aliases the
// source slice; callers must not modify it.
func (p *Paginator[T]) Items() []T {
	lo := (p.page - 1) * p.size
	if lo >= len(p.items) {
		return nil
	}
	hi := lo + p.size
	if hi > len(p.items) {
		hi = len(p.items)
	}
	return p.items[lo:hi]
}

// GoToPage moves to page n. Requests outside [1, TotalPages] are silently
// ignored: callers are expected to consult HasNext/HasPrev, and a bad page
// number is not an error.
func (p *Paginator[T]) GoToPage(n int) {
	if n < 1 || n > p.TotalPages() {
		return
	}
	p.page = n
}

// Next advances one page when possible.
func (p *Paginator[T]) Next() {
	if p.HasNext() {
		p.page++
	}
}

// Prev steps back one page when possible.
func (p *Paginator[T]) Prev() {
	if p.HasPrev() {
		p.page--
	}
}

// SetPageSize changes the page size. The current page is reclamped to
// min(current, new TotalPages) so the paginator never points past the end.
// Sizes below 1 are ignored.
func (p *Paginator[T]) SetPageSize(size int) {
	if size < 1 {
		return
	}
	p.size = size
	if total := p.TotalPages(); p.page > total {
		p.page = total
	}
}

// SetItems swaps the source collection, reclamping the current page the same
// way SetPageSize does.
func (p *Paginator[T]) SetItems(items []T) {
	p.items = items
	if total := p.TotalPages(); p.page > total {
		p.page = total
	}
}

// View snapshots the current page.
func (p *Paginator[T]) View() View[T] {
	return View[T]{
		Page:       p.page,
		PageSize:   p.size,
		TotalItems: len(p.items),
		TotalPages: p.TotalPages(),
		HasNext:    p.HasNext(),
		HasPrev:    p.HasPrev(),
		Items:      p.Items(),
	}
}
