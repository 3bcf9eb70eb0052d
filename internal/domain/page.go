package domain

// PaginationParams carries page/limit values from the HTTP layer to the repo layer.
// Page is 1-indexed. Limit is capped at 100 by NewPaginationParams.
type PaginationParams struct {
	// Page is the current page number, starting at 1.
	Page int
	// Limit is the maximum number of items to return.
	Limit int
}

// NewPaginationParams builds a PaginationParams from optional HTTP query params.
// Nil pointers fall back to page=1 and defaultLimit.
// The limit is capped at 100 to prevent runaway queries.
func NewPaginationParams(page, limit *int, defaultLimit int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: defaultLimit}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = *limit
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	return p
}

// Offset returns the zero-based row offset for a SQL OFFSET clause.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is the listing envelope returned to clients.
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
}

// NewPage wraps one page of results. Data is never nil.
func NewPage[T any](data []T, total int64, p PaginationParams) Page[T] {
	if data == nil {
		data = []T{}
	}
	last := 0
	if p.Limit > 0 {
		last = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Page[T]{Data: data, Total: total, Page: p.Page, LastPage: last}
}
