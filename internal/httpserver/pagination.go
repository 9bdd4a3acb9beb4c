package httpserver

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize and MaxPageSize are not used by any listing in this
	// module; card and deck listings use CatalogDefaultPageSize and
	// CatalogMaxPageSize below.
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// --- 0-based catalog/deck pagination (§6: page, size, items/currentPage/...) ---

const (
	// CatalogDefaultPageSize is the default page size for card/deck listings.
	CatalogDefaultPageSize = 20
	// CatalogMaxPageSize is the hard ceiling page size is clamped to.
	CatalogMaxPageSize = 200
)

// CatalogPageParams holds the 0-based page and clamped size parsed from a
// request's query string.
type CatalogPageParams struct {
	Page int
	Size int
}

// ParseCatalogPageParams extracts 0-based page/size query params, clamping
// size to [1, CatalogMaxPageSize] with a default of CatalogDefaultPageSize.
func ParseCatalogPageParams(r *http.Request) CatalogPageParams {
	p := CatalogPageParams{Page: 0, Size: CatalogDefaultPageSize}

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Page = n
		}
	}

	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			p.Size = n
		}
	}
	if p.Size > CatalogMaxPageSize {
		p.Size = CatalogMaxPageSize
	}

	return p
}

// Page is the response envelope for catalog/deck listings (§6).
type Page[T any] struct {
	Items        []T  `json:"items"`
	CurrentPage  int  `json:"currentPage"`
	PageSize     int  `json:"pageSize"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	HasNext      bool `json:"hasNext"`
	HasPrevious  bool `json:"hasPrevious"`
}

// NewPage builds a Page from a result set, its 0-based page params, and the
// total item count across all pages.
func NewPage[T any](items []T, params CatalogPageParams, totalItems int) Page[T] {
	totalPages := 0
	if params.Size > 0 {
		totalPages = (totalItems + params.Size - 1) / params.Size
	}

	return Page[T]{
		Items:       items,
		CurrentPage: params.Page,
		PageSize:    params.Size,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		HasNext:     params.Page+1 < totalPages,
		HasPrevious: params.Page > 0,
	}
}
