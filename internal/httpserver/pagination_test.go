package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseCatalogPageParams(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantPage int
		wantSize int
	}{
		{"defaults", "", 0, CatalogDefaultPageSize},
		{"custom page and size", "page=2&size=50", 2, 50},
		{"size clamped to max", "size=5000", 0, CatalogMaxPageSize},
		{"invalid page ignored", "page=-1", 0, CatalogDefaultPageSize},
		{"invalid size ignored", "size=0", 0, CatalogDefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p := ParseCatalogPageParams(r)
			if p.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", p.Page, tt.wantPage)
			}
			if p.Size != tt.wantSize {
				t.Errorf("Size = %d, want %d", p.Size, tt.wantSize)
			}
		})
	}
}

func TestNewPageHasNextHasPrevious(t *testing.T) {
	type item struct{ Name string }

	items := make([]item, 20)
	page := NewPage(items, CatalogPageParams{Page: 0, Size: 20}, 45)
	if page.TotalPages != 3 || !page.HasNext || page.HasPrevious {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page = NewPage(items, CatalogPageParams{Page: 2, Size: 20}, 45)
	if page.HasNext || !page.HasPrevious {
		t.Fatalf("unexpected last page: %+v", page)
	}
}

func TestNewPageEmpty(t *testing.T) {
	type item struct{ Name string }

	page := NewPage([]item{}, CatalogPageParams{Page: 0, Size: 20}, 0)
	if page.TotalPages != 0 || page.HasNext || page.HasPrevious {
		t.Fatalf("unexpected empty page: %+v", page)
	}
}
