package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientListCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "100" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(upstreamListResponse{
			Data: []UpstreamCard{{Name: "Dark Magician", Type: "Normal Monster"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	cards, err := c.ListCards(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("ListCards() error = %v", err)
	}
	if len(cards) != 1 || cards[0].Name != "Dark Magician" {
		t.Fatalf("unexpected cards: %+v", cards)
	}
}

func TestClientListCardsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.ListCards(context.Background(), 0, 10); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
