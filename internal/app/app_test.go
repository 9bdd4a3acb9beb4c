package app

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/internal/authn"
	"github.com/cardforge/cardforge/internal/httpserver"
	"github.com/cardforge/cardforge/internal/ratelimit"
	"github.com/cardforge/cardforge/internal/telemetry"
	"github.com/cardforge/cardforge/internal/token"
)

// newTestServer wires the real chi /api mount with the real rate-limit
// middleware, so these tests exercise the full request path (prefix and
// all) rather than calling ratelimit.Allow directly with a pre-stripped
// path, which would not have caught the "/api" mount bug.
func newTestServer(t *testing.T) *httpserver.Server {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	signer := token.NewSigner(key, &key.PublicKey, 15*time.Minute)
	limiter := ratelimit.New(rdb, ratelimit.DefaultTable())
	logger := telemetry.NewLogger("text", "error")

	srv := httpserver.NewServer(httpserver.Config{}, logger, nil, rdb, telemetry.NewMetricsRegistry(),
		authn.Filter(signer), rateLimitMiddleware(limiter, logger))

	srv.APIRouter.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv.APIRouter.Get("/cards", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return srv
}

// TestRateLimitAppliesThroughRealAPIMount is a regression test for the
// "/api" mount-prefix bug: the rate-limit middleware runs inside
// chi's /api sub-router, where r.URL.Path still carries the "/api"
// prefix. Exercises seed scenario S6 through the real middleware chain,
// not a direct ratelimit.Allow call with an already-stripped path.
func TestRateLimitAppliesThroughRealAPIMount(t *testing.T) {
	srv := newTestServer(t)

	var codes []int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:12345"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	for i, code := range codes[:5] {
		if code != http.StatusUnauthorized {
			t.Fatalf("login attempt %d: expected 401 from the handler, got %d", i, code)
		}
	}
	if codes[5] != http.StatusTooManyRequests {
		t.Fatalf("expected the 6th login attempt through /api/auth/login to be 429, got %d (all codes: %v)", codes[5], codes)
	}
}

// TestRateLimitCardSearchClassReachableThroughRealAPIMount is a regression
// test for the query-string matching bug: the card-search rule requires
// "?query=" in the candidate, which only exists if the query string is
// actually passed into the matcher.
func TestRateLimitCardSearchClassReachableThroughRealAPIMount(t *testing.T) {
	srv := newTestServer(t)

	var lastCode int
	for i := 0; i < 21; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/cards?query=dragon", nil)
		req.RemoteAddr = "203.0.113.10:12345"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected the 21st search request through /api/cards?query=... to be 429 (capacity=20), got %d", lastCode)
	}
}
