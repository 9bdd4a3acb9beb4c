package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardforge/cardforge/internal/token"
	"github.com/cardforge/cardforge/pkg/principal"
)

func testSigner(t *testing.T) *token.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return token.NewSigner(key, &key.PublicKey, 15*time.Minute)
}

func TestFilterAttachesPrincipalFromValidToken(t *testing.T) {
	signer := testSigner(t)
	raw, err := signer.Mint(token.AccessClaims{Subject: "user1", Roles: []string{"ROLE_ADMIN"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var seen principal.Principal
	handler := Filter(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.Username != "user1" || seen.Role != principal.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", seen)
	}
}

func TestFilterFallsBackToAnonymousWithoutHeader(t *testing.T) {
	signer := testSigner(t)

	var seen principal.Principal
	handler := Filter(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !seen.IsAnonymous() {
		t.Fatalf("expected anonymous principal, got %+v", seen)
	}
}

func TestFilterFallsBackToAnonymousOnInvalidToken(t *testing.T) {
	signer := testSigner(t)

	var seen principal.Principal
	handler := Filter(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !seen.IsAnonymous() {
		t.Fatalf("expected anonymous principal for invalid token, got %+v", seen)
	}
}
