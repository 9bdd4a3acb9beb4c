package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge/pkg/principal"
)

func testKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key, &key.PublicKey
}

// memStore is an in-memory RefreshStore fake for exercising the state
// machine without a live Postgres instance.
type memStore struct {
	mu      sync.Mutex
	records map[string]RefreshRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]RefreshRecord)}
}

func (m *memStore) Insert(ctx context.Context, principalID uuid.UUID, ttl time.Duration) (RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := RefreshRecord{
		Token:       NewRefreshToken(),
		PrincipalID: principalID,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(ttl),
	}
	m.records[r.Token] = r
	return r, nil
}

func (m *memStore) Get(ctx context.Context, tok string) (RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[tok]
	if !ok {
		return RefreshRecord{}, ErrRefreshNotFound
	}
	return r, nil
}

func (m *memStore) Revoke(ctx context.Context, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[tok]
	if !ok {
		return ErrRefreshNotFound
	}
	r.Revoked = true
	m.records[tok] = r
	return nil
}

func (m *memStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, r := range m.records {
		if r.PrincipalID == principalID {
			r.Revoked = true
			m.records[tok] = r
		}
	}
	return nil
}

func (m *memStore) Touch(ctx context.Context, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[tok]
	if !ok {
		return ErrRefreshNotFound
	}
	now := time.Now()
	r.LastUsedAt = &now
	m.records[tok] = r
	return nil
}

func (m *memStore) DeleteInactive(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for tok, r := range m.records {
		if r.Revoked || now.After(r.ExpiresAt) {
			delete(m.records, tok)
			n++
		}
	}
	return n, nil
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer := NewSigner(priv, pub, 15*time.Minute)

	raw, err := signer.Mint(AccessClaims{Subject: "user1", Roles: []string{"ROLE_USER"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user1" || len(claims.Roles) != 1 || claims.Roles[0] != "ROLE_USER" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer := NewSigner(priv, pub, -time.Minute)

	raw, err := signer.Mint(AccessClaims{Subject: "user1", Roles: []string{"ROLE_USER"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := signer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := testKeyPair(t)
	_, otherPub := testKeyPair(t)
	signer := NewSigner(priv, otherPub, time.Minute)

	raw, err := signer.Mint(AccessClaims{Subject: "user1", Roles: []string{"ROLE_USER"}})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := signer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for mismatched key, got %v", err)
	}
}

func TestLoginRefreshLogoutStateMachine(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer := NewSigner(priv, pub, 15*time.Minute)
	store := newMemStore()
	svc := NewService(signer, store, 7*24*time.Hour)
	ctx := context.Background()

	p := principal.Principal{ID: uuid.New(), Username: "user1", Role: principal.RoleUser}
	lookup := func(ctx context.Context, id uuid.UUID) (principal.Principal, error) {
		return p, nil
	}

	issued, err := svc.Login(ctx, p)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", issued)
	}

	refreshed, err := svc.Refresh(ctx, issued.RefreshToken, lookup)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != issued.RefreshToken {
		t.Fatal("expected refresh token to be retained (rotation not required)")
	}

	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Idempotent logout: a second call on the same token still succeeds.
	if err := svc.Logout(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	// All future refresh attempts now fail with the inactive state.
	if _, err := svc.Refresh(ctx, issued.RefreshToken, lookup); !errors.Is(err, ErrRefreshNotActive) {
		t.Fatalf("expected ErrRefreshNotActive after logout, got %v", err)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer := NewSigner(priv, pub, 15*time.Minute)
	store := newMemStore()
	svc := NewService(signer, store, 7*24*time.Hour)
	ctx := context.Background()

	lookup := func(ctx context.Context, id uuid.UUID) (principal.Principal, error) {
		t.Fatal("lookup should not be called for an unknown token")
		return principal.Principal{}, nil
	}

	if _, err := svc.Refresh(ctx, "does-not-exist", lookup); !errors.Is(err, ErrRefreshNotActive) {
		t.Fatalf("expected ErrRefreshNotActive, got %v", err)
	}
}

func TestRefreshRejectsExpiredRecord(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer := NewSigner(priv, pub, 15*time.Minute)
	store := newMemStore()
	svc := NewService(signer, store, 7*24*time.Hour)
	ctx := context.Background()

	p := principal.Principal{ID: uuid.New(), Username: "user1", Role: principal.RoleUser}
	record, err := store.Insert(ctx, p.ID, -time.Minute)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	lookup := func(ctx context.Context, id uuid.UUID) (principal.Principal, error) {
		return p, nil
	}

	if _, err := svc.Refresh(ctx, record.Token, lookup); !errors.Is(err, ErrRefreshNotActive) {
		t.Fatalf("expected ErrRefreshNotActive for expired record, got %v", err)
	}
}

func TestCleanupExpiredRemovesRevokedAndExpired(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	active, _ := store.Insert(ctx, uuid.New(), time.Hour)
	expired, _ := store.Insert(ctx, uuid.New(), -time.Hour)
	revoked, _ := store.Insert(ctx, uuid.New(), time.Hour)
	_ = store.Revoke(ctx, revoked.Token)

	priv, pub := testKeyPair(t)
	svc := NewService(NewSigner(priv, pub, time.Minute), store, time.Hour)

	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows removed, got %d", n)
	}

	if _, err := store.Get(ctx, active.Token); err != nil {
		t.Fatalf("expected active record to survive cleanup: %v", err)
	}
	if _, err := store.Get(ctx, expired.Token); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatal("expected expired record to be removed")
	}
}
