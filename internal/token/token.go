// Package token implements the token service (C7): RS256-signed access
// tokens verified anywhere with a public key, and opaque refresh tokens
// whose lifecycle is tracked in Postgres. Grounded on the teacher's
// SessionManager (go-jose signer/verifier, registered+custom claims) but
// adapted from HS256 shared-secret session cookies to RS256 asymmetric
// bearer tokens per spec.md §4.7.
package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/cardforge/cardforge/pkg/principal"
)

const issuer = "cardforge"

// AccessClaims are the JWT claims carried by an access token (§4.7).
type AccessClaims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

// Signer mints and verifies RS256 access tokens.
type Signer struct {
	private   *rsa.PrivateKey
	public    *rsa.PublicKey
	accessTTL time.Duration
}

// NewSigner returns a Signer using the given key pair and access token TTL.
func NewSigner(private *rsa.PrivateKey, public *rsa.PublicKey, accessTTL time.Duration) *Signer {
	return &Signer{private: private, public: public, accessTTL: accessTTL}
}

// Mint issues a new signed access token for the given claims.
func (s *Signer) Mint(claims AccessClaims) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: s.private},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(s.accessTTL)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// ErrInvalidToken covers any access token that fails signature, issuer, or
// expiry validation.
var ErrInvalidToken = errors.New("invalid access token")

// Verify validates a raw access token's signature and expiry, returning its
// claims. Verification uses only the public key, so any replica holding it
// can verify tokens minted elsewhere.
func (s *Signer) Verify(raw string) (AccessClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var registered jwt.Claims
	var custom AccessClaims
	if err := tok.Claims(s.public, &registered, &custom); err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return custom, nil
}

// NewRefreshToken generates a new opaque refresh token identifier (128+
// bits of entropy via UUID v4, per §4.7).
func NewRefreshToken() string {
	return uuid.NewString()
}

// RefreshRecord mirrors one row of the refresh_tokens table (§3).
type RefreshRecord struct {
	Token       string
	PrincipalID uuid.UUID
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastUsedAt  *time.Time
	Revoked     bool
}

// Valid reports whether the record is in the Active state: not revoked and
// not yet expired.
func (r RefreshRecord) Valid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

var (
	// ErrRefreshNotFound means no row exists for the given token.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshNotActive means the token exists but is Revoked or Expired.
	ErrRefreshNotActive = errors.New("refresh token not active")
)

// RefreshStore is the Postgres-backed persistence for refresh token state.
type RefreshStore interface {
	Insert(ctx context.Context, principalID uuid.UUID, ttl time.Duration) (RefreshRecord, error)
	Get(ctx context.Context, tok string) (RefreshRecord, error)
	Revoke(ctx context.Context, tok string) error
	RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error
	Touch(ctx context.Context, tok string) error
	DeleteInactive(ctx context.Context) (int64, error)
}

// Service composes access-token signing with refresh-token lifecycle
// management into the login/refresh/logout/cleanup operations spec.md
// §4.7 describes.
type Service struct {
	signer  *Signer
	store   RefreshStore
	refresh time.Duration
}

// NewService returns a Service.
func NewService(signer *Signer, store RefreshStore, refreshTTL time.Duration) *Service {
	return &Service{signer: signer, store: store, refresh: refreshTTL}
}

// Issued is the (access, refresh) token pair returned by login and refresh.
type Issued struct {
	AccessToken  string
	RefreshToken string
}

// Login mints a fresh access+refresh pair for an already-authenticated
// principal (password verification happens one layer up, in internal/authn).
func (s *Service) Login(ctx context.Context, p principal.Principal) (Issued, error) {
	access, err := s.signer.Mint(AccessClaims{Subject: p.Username, Roles: p.Roles()})
	if err != nil {
		return Issued{}, err
	}
	record, err := s.store.Insert(ctx, p.ID, s.refresh)
	if err != nil {
		return Issued{}, err
	}
	return Issued{AccessToken: access, RefreshToken: record.Token}, nil
}

// Refresh validates tok against the state machine and, if Active, mints a
// fresh access token. The refresh token itself is retained (rotation is
// optional per §4.7 and not performed here).
func (s *Service) Refresh(ctx context.Context, tok string, lookupPrincipal func(context.Context, uuid.UUID) (principal.Principal, error)) (Issued, error) {
	record, err := s.store.Get(ctx, tok)
	if errors.Is(err, ErrRefreshNotFound) {
		return Issued{}, ErrRefreshNotActive
	}
	if err != nil {
		return Issued{}, err
	}
	if !record.Valid(time.Now()) {
		return Issued{}, ErrRefreshNotActive
	}

	p, err := lookupPrincipal(ctx, record.PrincipalID)
	if err != nil {
		return Issued{}, err
	}

	access, err := s.signer.Mint(AccessClaims{Subject: p.Username, Roles: p.Roles()})
	if err != nil {
		return Issued{}, err
	}
	_ = s.store.Touch(ctx, tok)

	return Issued{AccessToken: access, RefreshToken: tok}, nil
}

// Logout marks tok Revoked. Idempotent: revoking an already-revoked or
// absent token still returns success (§8 property 3).
func (s *Service) Logout(ctx context.Context, tok string) error {
	err := s.store.Revoke(ctx, tok)
	if errors.Is(err, ErrRefreshNotFound) {
		return nil
	}
	return err
}

// CleanupExpired bulk-deletes Revoked or Expired rows and returns the
// number removed.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteInactive(ctx)
}
