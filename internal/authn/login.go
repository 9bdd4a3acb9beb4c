package authn

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/cardforge/cardforge/internal/token"
	"github.com/cardforge/cardforge/pkg/principal"
)

// ErrBadCredentials means the username is unknown, the account is
// disabled, or the password does not match (§4.7 login).
var ErrBadCredentials = errors.New("invalid username or password")

// LoginService verifies a bcrypt-hashed password against the seeded
// principal table before delegating token issuance to token.Service.
type LoginService struct {
	principals principal.Store
	tokens     *token.Service
}

// NewLoginService returns a LoginService.
func NewLoginService(principals principal.Store, tokens *token.Service) *LoginService {
	return &LoginService{principals: principals, tokens: tokens}
}

// Login verifies username/password and, on success, mints a fresh
// access/refresh token pair (§4.7).
func (l *LoginService) Login(ctx context.Context, username, password string) (token.Issued, principal.Principal, error) {
	p, err := l.principals.FindByUsername(ctx, username)
	if errors.Is(err, principal.ErrNotFound) {
		return token.Issued{}, principal.Principal{}, ErrBadCredentials
	}
	if err != nil {
		return token.Issued{}, principal.Principal{}, err
	}
	if !p.Enabled {
		return token.Issued{}, principal.Principal{}, ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return token.Issued{}, principal.Principal{}, ErrBadCredentials
	}

	issued, err := l.tokens.Login(ctx, p)
	if err != nil {
		return token.Issued{}, principal.Principal{}, err
	}
	return issued, p, nil
}

// Refresh delegates to token.Service.Refresh, resolving the owning
// principal by id via the principal store.
func (l *LoginService) Refresh(ctx context.Context, refreshToken string) (token.Issued, error) {
	return l.tokens.Refresh(ctx, refreshToken, l.principals.FindByID)
}

// Logout delegates to token.Service.Logout.
func (l *LoginService) Logout(ctx context.Context, refreshToken string) error {
	return l.tokens.Logout(ctx, refreshToken)
}
