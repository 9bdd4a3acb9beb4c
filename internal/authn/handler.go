package authn

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardforge/cardforge/internal/httpserver"
	"github.com/cardforge/cardforge/internal/token"
)

// Handler provides HTTP handlers for the /auth endpoints (§6).
type Handler struct {
	login  *LoginService
	logger *slog.Logger
}

// NewHandler returns an auth Handler.
func NewHandler(login *LoginService, logger *slog.Logger) *Handler {
	return &Handler{login: login, logger: logger}
}

// Routes returns the /auth router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Get("/user", h.handleUser)
	return r
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken   string   `json:"accessToken"`
	RefreshToken  string   `json:"refreshToken"`
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	Authenticated bool     `json:"authenticated"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	issued, p, err := h.login.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrBadCredentials) {
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		h.logger.Error("login", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	httpserver.Respond(w, http.StatusOK, "login successful", loginResponse{
		AccessToken:   issued.AccessToken,
		RefreshToken:  issued.RefreshToken,
		Username:      p.Username,
		Roles:         p.Roles(),
		Authenticated: true,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	issued, err := h.login.Refresh(r.Context(), req.RefreshToken)
	if errors.Is(err, token.ErrRefreshNotActive) {
		httpserver.RespondError(w, http.StatusUnauthorized, "refresh token is not active")
		return
	}
	if err != nil {
		h.logger.Error("refresh", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	httpserver.Respond(w, http.StatusOK, "token refreshed", map[string]string{
		"accessToken":  issued.AccessToken,
		"refreshToken": issued.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.login.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	if p.IsAnonymous() {
		httpserver.Respond(w, http.StatusOK, "ok", map[string]bool{"authenticated": false})
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", map[string]any{
		"username":      p.Username,
		"roles":         p.Roles(),
		"authenticated": true,
	})
}
