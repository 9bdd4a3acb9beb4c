package authn

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardforge/cardforge/internal/httpserver"
	"github.com/cardforge/cardforge/pkg/authz"
	"github.com/cardforge/cardforge/pkg/principal"
)

// UsersHandler provides the admin-only user listing endpoint (§6). It lives
// alongside the auth handler, not in pkg/principal, since pkg/principal
// cannot import this package back (authn already depends on principal for
// the Principal type and Anonymous).
type UsersHandler struct {
	store  principal.Store
	logger *slog.Logger
}

// NewUsersHandler returns a UsersHandler.
func NewUsersHandler(store principal.Store, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{store: store, logger: logger}
}

// Routes returns the /users router.
func (h *UsersHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

type userView struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Enabled  bool     `json:"enabled"`
}

func (h *UsersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p := FromContext(r.Context())
	if !authz.RequiresAdmin(p) {
		httpserver.RespondError(w, http.StatusForbidden, "admin role required")
		return
	}

	principals, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing principals", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	out := make([]userView, 0, len(principals))
	for _, pr := range principals {
		out = append(out, userView{
			ID:       pr.ID.String(),
			Username: pr.Username,
			Roles:    pr.Roles(),
			Enabled:  pr.Enabled,
		})
	}
	httpserver.Respond(w, http.StatusOK, "ok", out)
}
