package deck

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cardforge/cardforge/internal/authn"
	"github.com/cardforge/cardforge/internal/httpserver"
)

// Handler provides HTTP handlers for the deck endpoints (§6).
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler returns a deck Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the /decks router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/cards/{cardName}", h.handleAddCard)
		r.Delete("/cards/{cardName}", h.handleRemoveCard)
	})
	return r
}

type createRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDeckNotFound), errors.Is(err, ErrCardNotFound):
		httpserver.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrLockDenied):
		httpserver.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrDeckFull), errors.Is(err, ErrCopiesExceeded):
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("deck operation failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params := httpserver.ParseCatalogPageParams(r)
	decks, err := h.svc.List(r.Context(), params.Page, params.Size)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", decks)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", d)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := authn.FromContext(r.Context())
	d, err := h.svc.Create(r.Context(), req.Name, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, "deck created", d)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := authn.FromContext(r.Context())
	d, err := h.svc.Update(r.Context(), id, req.Name, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "deck updated", d)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}

	p := authn.FromContext(r.Context())
	if err := h.svc.Delete(r.Context(), id, p); err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "deck deleted", nil)
}

func (h *Handler) handleAddCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	cardName := chi.URLParam(r, "cardName")

	p := authn.FromContext(r.Context())
	d, err := h.svc.AddCard(r.Context(), id, cardName, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "card added", map[string]any{
		"size":   d.Size(),
		"copies": d.Copies(cardName),
		"deck":   d,
	})
}

func (h *Handler) handleRemoveCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	cardName := chi.URLParam(r, "cardName")

	p := authn.FromContext(r.Context())
	d, err := h.svc.RemoveCard(r.Context(), id, cardName, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "card removed", map[string]any{
		"size":   d.Size(),
		"copies": d.Copies(cardName),
		"deck":   d,
	})
}
