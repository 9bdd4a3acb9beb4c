package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardforge/cardforge/internal/authn"
	"github.com/cardforge/cardforge/internal/httpserver"
	"github.com/cardforge/cardforge/internal/queue"
	"github.com/cardforge/cardforge/pkg/authz"
)

// Handler provides HTTP handlers for the card and archetype endpoints (§6).
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler returns a catalog Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CardRoutes returns the /cards router.
func (h *Handler) CardRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/by-name", h.handleGetByName)
	r.Post("/", h.handleCreate)
	r.Post("/cache/clear", h.handleCacheClear)
	r.Get("/cache/stats", h.handleCacheStats)
	r.Post("/batch/warmup-cache", h.handleWarmup)
	r.Post("/batch/statistics", h.handleStatistics)
	r.Post("/run-batch-job", h.handleWarmup)
	r.Post("/async-reload", h.handleWarmup)
	r.Post("/publish-event", h.handlePublishEvent)
	r.Post("/notification/send", h.handleNotificationSend)
	r.Post("/queue/{queue}/send", h.handleQueueSend)
	r.Post("/queue/{queue}/peek", h.handleQueuePeek)
	r.Post("/queue/{queue}/size", h.handleQueueSize)
	r.Post("/queue/{queue}/clear", h.handleQueueClear)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.handleGetLegacy)
		r.Put("/", h.handleUpdate)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
	})
	return r
}

// ArchetypeRoutes returns the /archetypes router.
func (h *Handler) ArchetypeRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListArchetypes)
	r.Get("/{id}", h.handleGetArchetype)
	return r
}

type cardRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Type        string `json:"humanReadableCardType" validate:"required,max=100"`
	Description string `json:"description" validate:"max=10000"`
	Race        string `json:"race" validate:"max=50"`
	Attribute   string `json:"attribute" validate:"max=50"`
	Archetype   string `json:"archetype"`
}

func (req cardRequest) toCard() Card {
	c := Card{
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Race:        req.Race,
		Attribute:   req.Attribute,
	}
	if req.Archetype != "" {
		c.Archetype = &Archetype{Name: req.Archetype}
	}
	return c
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p := authn.FromContext(r.Context())
	if !authz.RequiresAdmin(p) {
		httpserver.RespondError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params := httpserver.ParseCatalogPageParams(r)
	query := r.URL.Query().Get("query")

	var (
		cards []Card
		err   error
	)
	if query != "" {
		cards, err = h.svc.SearchPage(r.Context(), query, params.Page, params.Size)
	} else {
		cards, err = h.svc.ListPage(r.Context(), params.Page, params.Size)
	}
	if err != nil {
		h.logger.Error("listing cards", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}

	total, err := h.svc.Count(r.Context())
	if err != nil {
		h.logger.Error("counting cards", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to count cards")
		return
	}

	httpserver.Respond(w, http.StatusOK, "ok", httpserver.NewPage(cards, params, total))
}

func (h *Handler) handleGetByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}
	h.respondCard(w, r, name)
}

// handleGetLegacy serves GET /cards/{name}; names containing "/" are known
// to be unreliable on this path (§9 "Legacy endpoint ambiguity") — both
// this and the by-name query endpoint are preserved deliberately.
func (h *Handler) handleGetLegacy(w http.ResponseWriter, r *http.Request) {
	h.respondCard(w, r, chi.URLParam(r, "name"))
}

func (h *Handler) respondCard(w http.ResponseWriter, r *http.Request, name string) {
	card, err := h.svc.GetByName(r.Context(), name)
	if errors.Is(err, ErrCardNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "card not found")
		return
	}
	if err != nil {
		h.logger.Error("getting card", "error", err, "name", name)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get card")
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", card)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req cardRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	saved, err := h.svc.Save(r.Context(), req.toCard(), true)
	if err != nil {
		h.logger.Error("creating card", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to create card")
		return
	}
	httpserver.Respond(w, http.StatusCreated, "card created", saved)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "name")

	var req cardRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	req.Name = name

	saved, err := h.svc.Save(r.Context(), req.toCard(), false)
	if err != nil {
		h.logger.Error("updating card", "error", err, "name", name)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to update card")
		return
	}
	httpserver.Respond(w, http.StatusOK, "card updated", saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "name")

	err := h.svc.Delete(r.Context(), name)
	switch {
	case errors.Is(err, ErrCardNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "card not found")
	case errors.Is(err, ErrCardReferenced):
		httpserver.RespondError(w, http.StatusConflict, "Cannot delete card: used in decks")
	case err != nil:
		h.logger.Error("deleting card", "error", err, "name", name)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to delete card")
	default:
		httpserver.Respond(w, http.StatusOK, "card deleted", nil)
	}
}

func (h *Handler) handleListArchetypes(w http.ResponseWriter, r *http.Request) {
	archetypes, err := h.svc.ListArchetypes(r.Context())
	if err != nil {
		h.logger.Error("listing archetypes", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list archetypes")
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", archetypes)
}

func (h *Handler) handleGetArchetype(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid archetype id")
		return
	}

	a, err := h.svc.GetArchetype(r.Context(), id)
	if errors.Is(err, ErrCardNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "archetype not found")
		return
	}
	if err != nil {
		h.logger.Error("getting archetype", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to get archetype")
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", a)
}

// handleCacheClear is an admin-ops endpoint evicting the cards namespace
// on demand, independent of a write (§6 "Admin/ops").
func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.svc.cache.EvictAll(r.Context()); err != nil {
		h.logger.Error("clearing cache", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	httpserver.Respond(w, http.StatusOK, "cache cleared", nil)
}

// handleCacheStats reports whether a few representative keys are resident,
// a lightweight admin diagnostic rather than a full cache dump.
func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	countResident, err := h.svc.cache.Probe(r.Context(), countKey)
	if err != nil {
		h.logger.Error("probing cache", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}
	firstPageResident, err := h.svc.cache.Probe(r.Context(), pageKey(0, DefaultPageSize))
	if err != nil {
		h.logger.Error("probing cache", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", map[string]bool{
		"countResident":    countResident,
		"firstPageResident": firstPageResident,
	})
}

// handleStatistics reports aggregate catalog counts (§6 admin/ops).
func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		h.logger.Error("computing statistics", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", stats)
}

type publishEventRequest struct {
	Event   string         `json:"event" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// handlePublishEvent enqueues an arbitrary SYSTEM notification (§6
// admin/ops publish-event).
func (h *Handler) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req publishEventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.svc.PublishEvent(r.Context(), req.Event, req.Payload); err != nil {
		h.logger.Error("publishing event", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}
	httpserver.Respond(w, http.StatusAccepted, "event published", nil)
}

type notificationSendRequest struct {
	Type    string         `json:"type" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// handleNotificationSend enqueues an EMAIL or SYSTEM notification directly
// onto the notifications queue (§6 admin/ops notification/send).
func (h *Handler) handleNotificationSend(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req notificationSendRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	err := h.svc.QueueSend(r.Context(), "notifications", queueMessage(req.Type, req.Payload))
	if err != nil {
		h.logger.Error("sending notification", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}
	httpserver.Respond(w, http.StatusAccepted, "notification sent", nil)
}

func queueMessage(msgType string, payload map[string]any) queue.Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return queue.Message{Type: msgType, Payload: payload}
}

type queueSendRequest struct {
	Type    string         `json:"type" validate:"required"`
	Payload map[string]any `json:"payload"`
}

func (h *Handler) queueError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownQueue) {
		httpserver.RespondError(w, http.StatusNotFound, "unknown queue")
		return
	}
	h.logger.Error("queue admin op failed", "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "queue operation failed")
}

// handleQueueSend enqueues a message onto the named queue (§6 admin/ops).
func (h *Handler) handleQueueSend(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req queueSendRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "queue")
	if err := h.svc.QueueSend(r.Context(), name, queueMessage(req.Type, req.Payload)); err != nil {
		h.queueError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusAccepted, "message sent", nil)
}

// handleQueuePeek returns the pending messages on the named queue.
func (h *Handler) handleQueuePeek(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "queue")
	msgs, err := h.svc.QueuePeek(r.Context(), name)
	if err != nil {
		h.queueError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", msgs)
}

// handleQueueSize reports the pending message count on the named queue.
func (h *Handler) handleQueueSize(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "queue")
	size, err := h.svc.QueueSize(r.Context(), name)
	if err != nil {
		h.queueError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "ok", map[string]int64{"size": size})
}

// handleQueueClear empties the named queue.
func (h *Handler) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "queue")
	if err := h.svc.QueueClear(r.Context(), name); err != nil {
		h.queueError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, "queue cleared", nil)
}

// handleWarmup kicks off §4.9.3 warm-up asynchronously and returns 202.
func (h *Handler) handleWarmup(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.svc.Warmup(ctx); err != nil {
			h.logger.Error("warming up cache", "error", err)
		}
	}()
	httpserver.Respond(w, http.StatusAccepted, "warm-up started", nil)
}
