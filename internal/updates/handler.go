package updates

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pressroom-hq/pressroom/internal/concurrency"
	"github.com/pressroom-hq/pressroom/internal/platform/httpx"
	"github.com/pressroom-hq/pressroom/internal/rbac"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

// Handler manages update endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		mw:       mw,
	}
}

// MountRoutes registers update routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("updates", "read"))
		r.Get("/", h.list)
		r.Get("/{updateID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("updates", "create"))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("updates", "update"))
		r.Put("/{updateID}", h.edit)
		r.Post("/{updateID}/publish", h.publish)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("updates", "delete"))
		r.Delete("/{updateID}", h.delete)
	})
}

type createUpdateRequest struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
	Body  string `json:"body"`
}

type editUpdateRequest struct {
	Title     string `json:"title" validate:"omitempty,max=200"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updatedAt"`
}

type publishRequest struct {
	UpdatedAt string `json:"updatedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list updates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.updateID(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get update", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	item, err := h.service.Create(r.Context(), actorID, Input{Title: req.Title, Body: req.Body})
	if err != nil {
		h.fail(w, r, "create update", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.updateID(w, r)
	if !ok {
		return
	}
	var req editUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := concurrency.ParseVersion(req.UpdatedAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	item, err := h.service.Edit(r.Context(), actorID, id, version, Input{Title: req.Title, Body: req.Body})
	if err != nil {
		h.fail(w, r, "edit update", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.updateID(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := concurrency.ParseVersion(req.UpdatedAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	item, err := h.service.Publish(r.Context(), actorID, id, version)
	if err != nil {
		h.fail(w, r, "publish update", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.updateID(w, r)
	if !ok {
		return
	}
	version, err := concurrency.ParseVersion(r.URL.Query().Get("updatedAt"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Delete(r.Context(), actorID, id, version); err != nil {
		h.fail(w, r, "delete update", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "update deleted"})
}

func (h *Handler) updateID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "updateID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid update id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
