package users

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

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	roles    *rbac.Service
	validate *validator.Validate
	mw       rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles *rbac.Service, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		roles:    roles,
		validate: validator.New(),
		mw:       mw,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("users", "read"))
		r.Get("/", h.list)
		r.Get("/{userID}", h.get)
		r.Get("/{userID}/permissions", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("users", "create"))
		r.Post("/", h.create)
		r.Post("/invitations", h.invite)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("users", "update"))
		r.Put("/{userID}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("users", "delete"))
		r.Delete("/{userID}", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("roles", "update"))
		r.Post("/{userID}/roles", h.assignRole)
		r.Delete("/{userID}/roles/{roleID}", h.removeRole)
	})
}

type createRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required,min=8"`
}

type updateRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	Name      string `json:"name" validate:"omitempty,max=128"`
	IsActive  *bool  `json:"isActive"`
	UpdatedAt string `json:"updatedAt"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

type permissionsResponse struct {
	UserID      int64    `json:"userId"`
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
	CachedAt    string   `json:"cachedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	user, err := h.service.Create(r.Context(), actorID, CreateInput(req))
	if err != nil {
		h.fail(w, r, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := concurrency.ParseVersion(req.UpdatedAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	user, err := h.service.Update(r.Context(), actorID, id, version, UpdateInput{
		Email:    req.Email,
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.fail(w, r, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
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
		h.fail(w, r, "delete user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !h.decode(w, r, &req) {
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Invite(r.Context(), actorID, req.Email); err != nil {
		h.fail(w, r, "invite user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"message": "invitation sent"})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.roles.AssignRole(r.Context(), actorID, id, req.RoleID); err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "role assigned"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.roles.RemoveRole(r.Context(), actorID, id, roleID); err != nil {
		h.fail(w, r, "remove role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "role removed"})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	force := r.URL.Query().Get("refresh") == "true"
	set, err := h.roles.EffectivePermissions(r.Context(), id, force)
	if err != nil {
		h.fail(w, r, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		UserID:      set.UserID,
		Permissions: set.Keys(),
		Roles:       set.RoleNames,
		CachedAt:    concurrency.FormatVersion(set.CachedAt),
	})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid "+name)
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
