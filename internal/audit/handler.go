package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pressroom-hq/pressroom/internal/platform/httpx"
)

// Lister reads pages of the audit trail.
type Lister interface {
	List(ctx context.Context, filters Filters) ([]Entry, PagingInfo, error)
}

// UserDirectory resolves display names for audit rendering.
type UserDirectory interface {
	NamesByID(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Handler exposes the read side of the audit trail.
type Handler struct {
	logger    *slog.Logger
	lister    Lister
	directory UserDirectory
	authorize func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance. authorize guards every route; it is
// injected as a plain middleware to keep this package free of authorization
// concerns.
func NewHandler(logger *slog.Logger, lister Lister, directory UserDirectory, authorize func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, lister: lister, directory: directory, authorize: authorize}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.authorize != nil {
			r.Use(h.authorize)
		}
		r.Get("/", h.list)
	})
}

type entryResponse struct {
	Entry
	Description string `json:"description"`
}

type listResponse struct {
	Entries []entryResponse `json:"entries"`
	Paging  PagingInfo      `json:"paging"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := h.parseFilters(r)
	entries, paging, err := h.lister.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	names := h.resolveNames(r.Context(), entries)
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		var target string
		if entry.UserID != nil {
			target = names[*entry.UserID]
		}
		out = append(out, entryResponse{
			Entry:       entry,
			Description: Describe(entry, names[entry.PerformedByID], target),
		})
	}
	httpx.JSON(w, http.StatusOK, listResponse{Entries: out, Paging: paging})
}

func (h *Handler) parseFilters(r *http.Request) Filters {
	q := r.URL.Query()
	filters := Filters{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
	}
	if raw := q.Get("actorId"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.ActorID = id
		}
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = t
		}
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = page
	}
	if size, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		filters.PageSize = size
	}
	return filters
}

// resolveNames is best-effort; a directory failure degrades descriptions to
// their generic form instead of failing the listing.
func (h *Handler) resolveNames(ctx context.Context, entries []Entry) map[int64]string {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0, len(entries))
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, entry := range entries {
		add(entry.PerformedByID)
		if entry.UserID != nil {
			add(*entry.UserID)
		}
	}
	names, err := h.directory.NamesByID(ctx, ids)
	if err != nil {
		h.logger.Warn("resolve audit names failed", slog.Any("error", err))
		return map[int64]string{}
	}
	return names
}
