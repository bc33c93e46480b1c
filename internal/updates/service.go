package updates

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/concurrency"
	"github.com/pressroom-hq/pressroom/internal/mutation"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

// RepositoryPort defines data access for updates, including the
// compare-and-swap surface the concurrency guard drives.
type RepositoryPort interface {
	List(ctx context.Context) ([]Update, error)
	FindByID(ctx context.Context, id int64) (Update, error)
	Create(ctx context.Context, item Update) (Update, error)
	Save(ctx context.Context, item Update, expected time.Time) (Update, error)
	Delete(ctx context.Context, id int64, expected time.Time) error
}

// Input carries the writable fields of an update.
type Input struct {
	Title string
	Body  string
}

// Service handles update mutations through the privileged-write pipeline.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	guard    *concurrency.Guard[Update]
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		pipeline: pipeline,
		guard:    concurrency.NewGuard[Update]("update", repo),
		logger:   logger,
		clock:    time.Now,
	}
}

// List returns all updates.
func (s *Service) List(ctx context.Context) ([]Update, error) {
	return s.repo.List(ctx)
}

// Get fetches an update by id.
func (s *Service) Get(ctx context.Context, id int64) (Update, error) {
	return s.repo.FindByID(ctx, id)
}

// Create inserts a new draft authored by the actor.
func (s *Service) Create(ctx context.Context, actorID int64, input Input) (Update, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Update{}, &shared.ValidationError{Field: "title", Message: "title is required"}
	}
	entity, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "updates",
		Action:   "create",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			created, err := s.repo.Create(ctx, Update{
				Title:    title,
				Body:     input.Body,
				AuthorID: actorID,
			})
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: created, After: created.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			created := result.Entity.(Update)
			return &audit.Entry{
				Action:     audit.ActionUpdateCreated,
				EntityType: "Update",
				EntityID:   audit.EntityRef(created.ID),
				Metadata:   map[string]any{"title": created.Title},
			}
		},
	})
	if err != nil {
		return Update{}, err
	}
	return entity.(Update), nil
}

// Edit applies new content under the caller's version token.
func (s *Service) Edit(ctx context.Context, actorID, id int64, clientVersion time.Time, input Input) (Update, error) {
	entity, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "updates",
		Action:   "update",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			var before map[string]any
			saved, err := s.guard.CheckAndCommit(ctx, id, clientVersion, func(current Update) (Update, error) {
				before = current.Snapshot()
				if title := strings.TrimSpace(input.Title); title != "" {
					current.Title = title
				}
				if input.Body != "" {
					current.Body = input.Body
				}
				return current, nil
			})
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: saved, Before: before, After: saved.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			saved := result.Entity.(Update)
			metadata := map[string]any{"title": saved.Title}
			if len(changes) > 0 {
				metadata["changes"] = changes
			}
			return &audit.Entry{
				Action:     audit.ActionUpdateUpdated,
				EntityType: "Update",
				EntityID:   audit.EntityRef(saved.ID),
				Metadata:   metadata,
			}
		},
	})
	if err != nil {
		return Update{}, err
	}
	return entity.(Update), nil
}

// Publish flips the update to published under the caller's version token.
// Publishing an already-published update is a no-op commit, still audited.
func (s *Service) Publish(ctx context.Context, actorID, id int64, clientVersion time.Time) (Update, error) {
	entity, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "updates",
		Action:   "update",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			var before map[string]any
			saved, err := s.guard.CheckAndCommit(ctx, id, clientVersion, func(current Update) (Update, error) {
				before = current.Snapshot()
				if !current.Published {
					now := s.clock().UTC()
					current.Published = true
					current.PublishedAt = &now
				}
				return current, nil
			})
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: saved, Before: before, After: saved.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			saved := result.Entity.(Update)
			return &audit.Entry{
				Action:     audit.ActionUpdatePublished,
				EntityType: "Update",
				EntityID:   audit.EntityRef(saved.ID),
				Metadata:   map[string]any{"title": saved.Title},
			}
		},
	})
	if err != nil {
		return Update{}, err
	}
	return entity.(Update), nil
}

// Delete removes the update under the caller's version token.
func (s *Service) Delete(ctx context.Context, actorID, id int64, clientVersion time.Time) error {
	_, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "updates",
		Action:   "delete",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			deleted, err := s.guard.CheckAndDelete(ctx, id, clientVersion)
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: deleted, Before: deleted.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			deleted := result.Entity.(Update)
			return &audit.Entry{
				Action:     audit.ActionUpdateDeleted,
				EntityType: "Update",
				EntityID:   audit.EntityRef(deleted.ID),
				Metadata:   map[string]any{"title": deleted.Title},
			}
		},
	})
	return err
}
