package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/concurrency"
	"github.com/pressroom-hq/pressroom/internal/mutation"
	"github.com/pressroom-hq/pressroom/internal/shared"
	"github.com/pressroom-hq/pressroom/jobs"
)

// RepositoryPort defines data access for users. It includes the
// compare-and-swap surface the concurrency guard drives.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Save(ctx context.Context, user User, expected time.Time) (User, error)
	Delete(ctx context.Context, id int64, expected time.Time) error
}

// TaskEnqueuer is the slice of the asynq client the service uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CreateInput carries fields for a new account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
}

// UpdateInput carries the mutable account fields.
type UpdateInput struct {
	Email    string
	Name     string
	IsActive *bool
}

// Service handles account mutations through the privileged-write pipeline.
type Service struct {
	repo     RepositoryPort
	pipeline *mutation.Pipeline
	guard    *concurrency.Guard[User]
	queue    TaskEnqueuer
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, pipeline *mutation.Pipeline, queue TaskEnqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		pipeline: pipeline,
		guard:    concurrency.NewGuard[User]("user", repo),
		queue:    queue,
		logger:   logger,
	}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create provisions a new account.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (User, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" {
		return User{}, &shared.ValidationError{Field: "email", Message: "email and name are required"}
	}
	entity, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "users",
		Action:   "create",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
			if err != nil {
				return mutation.Result{}, fmt.Errorf("users: hash password: %w", err)
			}
			created, err := s.repo.Create(ctx, User{
				Email:        email,
				Name:         name,
				IsActive:     true,
				PasswordHash: string(hash),
			})
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: created, After: created.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			created := result.Entity.(User)
			return &audit.Entry{
				Action:     audit.ActionUserCreated,
				EntityType: "User",
				EntityID:   audit.EntityRef(created.ID),
				UserID:     audit.EntityRef(created.ID),
				Metadata:   map[string]any{"email": created.Email, "name": created.Name},
			}
		},
	})
	if err != nil {
		return User{}, err
	}
	return entity.(User), nil
}

// Update applies the mutable fields under the caller's version token.
func (s *Service) Update(ctx context.Context, actorID, id int64, clientVersion time.Time, input UpdateInput) (User, error) {
	entity, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "users",
		Action:   "update",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			var before map[string]any
			saved, err := s.guard.CheckAndCommit(ctx, id, clientVersion, func(current User) (User, error) {
				before = current.Snapshot()
				if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" {
					current.Email = email
				}
				if name := strings.TrimSpace(input.Name); name != "" {
					current.Name = name
				}
				if input.IsActive != nil {
					current.IsActive = *input.IsActive
				}
				return current, nil
			})
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: saved, Before: before, After: saved.Snapshot()}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			saved := result.Entity.(User)
			metadata := map[string]any{}
			if len(changes) > 0 {
				metadata["changes"] = changes
			}
			return &audit.Entry{
				Action:     audit.ActionUserUpdated,
				EntityType: "User",
				EntityID:   audit.EntityRef(saved.ID),
				UserID:     audit.EntityRef(saved.ID),
				Metadata:   metadata,
			}
		},
	})
	if err != nil {
		return User{}, err
	}
	return entity.(User), nil
}

// Delete removes the account under the caller's version token. Actors may
// not delete their own account regardless of role; the refusal happens
// before any concurrency check runs.
func (s *Service) Delete(ctx context.Context, actorID, id int64, clientVersion time.Time) error {
	_, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "users",
		Action:   "delete",
		PreCheck: func(context.Context) error {
			if actorID == id {
				return fmt.Errorf("delete own account: %w", shared.ErrPermissionDenied)
			}
			return nil
		},
		Commit: func(ctx context.Context) (mutation.Result, error) {
			deleted, err := s.guard.CheckAndDelete(ctx, id, clientVersion)
			if err != nil {
				return mutation.Result{}, err
			}
			return mutation.Result{Entity: deleted, Before: deleted.Snapshot()}, nil
		},
		// The deleted user's memberships are gone with the row.
		Invalidate: mutation.InvalidateUser(id),
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			deleted := result.Entity.(User)
			return &audit.Entry{
				Action:     audit.ActionUserDeleted,
				EntityType: "User",
				EntityID:   audit.EntityRef(deleted.ID),
				UserID:     audit.EntityRef(deleted.ID),
				Metadata:   map[string]any{"email": deleted.Email},
			}
		},
	})
	return err
}

// Invite queues an invitation email for delivery by the worker and records
// the invitation in the audit trail.
func (s *Service) Invite(ctx context.Context, actorID int64, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return &shared.ValidationError{Field: "email", Message: "email is required"}
	}
	_, err := s.pipeline.Execute(ctx, mutation.Request{
		ActorID:  actorID,
		Resource: "users",
		Action:   "create",
		Commit: func(ctx context.Context) (mutation.Result, error) {
			task, err := jobs.NewInvitationEmailTask(email, actorID)
			if err != nil {
				return mutation.Result{}, err
			}
			if _, err := s.queue.EnqueueContext(ctx, task); err != nil {
				return mutation.Result{}, fmt.Errorf("users: enqueue invitation: %w", err)
			}
			return mutation.Result{Entity: email}, nil
		},
		Audit: func(result mutation.Result, changes map[string]shared.FieldChange) *audit.Entry {
			return &audit.Entry{
				Action:     audit.ActionInvitationSent,
				EntityType: "Invitation",
				Metadata:   map[string]any{"email": email},
			}
		},
	})
	return err
}
