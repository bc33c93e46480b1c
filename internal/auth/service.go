package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/shared"
	"github.com/pressroom-hq/pressroom/internal/users"
)

// UserFinder looks up accounts for credential checks.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
}

// Service verifies credentials and records sign-ins.
type Service struct {
	finder   UserFinder
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(finder UserFinder, recorder *audit.Recorder, logger *slog.Logger) *Service {
	return &Service{finder: finder, recorder: recorder, logger: logger}
}

// Login verifies the credentials and returns the account. Lookup misses and
// password mismatches are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password, ipAddress string) (users.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.finder.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionUserLogin,
		EntityType:    "User",
		EntityID:      audit.EntityRef(user.ID),
		PerformedByID: user.ID,
		UserID:        audit.EntityRef(user.ID),
		IPAddress:     ipAddress,
	})
	return user, nil
}

// CurrentUser loads the account behind a session actor id.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (users.User, error) {
	return s.finder.FindByID(ctx, userID)
}
