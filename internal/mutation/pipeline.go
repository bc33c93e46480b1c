// Package mutation orchestrates privileged writes end to end:
// authenticate, authorize, policy pre-checks, concurrency-checked persist,
// cache invalidation and best-effort audit.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

// Authorizer answers "may this actor do X" from the permission cache.
type Authorizer interface {
	Can(ctx context.Context, userID int64, resource, action string) (bool, error)
}

// CacheControl invalidates permission cache entries after membership writes.
type CacheControl interface {
	Invalidate(userID int64)
	Clear()
}

// Invalidation names the cache work a mutation requires.
type Invalidation struct {
	UserID int64
	All    bool
}

// InvalidateUser drops one user's cache entry after the write commits.
func InvalidateUser(userID int64) Invalidation {
	return Invalidation{UserID: userID}
}

// InvalidateAll drops the whole cache after the write commits.
func InvalidateAll() Invalidation {
	return Invalidation{All: true}
}

// Result is what a commit step hands back: the persisted entity plus the
// field snapshots used to derive audit metadata.
type Result struct {
	Entity any
	Before map[string]any
	After  map[string]any
}

// Request describes one privileged write.
type Request struct {
	ActorID  int64
	Resource string
	Action   string

	// PreCheck runs after authorization and before the concurrency check.
	// Self-targeting policies live here and fail with ErrPermissionDenied.
	PreCheck func(ctx context.Context) error

	// Commit performs the concurrency-checked persist and returns the
	// committed state. Run only after authorization and PreCheck pass.
	Commit func(ctx context.Context) (Result, error)

	Invalidate Invalidation

	// Audit builds the best-effort audit entry for the committed mutation.
	// changes is the field-level diff between the before and after
	// snapshots. Returning nil skips the audit step.
	Audit func(result Result, changes map[string]shared.FieldChange) *audit.Entry
}

// ConflictCounter observes rejected stale writes, for metrics.
type ConflictCounter interface {
	VersionConflict(entity string)
}

// Pipeline runs privileged writes in a fixed order. Any failing step halts
// the rest; only the audit step is best-effort, because by then the primary
// write has already committed.
type Pipeline struct {
	authz    Authorizer
	cache    CacheControl
	recorder *audit.Recorder
	logger   *slog.Logger
	stats    ConflictCounter
}

// NewPipeline constructs a Pipeline. stats may be nil.
func NewPipeline(authz Authorizer, cache CacheControl, recorder *audit.Recorder, logger *slog.Logger, stats ConflictCounter) *Pipeline {
	return &Pipeline{authz: authz, cache: cache, recorder: recorder, logger: logger, stats: stats}
}

// Execute runs the request through the pipeline and returns the committed
// entity. Authorization failures halt before any persistence.
func (p *Pipeline) Execute(ctx context.Context, req Request) (any, error) {
	if req.ActorID == 0 {
		return nil, shared.ErrAuthenticationRequired
	}

	granted, err := p.authz.Can(ctx, req.ActorID, req.Resource, req.Action)
	if err != nil {
		// Fail closed: an unresolvable permission set is an internal
		// failure, never an implicit deny-shaped 403.
		return nil, fmt.Errorf("mutation: authorize %s:%s: %w", req.Resource, req.Action, err)
	}
	if !granted {
		return nil, shared.ErrPermissionDenied
	}

	if req.PreCheck != nil {
		if err := req.PreCheck(ctx); err != nil {
			return nil, err
		}
	}

	result, err := req.Commit(ctx)
	if err != nil {
		var conflict *shared.ConflictError
		if p.stats != nil && errors.As(err, &conflict) {
			p.stats.VersionConflict(conflict.Entity)
		}
		return nil, err
	}

	if req.Invalidate.All {
		p.cache.Clear()
	} else if req.Invalidate.UserID != 0 {
		p.cache.Invalidate(req.Invalidate.UserID)
	}

	if req.Audit != nil {
		changes := shared.Diff(result.Before, result.After)
		if entry := req.Audit(result, changes); entry != nil {
			if entry.PerformedByID == 0 {
				entry.PerformedByID = req.ActorID
			}
			p.recorder.Capture(ctx, *entry)
		}
	}

	return result.Entity, nil
}
