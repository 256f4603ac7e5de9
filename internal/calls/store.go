package calls

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCallNotFound is returned by stores when no call exists for an ID.
var ErrCallNotFound = errors.New("calls: call not found")

// Store is the durable, transactional mapping from call ID to Call.
// Merge must be atomic per call and field-scoped: a later-arriving patch for
// one field never clobbers another field written concurrently, and a terminal
// status is never overwritten by a non-terminal one arriving late.
type Store interface {
	Create(ctx context.Context, call Call) error
	GetByID(ctx context.Context, id uuid.UUID) (Call, error)
	Merge(ctx context.Context, id uuid.UUID, patch Patch) (Call, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Call, int, error)
	CompletedByUser(ctx context.Context, userID uuid.UUID) ([]Call, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
