package calls

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps call records in memory with the same merge semantics as
// the Postgres repository. It backs tests and local development without a
// database.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[uuid.UUID]Call
}

// NewMemoryStore creates an empty in-memory call store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[uuid.UUID]Call)}
}

func (s *MemoryStore) Create(_ context.Context, call Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if call.Metadata == nil {
		call.Metadata = map[string]any{}
	}
	s.calls[call.ID] = call
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		return Call{}, ErrCallNotFound
	}
	return cloneCall(call), nil
}

func (s *MemoryStore) Merge(_ context.Context, id uuid.UUID, patch Patch) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		return Call{}, ErrCallNotFound
	}

	if patch.CarrierCallID != nil {
		call.CarrierCallID = patch.CarrierCallID
	}
	if patch.Status != nil {
		if !(call.Status.IsTerminal() && !patch.Status.IsTerminal()) {
			call.Status = *patch.Status
		}
	}
	if patch.AmdResult != nil {
		call.AmdResult = patch.AmdResult
	}
	if patch.Confidence != nil {
		call.Confidence = patch.Confidence
	}
	if patch.Duration != nil {
		call.Duration = patch.Duration
	}
	if patch.AmdDurationMs != nil {
		call.AmdDurationMs = patch.AmdDurationMs
	}
	if patch.ErrorMessage != nil {
		call.ErrorMessage = patch.ErrorMessage
	}
	if len(patch.Metadata) > 0 {
		merged := make(map[string]any, len(call.Metadata)+len(patch.Metadata))
		for k, v := range call.Metadata {
			merged[k] = v
		}
		for k, v := range patch.Metadata {
			merged[k] = v
		}
		call.Metadata = merged
	}

	s.calls[id] = call
	return cloneCall(call), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Call, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []Call
	for _, call := range s.calls {
		if call.UserID == userID {
			owned = append(owned, cloneCall(call))
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (s *MemoryStore) CompletedByUser(_ context.Context, userID uuid.UUID) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []Call
	for _, call := range s.calls {
		if call.UserID == userID && call.Status == StatusCompleted {
			completed = append(completed, cloneCall(call))
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})
	return completed, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[id]; !ok {
		return ErrCallNotFound
	}
	delete(s.calls, id)
	return nil
}

func cloneCall(call Call) Call {
	metadata := make(map[string]any, len(call.Metadata))
	for k, v := range call.Metadata {
		metadata[k] = v
	}
	call.Metadata = metadata
	return call
}
