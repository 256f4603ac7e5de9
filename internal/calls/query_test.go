package calls

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"callscreen_backend/platform/apperr"
	"callscreen_backend/platform/logger"
)

func newQueryFixture(t *testing.T) (*QueryService, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewQueryService(store, logger.New("development")), store
}

func seedCompleted(t *testing.T, store *MemoryStore, userID uuid.UUID, strategy Strategy, verdict *Verdict, confidence *float64, duration *int) {
	t.Helper()
	call := Call{
		ID:          uuid.New(),
		UserID:      userID,
		AmdStrategy: strategy,
		Status:      StatusCompleted,
		AmdResult:   verdict,
		Confidence:  confidence,
		Duration:    duration,
		CreatedAt:   time.Now(),
	}
	if err := store.Create(context.Background(), call); err != nil {
		t.Fatalf("failed to seed call: %v", err)
	}
}

func verdictPtr(v Verdict) *Verdict { return &v }
func floatPtr(v float64) *float64   { return &v }
func intPtr(v int) *int             { return &v }

func TestGetStatus_OwnershipAndExistence(t *testing.T) {
	q, store := newQueryFixture(t)
	owner := uuid.New()
	call := seedCall(t, store, StrategyHeuristic)

	if _, err := q.GetStatus(context.Background(), call.UserID, call.ID); err != nil {
		t.Fatalf("owner must see the call, got %v", err)
	}

	_, err := q.GetStatus(context.Background(), owner, call.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for another user's call, got %v", err)
	}

	_, err = q.GetStatus(context.Background(), owner, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown call, got %v", err)
	}
}

func TestListHistory_Defaults(t *testing.T) {
	q, store := newQueryFixture(t)
	userID := uuid.New()
	for i := 0; i < 25; i++ {
		seedCompleted(t, store, userID, StrategyHeuristic, nil, nil, nil)
	}

	page, err := q.ListHistory(context.Background(), userID, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || page.PageSize != 20 {
		t.Fatalf("expected defaults page=1 pageSize=20, got %d/%d", page.Page, page.PageSize)
	}
	if len(page.Calls) != 20 || page.Total != 25 {
		t.Fatalf("expected 20 of 25, got %d of %d", len(page.Calls), page.Total)
	}

	page, err = q.ListHistory(context.Background(), userID, 1, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.PageSize != 100 {
		t.Fatalf("expected page size capped at 100, got %d", page.PageSize)
	}
}

func TestDelete_RemovesAndEnforcesOwnership(t *testing.T) {
	q, store := newQueryFixture(t)
	call := seedCall(t, store, StrategyHeuristic)

	if err := q.Delete(context.Background(), uuid.New(), call.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if err := q.Delete(context.Background(), call.UserID, call.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := q.Delete(context.Background(), call.UserID, call.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestAggregate_PerStrategyRates(t *testing.T) {
	q, store := newQueryFixture(t)
	userID := uuid.New()

	// heuristic: 3 classified, 2 human -> 66.7%
	seedCompleted(t, store, userID, StrategyHeuristic, verdictPtr(VerdictHuman), floatPtr(0.80), intPtr(20))
	seedCompleted(t, store, userID, StrategyHeuristic, verdictPtr(VerdictHuman), floatPtr(0.75), intPtr(10))
	seedCompleted(t, store, userID, StrategyHeuristic, verdictPtr(VerdictMachine), floatPtr(0.70), intPtr(3))

	// ml-remote: 2 classified, 1 human -> 50%
	seedCompleted(t, store, userID, StrategyMLRemote, verdictPtr(VerdictHuman), floatPtr(0.90), intPtr(30))
	seedCompleted(t, store, userID, StrategyMLRemote, verdictPtr(VerdictUnknown), floatPtr(0.50), nil)

	// A non-completed call never counts.
	failedCall := seedCall(t, store, StrategyNative)
	failed := StatusFailed
	if _, err := store.Merge(context.Background(), failedCall.ID, Patch{Status: &failed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// But it belongs to a different user anyway; aggregate is per user.
	seedCompleted(t, store, uuid.New(), StrategyHeuristic, verdictPtr(VerdictHuman), nil, nil)

	stats, err := q.Aggregate(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(stats))
	}

	byStrategy := map[Strategy]StrategyStats{}
	for _, s := range stats {
		byStrategy[s.Strategy] = s
	}

	h := byStrategy[StrategyHeuristic]
	if h.TotalCalls != 3 || h.HumanCount != 2 || h.MachineCount != 1 {
		t.Fatalf("unexpected heuristic counts %+v", h)
	}
	if h.HumanDetectionRate != 66.7 {
		t.Fatalf("expected rate 66.7, got %v", h.HumanDetectionRate)
	}
	if h.AvgDuration == nil || *h.AvgDuration != 11.0 {
		t.Fatalf("expected avg duration 11.0, got %v", h.AvgDuration)
	}
	if h.AvgConfidence == nil || *h.AvgConfidence != 0.75 {
		t.Fatalf("expected avg confidence 0.75, got %v", h.AvgConfidence)
	}

	m := byStrategy[StrategyMLRemote]
	if m.TotalCalls != 2 || m.HumanCount != 1 || m.UnknownCount != 1 {
		t.Fatalf("unexpected ml-remote counts %+v", m)
	}
	if m.HumanDetectionRate != 50.0 {
		t.Fatalf("expected rate 50.0, got %v", m.HumanDetectionRate)
	}
}

func TestAggregate_EmptyUser(t *testing.T) {
	q, _ := newQueryFixture(t)
	stats, err := q.Aggregate(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected no strategies for empty user, got %d", len(stats))
	}
}
