package calls

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"

	"callscreen_backend/platform/apperr"
	"callscreen_backend/platform/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is one page of a user's call history, newest first.
type Page struct {
	Calls    []Call
	Total    int
	Page     int
	PageSize int
}

// StrategyStats summarizes completed-call outcomes for one detection strategy.
type StrategyStats struct {
	Strategy           Strategy `json:"strategy"`
	TotalCalls         int      `json:"totalCalls"`
	HumanCount         int      `json:"humanCount"`
	MachineCount       int      `json:"machineCount"`
	FaxCount           int      `json:"faxCount"`
	UnknownCount       int      `json:"unknownCount"`
	HumanDetectionRate float64  `json:"humanDetectionRate"`
	AvgConfidence      *float64 `json:"avgConfidence,omitempty"`
	AvgDuration        *float64 `json:"avgDuration,omitempty"`
}

// QueryService serves the read side: status polling, history, deletion, and
// per-strategy aggregation.
type QueryService struct {
	store Store
	log   *logger.Logger
}

// NewQueryService creates the call read service.
func NewQueryService(store Store, log *logger.Logger) *QueryService {
	return &QueryService{store: store, log: log}
}

// GetStatus returns one call for polling. A call owned by another user is
// forbidden rather than hidden; the ID space is unguessable UUIDs, so the
// distinction leaks nothing useful.
func (q *QueryService) GetStatus(ctx context.Context, userID, callID uuid.UUID) (Call, error) {
	call, err := q.store.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			return Call{}, apperr.NotFound("call not found")
		}
		q.log.DatabaseError("calls.get", err)
		return Call{}, apperr.Wrap(apperr.KindInternal, "failed to load call", err)
	}
	if call.UserID != userID {
		return Call{}, apperr.Forbidden("call belongs to another user")
	}
	return call, nil
}

// ListHistory returns a page of the user's calls, newest first. Page numbers
// start at 1; out-of-range pages return an empty page with the true total.
func (q *QueryService) ListHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	calls, total, err := q.store.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		q.log.DatabaseError("calls.list", err)
		return Page{}, apperr.Wrap(apperr.KindInternal, "failed to list calls", err)
	}
	return Page{Calls: calls, Total: total, Page: page, PageSize: pageSize}, nil
}

// Delete removes one of the user's calls.
func (q *QueryService) Delete(ctx context.Context, userID, callID uuid.UUID) error {
	call, err := q.store.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			return apperr.NotFound("call not found")
		}
		q.log.DatabaseError("calls.get", err)
		return apperr.Wrap(apperr.KindInternal, "failed to load call", err)
	}
	if call.UserID != userID {
		return apperr.Forbidden("call belongs to another user")
	}
	if err := q.store.Delete(ctx, callID); err != nil {
		if errors.Is(err, ErrCallNotFound) {
			return apperr.NotFound("call not found")
		}
		q.log.DatabaseError("calls.delete", err)
		return apperr.Wrap(apperr.KindInternal, "failed to delete call", err)
	}
	return nil
}

// Aggregate groups the user's completed calls by strategy and computes verdict
// counts, the human detection rate over classified calls, and confidence and
// duration averages. Strategies with no completed calls are absent from the
// result.
func (q *QueryService) Aggregate(ctx context.Context, userID uuid.UUID) ([]StrategyStats, error) {
	completed, err := q.store.CompletedByUser(ctx, userID)
	if err != nil {
		q.log.DatabaseError("calls.aggregate", err)
		return nil, apperr.Wrap(apperr.KindInternal, "failed to aggregate calls", err)
	}

	type acc struct {
		stats         StrategyStats
		confidenceSum float64
		confidenceN   int
		durationSum   int
		durationN     int
		classifiedCnt int
	}
	byStrategy := map[Strategy]*acc{}

	for _, call := range completed {
		a, ok := byStrategy[call.AmdStrategy]
		if !ok {
			a = &acc{stats: StrategyStats{Strategy: call.AmdStrategy}}
			byStrategy[call.AmdStrategy] = a
		}
		a.stats.TotalCalls++

		if call.AmdResult != nil {
			a.classifiedCnt++
			switch *call.AmdResult {
			case VerdictHuman:
				a.stats.HumanCount++
			case VerdictMachine:
				a.stats.MachineCount++
			case VerdictFax:
				a.stats.FaxCount++
			default:
				a.stats.UnknownCount++
			}
		}
		if call.Confidence != nil {
			a.confidenceSum += *call.Confidence
			a.confidenceN++
		}
		if call.Duration != nil {
			a.durationSum += *call.Duration
			a.durationN++
		}
	}

	stats := make([]StrategyStats, 0, len(byStrategy))
	for _, a := range byStrategy {
		if a.classifiedCnt > 0 {
			a.stats.HumanDetectionRate = round1(float64(a.stats.HumanCount) / float64(a.classifiedCnt) * 100)
		}
		if a.confidenceN > 0 {
			avg := round2(a.confidenceSum / float64(a.confidenceN))
			a.stats.AvgConfidence = &avg
		}
		if a.durationN > 0 {
			avg := round1(float64(a.durationSum) / float64(a.durationN))
			a.stats.AvgDuration = &avg
		}
		stats = append(stats, a.stats)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Strategy < stats[j].Strategy })
	return stats, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
