package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const callColumns = `id, user_id, phone_number, direction, carrier_call_id, amd_strategy,
	status, amd_result, confidence, duration, amd_detection_duration_ms,
	error_message, metadata, created_at, updated_at`

// Repository is the Postgres-backed call record store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new call repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new call record.
func (r *Repository) Create(ctx context.Context, call Call) error {
	metadata, err := marshalMetadata(call.Metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO calls (id, user_id, phone_number, direction, carrier_call_id, amd_strategy, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, call.ID, call.UserID, call.PhoneNumber, call.Direction, call.CarrierCallID, string(call.AmdStrategy), string(call.Status), metadata)
	return err
}

// GetByID retrieves a call by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Call, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	call, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrCallNotFound
	}
	return call, err
}

// Merge applies a field-scoped patch in one atomic statement. Absent fields
// are carried through via COALESCE so concurrent patches to disjoint fields
// commute; the status CASE keeps a terminal status from being overwritten by
// a late non-terminal event; metadata is merged by top-level key.
func (r *Repository) Merge(ctx context.Context, id uuid.UUID, patch Patch) (Call, error) {
	metadata, err := marshalMetadata(patch.Metadata)
	if err != nil {
		return Call{}, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE calls SET
			carrier_call_id = COALESCE($2, carrier_call_id),
			status = CASE
				WHEN $3::text IS NULL THEN status
				WHEN status IN ('completed', 'busy', 'failed', 'no-answer')
					AND $3::text NOT IN ('completed', 'busy', 'failed', 'no-answer') THEN status
				ELSE $3::text
			END,
			amd_result = COALESCE($4, amd_result),
			confidence = COALESCE($5, confidence),
			duration = COALESCE($6, duration),
			amd_detection_duration_ms = COALESCE($7, amd_detection_duration_ms),
			error_message = COALESCE($8, error_message),
			metadata = metadata || $9::jsonb,
			updated_at = now()
		WHERE id = $1
		RETURNING `+callColumns,
		id,
		patch.CarrierCallID,
		statusParam(patch.Status),
		verdictParam(patch.AmdResult),
		patch.Confidence,
		patch.Duration,
		patch.AmdDurationMs,
		patch.ErrorMessage,
		metadata,
	)

	call, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrCallNotFound
	}
	return call, err
}

// ListByUser returns a page of the user's calls, newest first, with the total count.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Call, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM calls WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	calls, err := collectCalls(rows)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

// CompletedByUser returns the user's calls that reached the completed status,
// the qualifying set for result aggregation.
func (r *Repository) CompletedByUser(ctx context.Context, userID uuid.UUID) ([]Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCalls(rows)
}

// Delete removes a call record.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

func scanCall(row pgx.Row) (Call, error) {
	var call Call
	var strategy, status string
	var amdResult *string
	var metadata []byte

	err := row.Scan(
		&call.ID, &call.UserID, &call.PhoneNumber, &call.Direction, &call.CarrierCallID,
		&strategy, &status, &amdResult, &call.Confidence, &call.Duration,
		&call.AmdDurationMs, &call.ErrorMessage, &metadata, &call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}

	call.AmdStrategy = Strategy(strategy)
	call.Status = Status(status)
	if amdResult != nil {
		verdict := Verdict(*amdResult)
		call.AmdResult = &verdict
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &call.Metadata); err != nil {
			return Call{}, fmt.Errorf("decode call metadata: %w", err)
		}
	}
	if call.Metadata == nil {
		call.Metadata = map[string]any{}
	}
	return call, nil
}

func collectCalls(rows pgx.Rows) ([]Call, error) {
	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

func statusParam(status *Status) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

func verdictParam(verdict *Verdict) *string {
	if verdict == nil {
		return nil
	}
	v := string(*verdict)
	return &v
}
