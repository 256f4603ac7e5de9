// Package calls provides the call screening bounded context: placing outbound
// calls, reconciling carrier events and detection results into one coherent
// record per call, and serving the read side to polling clients.
package calls

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Strategy is the configured answering machine detection method for a call.
type Strategy string

const (
	StrategyNative       Strategy = "native"
	StrategyHeuristic    Strategy = "heuristic"
	StrategyMLRemote     Strategy = "ml-remote"
	StrategyGenerativeAI Strategy = "generative-ai"
)

// ParseStrategy validates a strategy value from client input.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(raw) {
	case StrategyNative, StrategyHeuristic, StrategyMLRemote, StrategyGenerativeAI:
		return Strategy(raw), nil
	default:
		return "", fmt.Errorf("unsupported strategy %q", raw)
	}
}

// Status is the call lifecycle state, mirroring the carrier's vocabulary.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusBusy       Status = "busy"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
)

// IsTerminal reports whether no further lifecycle transition can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// Verdict classifies who or what answered the call.
type Verdict string

const (
	VerdictHuman   Verdict = "human"
	VerdictMachine Verdict = "machine"
	VerdictFax     Verdict = "fax"
	VerdictUnknown Verdict = "unknown"
)

// Call is the sole persistent entity: one record per outbound dial attempt.
// Nullable fields are pointers; they stay nil until an event populates them.
type Call struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PhoneNumber   string
	Direction     string
	CarrierCallID *string
	AmdStrategy   Strategy
	Status        Status
	AmdResult     *Verdict
	Confidence    *float64
	Duration      *int
	AmdDurationMs *int
	ErrorMessage  *string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Patch is a field-scoped partial update. Nil fields are left untouched so
// concurrent patches to disjoint field sets commute; Metadata entries are
// merged by top-level key, never replacing the whole bag.
type Patch struct {
	CarrierCallID *string
	Status        *Status
	AmdResult     *Verdict
	Confidence    *float64
	Duration      *int
	AmdDurationMs *int
	ErrorMessage  *string
	Metadata      map[string]any
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.CarrierCallID == nil && p.Status == nil && p.AmdResult == nil &&
		p.Confidence == nil && p.Duration == nil && p.AmdDurationMs == nil &&
		p.ErrorMessage == nil && len(p.Metadata) == 0
}
