package detector

import "context"

// Heuristic classifies purely on recording duration. Short recordings mean the
// callee's greeting ran long past the synthetic message (a voicemail script);
// longer ones mean a live conversation. Deterministic, no I/O, never fails.
type Heuristic struct{}

// NewHeuristic creates the duration heuristic detector.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) Detect(_ context.Context, _, _ string, durationSeconds int) (Result, error) {
	switch {
	case durationSeconds > 15:
		return Result{
			Verdict:    VerdictHuman,
			Confidence: 0.80,
			Reasoning:  "long recording suggests an extended live conversation",
			ModelUsed:  "duration-heuristic",
		}, nil
	case durationSeconds >= 5:
		return Result{
			Verdict:    VerdictHuman,
			Confidence: 0.75,
			Reasoning:  "mid-length recording consistent with a human answering",
			ModelUsed:  "duration-heuristic",
		}, nil
	case durationSeconds > 0:
		return Result{
			Verdict:    VerdictMachine,
			Confidence: 0.70,
			Reasoning:  "very short recording consistent with an answering machine pickup",
			ModelUsed:  "duration-heuristic",
		}, nil
	default:
		return Result{
			Verdict:    VerdictUnknown,
			Confidence: 0.50,
			Reasoning:  "recording duration unusable for classification",
			ModelUsed:  "duration-heuristic",
		}, nil
	}
}
