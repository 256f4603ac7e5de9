// Package detector provides the pluggable answering machine detection
// capability. One implementation exists per post-call analysis strategy; all
// share a single signature so the reconciliation engine never branches on
// strategy beyond selecting which implementation to invoke.
package detector

import (
	"context"
	"fmt"
)

// Verdict classifies who or what answered a call.
type Verdict string

const (
	VerdictHuman   Verdict = "human"
	VerdictMachine Verdict = "machine"
	VerdictFax     Verdict = "fax"
	VerdictUnknown Verdict = "unknown"
)

// Result is the outcome of one detection pass.
type Result struct {
	Verdict       Verdict
	Confidence    float64
	Reasoning     string
	DetectionTime int // milliseconds
	ModelUsed     string
}

// Detector analyzes a call recording and classifies who answered.
// recordingURL is an opaque audio reference; durationSeconds is a hint some
// strategies use instead of fetching the audio.
type Detector interface {
	Name() string
	Detect(ctx context.Context, callID, recordingURL string, durationSeconds int) (Result, error)
}

// Failure is returned when a detection pass could not produce a verdict.
// The reconciliation engine degrades the call to an unknown verdict and
// records the failure; it never retries.
type Failure struct {
	Strategy string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s detection failed: %v", f.Strategy, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps a detector error with its strategy name.
func NewFailure(strategy string, err error) *Failure {
	return &Failure{Strategy: strategy, Err: err}
}
