package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/detector"
	"callscreen_backend/internal/events"
	"callscreen_backend/platform/logger"
)

// AnalysisDispatcher hands a recording off for asynchronous detection. The
// task queue implements it; the reconciler never blocks a webhook on audio
// analysis.
type AnalysisDispatcher interface {
	DispatchAnalysis(ctx context.Context, callID uuid.UUID, recordingURL string, durationSeconds int) error
}

// RecordingDeduper guards against the carrier delivering the same recording
// event more than once. Acquire reports whether this delivery is the first.
type RecordingDeduper interface {
	Acquire(ctx context.Context, recordingID string) (bool, error)
}

// Reconciler folds carrier webhooks and detection results into call records.
// Every apply is a field-scoped merge so out-of-order and concurrent events
// for the same call converge on the union of their writes.
type Reconciler struct {
	store      Store
	detectors  *detector.Registry
	dispatcher AnalysisDispatcher
	dedup      RecordingDeduper
	bus        events.Bus
	log        *logger.Logger

	lookupAttempts int
	lookupDelay    time.Duration
}

// NewReconciler creates the webhook and detection reconciler.
func NewReconciler(store Store, detectors *detector.Registry, dispatcher AnalysisDispatcher, dedup RecordingDeduper, bus events.Bus, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:          store,
		detectors:      detectors,
		dispatcher:     dispatcher,
		dedup:          dedup,
		bus:            bus,
		log:            log,
		lookupAttempts: 3,
		lookupDelay:    250 * time.Millisecond,
	}
}

// answeredByVerdicts maps the carrier's native AMD vocabulary to a verdict
// and a fixed confidence per category.
var answeredByVerdicts = map[string]struct {
	Verdict    Verdict
	Confidence float64
}{
	"human":               {VerdictHuman, 0.95},
	"machine_start":       {VerdictMachine, 0.85},
	"machine_end_beep":    {VerdictMachine, 0.90},
	"machine_end_silence": {VerdictMachine, 0.80},
	"machine_end_other":   {VerdictMachine, 0.75},
	"fax":                 {VerdictFax, 0.95},
}

// ClassifyAnsweredBy converts a carrier answered_by value into a verdict with
// its confidence. Unrecognized values, including the carrier's own "unknown",
// classify as unknown at low confidence.
func ClassifyAnsweredBy(answeredBy string) (Verdict, float64) {
	if m, ok := answeredByVerdicts[answeredBy]; ok {
		return m.Verdict, m.Confidence
	}
	return VerdictUnknown, 0.60
}

// statusFromCarrier maps the carrier's call status vocabulary onto ours.
// The carrier reports the answer moment as "answered"; we store it as the
// in-progress lifecycle state. Unmapped values yield no status change.
func statusFromCarrier(raw string) *Status {
	var status Status
	switch raw {
	case "initiated", "queued":
		status = StatusInitiated
	case "ringing":
		status = StatusRinging
	case "answered", "in-progress":
		status = StatusInProgress
	case "completed":
		status = StatusCompleted
	case "busy":
		status = StatusBusy
	case "failed", "canceled":
		status = StatusFailed
	case "no-answer":
		status = StatusNoAnswer
	default:
		return nil
	}
	return &status
}

// ApplyStatusEvent folds one status or native-AMD webhook into the call
// record. Both arrive on the same carrier schema; an AMD callback simply has
// answered_by set and usually no call status. Returns whether a patch was
// applied; an unknown call is not an error, the carrier gets its ack either
// way.
func (r *Reconciler) ApplyStatusEvent(ctx context.Context, callID uuid.UUID, wh carrier.StatusWebhook) (bool, error) {
	if _, err := r.lookupWithRetry(ctx, callID); err != nil {
		if errors.Is(err, ErrCallNotFound) {
			r.log.WithCallID(callID.String()).Warn("status webhook for unknown call",
				"carrier_call_id", wh.CallSid,
				"call_status", wh.CallStatus,
			)
			return false, nil
		}
		return false, err
	}

	patch := Patch{
		Status:        statusFromCarrier(wh.CallStatus),
		Duration:      wh.CallDuration,
		AmdDurationMs: wh.MachineDetectionDuration,
	}
	if wh.CallSid != "" {
		patch.CarrierCallID = &wh.CallSid
	}
	if wh.AnsweredBy != "" {
		verdict, confidence := ClassifyAnsweredBy(wh.AnsweredBy)
		patch.AmdResult = &verdict
		patch.Confidence = &confidence
		patch.Metadata = map[string]any{
			string(StrategyNative): map[string]any{"answeredBy": wh.AnsweredBy},
		}
	}
	if patch.IsEmpty() {
		return false, nil
	}

	if _, err := r.store.Merge(ctx, callID, patch); err != nil {
		if errors.Is(err, ErrCallNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HandleRecordingEvent reacts to a finished recording by scheduling the
// call's detection strategy against it. Recordings in any state other than
// completed, calls using the carrier's native detection, and duplicate
// deliveries of the same recording are all acknowledged without action.
func (r *Reconciler) HandleRecordingEvent(ctx context.Context, callID uuid.UUID, wh carrier.RecordingWebhook) (bool, error) {
	if wh.RecordingStatus != "completed" {
		return false, nil
	}

	call, err := r.lookupWithRetry(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			r.log.WithCallID(callID.String()).Warn("recording webhook for unknown call",
				"recording_sid", wh.RecordingSid,
			)
			return false, nil
		}
		return false, err
	}

	if call.AmdStrategy == StrategyNative {
		return false, nil
	}

	if wh.RecordingSid != "" {
		first, err := r.dedup.Acquire(ctx, wh.RecordingSid)
		if err != nil {
			r.log.WithCallID(callID.String()).Warn("recording dedup unavailable, proceeding", "error", err)
		} else if !first {
			r.log.WithCallID(callID.String()).Info("duplicate recording event ignored",
				"recording_sid", wh.RecordingSid,
			)
			return false, nil
		}
	}

	if err := r.dispatcher.DispatchAnalysis(ctx, callID, wh.RecordingURL, wh.RecordingDuration); err != nil {
		return false, fmt.Errorf("dispatch analysis for call %s: %w", callID, err)
	}
	return true, nil
}

// ProcessRecording runs the call's detection strategy against a recording and
// merges the outcome. A detector failure is not retried: the call degrades to
// an unknown verdict at even confidence with the failure recorded, so a call
// that had a recording analyzed always ends up classified one way or the
// other.
func (r *Reconciler) ProcessRecording(ctx context.Context, callID uuid.UUID, recordingURL string, durationSeconds int) error {
	call, err := r.store.GetByID(ctx, callID)
	if err != nil {
		return fmt.Errorf("load call %s: %w", callID, err)
	}

	d, ok := r.detectors.ForStrategy(string(call.AmdStrategy))
	if !ok {
		return fmt.Errorf("no detector registered for strategy %q", call.AmdStrategy)
	}

	started := time.Now()
	result, detectErr := d.Detect(ctx, callID.String(), recordingURL, durationSeconds)
	elapsed := int(time.Since(started).Milliseconds())

	var patch Patch
	if detectErr != nil {
		msg := fmt.Sprintf("detection failed: %v", detectErr)
		verdict := VerdictUnknown
		confidence := 0.5
		patch = Patch{
			AmdResult:    &verdict,
			Confidence:   &confidence,
			ErrorMessage: &msg,
		}
		r.log.WithCallID(callID.String()).Error("detection failed, degrading to unknown",
			"strategy", string(call.AmdStrategy),
			"error", detectErr,
		)
	} else {
		verdict := Verdict(result.Verdict)
		diag := map[string]any{
			"recordingUrl":      recordingURL,
			"recordingDuration": durationSeconds,
		}
		if result.Reasoning != "" {
			diag["reasoning"] = result.Reasoning
		}
		if result.ModelUsed != "" {
			diag["modelUsed"] = result.ModelUsed
		}
		patch = Patch{
			AmdResult:  &verdict,
			Confidence: &result.Confidence,
			Metadata:   map[string]any{string(call.AmdStrategy): diag},
		}
		if result.DetectionTime > 0 {
			patch.AmdDurationMs = &result.DetectionTime
			diag["detectionTime"] = result.DetectionTime
		}
	}

	merged, err := r.store.Merge(ctx, callID, patch)
	if err != nil {
		return fmt.Errorf("merge detection result for call %s: %w", callID, err)
	}

	verdict := VerdictUnknown
	confidence := 0.5
	if merged.AmdResult != nil {
		verdict = *merged.AmdResult
	}
	if merged.Confidence != nil {
		confidence = *merged.Confidence
	}

	r.bus.Publish(ctx, events.CallClassified{
		BaseEvent:    events.NewBaseEvent(),
		CallID:       callID,
		UserID:       merged.UserID,
		Strategy:     string(call.AmdStrategy),
		Verdict:      string(verdict),
		Confidence:   confidence,
		RecordingURL: recordingURL,
	})
	r.log.DetectionResult(callID.String(), string(call.AmdStrategy), string(verdict), confidence, elapsed)
	return nil
}

// lookupWithRetry tolerates a webhook racing the transaction that created its
// call record. A handful of short retries covers commit lag without turning
// an unknown call into a long stall.
func (r *Reconciler) lookupWithRetry(ctx context.Context, callID uuid.UUID) (Call, error) {
	var lastErr error
	for attempt := 0; attempt < r.lookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Call{}, ctx.Err()
			case <-time.After(r.lookupDelay):
			}
		}
		call, err := r.store.GetByID(ctx, callID)
		if err == nil {
			return call, nil
		}
		lastErr = err
		if !errors.Is(err, ErrCallNotFound) {
			return Call{}, err
		}
	}
	return Call{}, lastErr
}
