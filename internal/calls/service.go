package calls

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/events"
	"callscreen_backend/platform/apperr"
	"callscreen_backend/platform/config"
	"callscreen_backend/platform/logger"
	"callscreen_backend/platform/phone"
)

// DialParams is the validated input for placing an outbound call.
type DialParams struct {
	PhoneNumber string
	Strategy    string
}

// Service orchestrates outbound dialing: it validates input, persists the
// call record before the carrier is involved, places the call, and records
// the carrier's answer or refusal.
type Service struct {
	store  Store
	dialer carrier.Dialer
	cfg    config.CarrierConfig
	bus    events.Bus
	log    *logger.Logger
}

// NewService creates the dial service.
func NewService(store Store, dialer carrier.Dialer, cfg config.CarrierConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, dialer: dialer, cfg: cfg, bus: bus, log: log}
}

// Dial places an outbound call with the requested detection strategy. The
// call record is created before the carrier request so webhooks referencing
// the record by ID can never outrun its existence.
func (s *Service) Dial(ctx context.Context, userID uuid.UUID, params DialParams) (Call, error) {
	normalized, err := phone.ValidateE164(params.PhoneNumber)
	if err != nil {
		return Call{}, apperr.Validation("phone number must be a valid E.164 number").WithOp("calls.Dial")
	}

	strategy, err := ParseStrategy(params.Strategy)
	if err != nil {
		return Call{}, apperr.Validation(err.Error()).WithOp("calls.Dial")
	}

	if !s.cfg.IsCarrierConfigured() {
		return Call{}, apperr.Unavailable("carrier is not configured").WithOp("calls.Dial")
	}

	call := Call{
		ID:          uuid.New(),
		UserID:      userID,
		PhoneNumber: normalized,
		Direction:   "outbound",
		AmdStrategy: strategy,
		Status:      StatusInitiated,
		Metadata:    map[string]any{},
	}
	if err := s.store.Create(ctx, call); err != nil {
		s.log.DatabaseError("calls.create", err)
		return Call{}, apperr.Wrap(apperr.KindInternal, "failed to create call record", err)
	}

	result, err := s.dialer.PlaceCall(ctx, s.dialRequest(call))
	if err != nil {
		msg := fmt.Sprintf("carrier rejected call: %v", err)
		failed := StatusFailed
		if _, mergeErr := s.store.Merge(ctx, call.ID, Patch{Status: &failed, ErrorMessage: &msg}); mergeErr != nil {
			s.log.DatabaseError("calls.merge", mergeErr)
		}
		return Call{}, apperr.Wrap(apperr.KindUnavailable, "failed to place call", err).WithOp("calls.Dial")
	}

	call, err = s.store.Merge(ctx, call.ID, Patch{CarrierCallID: &result.CarrierCallID})
	if err != nil {
		s.log.DatabaseError("calls.merge", err)
		return Call{}, apperr.Wrap(apperr.KindInternal, "failed to record carrier call id", err)
	}

	s.bus.Publish(ctx, events.CallDialed{
		BaseEvent:     events.NewBaseEvent(),
		CallID:        call.ID,
		UserID:        userID,
		PhoneNumber:   normalized,
		Strategy:      string(strategy),
		CarrierCallID: result.CarrierCallID,
	})

	s.log.WithCallID(call.ID.String()).Info("call placed",
		"strategy", string(strategy),
		"carrier_call_id", result.CarrierCallID,
	)
	return call, nil
}

// dialRequest builds the carrier request for a call. Native strategy asks the
// carrier for its own machine detection; every other strategy records the
// call so a detector can analyze the audio afterwards.
func (s *Service) dialRequest(call Call) carrier.DialRequest {
	base := s.cfg.GetPublicBaseURL()
	req := carrier.DialRequest{
		To:                call.PhoneNumber,
		From:              s.cfg.GetCarrierFromNumber(),
		StatusCallbackURL: fmt.Sprintf("%s/api/v1/webhooks/calls/status?callId=%s", base, call.ID),
	}
	if call.AmdStrategy == StrategyNative {
		req.AMDCallbackURL = fmt.Sprintf("%s/api/v1/webhooks/calls/amd?callId=%s", base, call.ID)
	} else {
		req.RecordingCallbackURL = fmt.Sprintf("%s/api/v1/webhooks/calls/recording?callId=%s", base, call.ID)
	}
	return req
}
