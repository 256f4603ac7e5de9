package calls

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/events"
	"callscreen_backend/platform/apperr"
	"callscreen_backend/platform/logger"
)

type stubCarrierConfig struct {
	configured bool
}

func (c stubCarrierConfig) GetCarrierAccountSID() string { return "AC123" }
func (c stubCarrierConfig) GetCarrierAuthToken() string  { return "secret" }
func (c stubCarrierConfig) GetCarrierFromNumber() string { return "+15550001111" }
func (c stubCarrierConfig) GetPublicBaseURL() string     { return "https://app.example.com" }
func (c stubCarrierConfig) IsCarrierConfigured() bool    { return c.configured }

type stubDialer struct {
	lastReq carrier.DialRequest
	result  carrier.DialResult
	err     error
}

func (d *stubDialer) PlaceCall(_ context.Context, req carrier.DialRequest) (carrier.DialResult, error) {
	d.lastReq = req
	return d.result, d.err
}

func newDialFixture(t *testing.T, dialer *stubDialer) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	return NewService(store, dialer, stubCarrierConfig{configured: true}, bus, log), store
}

func TestDial_PlacesCallAndStoresCarrierID(t *testing.T) {
	dialer := &stubDialer{result: carrier.DialResult{CarrierCallID: "CA777"}}
	svc, store := newDialFixture(t, dialer)
	userID := uuid.New()

	call, err := svc.Dial(context.Background(), userID, DialParams{
		PhoneNumber: "+14155550100",
		Strategy:    "heuristic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Status != StatusInitiated {
		t.Fatalf("expected initiated, got %s", call.Status)
	}
	if call.CarrierCallID == nil || *call.CarrierCallID != "CA777" {
		t.Fatalf("expected carrier call id, got %v", call.CarrierCallID)
	}
	if call.AmdStrategy != StrategyHeuristic {
		t.Fatalf("expected heuristic, got %s", call.AmdStrategy)
	}

	if dialer.lastReq.From != "+15550001111" || dialer.lastReq.To != "+14155550100" {
		t.Fatalf("unexpected dial request %+v", dialer.lastReq)
	}
	wantStatus := "https://app.example.com/api/v1/webhooks/calls/status?callId=" + call.ID.String()
	if dialer.lastReq.StatusCallbackURL != wantStatus {
		t.Fatalf("unexpected status callback %q", dialer.lastReq.StatusCallbackURL)
	}
	if dialer.lastReq.RecordingCallbackURL == "" {
		t.Fatal("non-native strategy must request a recording callback")
	}
	if dialer.lastReq.AMDCallbackURL != "" {
		t.Fatal("non-native strategy must not request carrier AMD")
	}

	stored, err := store.GetByID(context.Background(), call.ID)
	if err != nil {
		t.Fatalf("call was not persisted: %v", err)
	}
	if stored.UserID != userID {
		t.Fatalf("unexpected owner %v", stored.UserID)
	}
}

func TestDial_NativeStrategyRequestsCarrierAMD(t *testing.T) {
	dialer := &stubDialer{result: carrier.DialResult{CarrierCallID: "CA1"}}
	svc, _ := newDialFixture(t, dialer)

	if _, err := svc.Dial(context.Background(), uuid.New(), DialParams{
		PhoneNumber: "+14155550100",
		Strategy:    "native",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dialer.lastReq.AMDCallbackURL == "" {
		t.Fatal("native strategy must request carrier AMD callback")
	}
	if dialer.lastReq.RecordingCallbackURL != "" {
		t.Fatal("native strategy must not request recording")
	}
}

func TestDial_InvalidInput(t *testing.T) {
	svc, _ := newDialFixture(t, &stubDialer{})

	_, err := svc.Dial(context.Background(), uuid.New(), DialParams{PhoneNumber: "not-a-number", Strategy: "heuristic"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for bad phone, got %v", err)
	}

	_, err = svc.Dial(context.Background(), uuid.New(), DialParams{PhoneNumber: "+14155550100", Strategy: "telepathy"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for bad strategy, got %v", err)
	}
}

func TestDial_CarrierRejectionMarksCallFailed(t *testing.T) {
	dialer := &stubDialer{err: errors.New("carrier rejected call (code 21211): invalid number")}
	svc, store := newDialFixture(t, dialer)
	userID := uuid.New()

	_, err := svc.Dial(context.Background(), userID, DialParams{
		PhoneNumber: "+14155550100",
		Strategy:    "heuristic",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	// The record survives with the failure attached so the client can see
	// what happened when polling.
	calls, _, listErr := store.ListByUser(context.Background(), userID, 10, 0)
	if listErr != nil {
		t.Fatalf("unexpected error: %v", listErr)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Status != StatusFailed {
		t.Fatalf("expected failed, got %s", calls[0].Status)
	}
	if calls[0].ErrorMessage == nil || !strings.Contains(*calls[0].ErrorMessage, "21211") {
		t.Fatalf("expected carrier message recorded, got %v", calls[0].ErrorMessage)
	}
}

func TestDial_CarrierNotConfigured(t *testing.T) {
	store := NewMemoryStore()
	log := logger.New("development")
	svc := NewService(store, &stubDialer{}, stubCarrierConfig{configured: false}, events.NewInMemoryBus(log), log)

	_, err := svc.Dial(context.Background(), uuid.New(), DialParams{PhoneNumber: "+14155550100", Strategy: "heuristic"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable when carrier unconfigured, got %v", err)
	}
}
