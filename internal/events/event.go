// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"callscreen_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus constructs the default in-process bus.
var NewInMemoryBus = events.NewInMemoryBus

// =============================================================================
// Call Domain Events
// =============================================================================

// CallDialed is published when an outbound call has been placed with the carrier.
type CallDialed struct {
	BaseEvent
	CallID        uuid.UUID `json:"callId"`
	UserID        uuid.UUID `json:"userId"`
	PhoneNumber   string    `json:"phoneNumber"`
	Strategy      string    `json:"strategy"`
	CarrierCallID string    `json:"carrierCallId"`
}

func (e CallDialed) EventName() string { return "calls.call.dialed" }

// CallClassified is published when a detection pass produced a verdict for a call,
// including the degraded unknown verdict after a detector failure.
type CallClassified struct {
	BaseEvent
	CallID       uuid.UUID `json:"callId"`
	UserID       uuid.UUID `json:"userId"`
	Strategy     string    `json:"strategy"`
	Verdict      string    `json:"verdict"`
	Confidence   float64   `json:"confidence"`
	RecordingURL string    `json:"recordingUrl,omitempty"`
}

func (e CallClassified) EventName() string { return "calls.call.classified" }
