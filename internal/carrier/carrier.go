// Package carrier provides the telephony carrier adapter: outbound call
// placement, authenticated recording download, and inbound webhook parsing.
// No business logic lives here; the calls module owns what happens to a call.
package carrier

import (
	"context"
)

// DialRequest describes one outbound call to be placed with the carrier.
// Callback URLs already carry the internal callId as a query parameter, since
// the call record exists before the carrier assigns its own identifier.
type DialRequest struct {
	To   string
	From string

	// StatusCallbackURL receives call lifecycle events.
	StatusCallbackURL string

	// AMDCallbackURL, when set, requests carrier-side asynchronous machine
	// detection and receives its verdict.
	AMDCallbackURL string

	// RecordingCallbackURL, when set, requests call recording (mono,
	// silence-trimmed) and receives recording lifecycle events.
	RecordingCallbackURL string
}

// DialResult is the carrier's acceptance of a placed call.
type DialResult struct {
	CarrierCallID string
}

// Dialer places outbound calls with the carrier.
type Dialer interface {
	PlaceCall(ctx context.Context, req DialRequest) (DialResult, error)
}

// RecordingFetcher downloads call recordings from the carrier's storage,
// authenticating with the account credentials.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) ([]byte, error)
}
