package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callscreen_backend/platform/config"
)

const defaultAPIBase = "https://api.twilio.com"

// answerTwiML is played to whoever picks up. The recording-based detectors are
// told to ignore this synthetic closing message when classifying the audio.
const answerTwiML = `<Response><Pause length="2"/><Say>Hello, this is a connection test call. Thank you, goodbye.</Say></Response>`

// TwilioClient places calls through the Twilio REST API.
type TwilioClient struct {
	accountSID string
	authToken  string
	apiBase    string
	httpClient *http.Client
}

// NewTwilioClient creates a carrier client from configuration.
func NewTwilioClient(cfg config.CarrierConfig) *TwilioClient {
	return &TwilioClient{
		accountSID: cfg.GetCarrierAccountSID(),
		authToken:  cfg.GetCarrierAuthToken(),
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetAPIBase overrides the carrier API base URL (used in tests).
func (t *TwilioClient) SetAPIBase(base string) {
	t.apiBase = strings.TrimRight(base, "/")
}

type twilioCallResponse struct {
	Sid string `json:"sid"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PlaceCall issues the outbound call. The returned error carries the carrier's
// rejection message verbatim; the caller decides how to record it.
func (t *TwilioClient) PlaceCall(ctx context.Context, req DialRequest) (DialResult, error) {
	if t.accountSID == "" || t.authToken == "" {
		return DialResult{}, fmt.Errorf("carrier credentials not configured")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", answerTwiML)
	form.Set("StatusCallback", req.StatusCallbackURL)
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, event := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", event)
	}

	if req.AMDCallbackURL != "" {
		form.Set("MachineDetection", "Enable")
		form.Set("AsyncAmd", "true")
		form.Set("AsyncAmdStatusCallback", req.AMDCallbackURL)
		form.Set("AsyncAmdStatusCallbackMethod", http.MethodPost)
	}

	if req.RecordingCallbackURL != "" {
		form.Set("Record", "true")
		form.Set("RecordingChannels", "mono")
		form.Set("Trim", "trim-silence")
		form.Set("RecordingStatusCallback", req.RecordingCallbackURL)
		form.Set("RecordingStatusCallbackMethod", http.MethodPost)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", t.apiBase, t.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DialResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return DialResult{}, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DialResult{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var carrierErr twilioErrorResponse
		if json.Unmarshal(body, &carrierErr) == nil && carrierErr.Message != "" {
			return DialResult{}, fmt.Errorf("carrier rejected call (code %d): %s", carrierErr.Code, carrierErr.Message)
		}
		return DialResult{}, fmt.Errorf("carrier rejected call: HTTP %d", resp.StatusCode)
	}

	var callResp twilioCallResponse
	if err := json.Unmarshal(body, &callResp); err != nil {
		return DialResult{}, fmt.Errorf("parse carrier response: %w", err)
	}
	if callResp.Sid == "" {
		return DialResult{}, fmt.Errorf("carrier response missing call sid")
	}

	return DialResult{CarrierCallID: callResp.Sid}, nil
}

// FetchRecording downloads a recording, authenticating with the account
// credentials the way the carrier's media endpoints require.
func (t *TwilioClient) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download recording: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download recording: empty body")
	}
	return data, nil
}
