package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"callscreen_backend/platform/config"
)

// MLRemote forwards the recording reference to a remote inference service and
// returns its verdict verbatim. The service downloads and analyzes the audio
// itself; this client only speaks its small JSON contract.
type MLRemote struct {
	serviceURL string
	httpClient *http.Client
}

// NewMLRemote creates the remote ML detector from configuration.
func NewMLRemote(cfg config.MLDetectorConfig) *MLRemote {
	timeout := cfg.GetMLServiceTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MLRemote{
		serviceURL: cfg.GetMLServiceURL(),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type mlAnalyzeRequest struct {
	AudioURL string `json:"audio_url"`
	CallID   string `json:"call_id"`
}

type mlAnalyzeResponse struct {
	Result        string  `json:"result"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	DetectionTime int     `json:"detection_time"`
	ModelUsed     string  `json:"model_used"`
}

func (m *MLRemote) Name() string { return "ml-remote" }

func (m *MLRemote) Detect(ctx context.Context, callID, recordingURL string, _ int) (Result, error) {
	if m.serviceURL == "" {
		return Result{}, NewFailure(m.Name(), fmt.Errorf("ml service url not configured"))
	}

	payload, err := json.Marshal(mlAnalyzeRequest{AudioURL: recordingURL, CallID: callID})
	if err != nil {
		return Result{}, NewFailure(m.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serviceURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return Result{}, NewFailure(m.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Result{}, NewFailure(m.Name(), fmt.Errorf("ml service request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, NewFailure(m.Name(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, NewFailure(m.Name(), fmt.Errorf("ml service returned HTTP %d", resp.StatusCode))
	}

	var analyzed mlAnalyzeResponse
	if err := json.Unmarshal(body, &analyzed); err != nil {
		return Result{}, NewFailure(m.Name(), fmt.Errorf("parse ml service response: %w", err))
	}

	verdict, err := parseVerdict(analyzed.Result)
	if err != nil {
		return Result{}, NewFailure(m.Name(), err)
	}

	return Result{
		Verdict:       verdict,
		Confidence:    analyzed.Confidence,
		Reasoning:     analyzed.Reasoning,
		DetectionTime: analyzed.DetectionTime,
		ModelUsed:     analyzed.ModelUsed,
	}, nil
}

func parseVerdict(raw string) (Verdict, error) {
	switch Verdict(raw) {
	case VerdictHuman, VerdictMachine, VerdictFax, VerdictUnknown:
		return Verdict(raw), nil
	default:
		return "", fmt.Errorf("unrecognized verdict %q", raw)
	}
}
