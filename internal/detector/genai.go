package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/platform/config"

	"google.golang.org/genai"
)

// audioPrompt instructs the model to classify the answering party. The framing
// rules (ignore trial-account boilerplate, ignore our own closing message) are
// internal policy of this detector, not part of the reconciliation contract.
const audioPrompt = `You are analyzing a recording of an outbound phone call to determine whether a
human or an answering machine picked up.

Rules:
- Ignore any trial-account announcement at the start of the recording.
- Ignore the caller's own automated message ("this is a connection test call").
- Focus only on the answering party: a brief, interactive greeting suggests a
  human; a long, uninterrupted scripted message suggests voicemail.

Reply with exactly one JSON object and nothing else:
{"result": "human" | "machine" | "unknown", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

// GenAI classifies the answering party by sending the raw call audio to an
// audio-capable generative model and parsing its JSON verdict.
type GenAI struct {
	client  *genai.Client
	fetcher carrier.RecordingFetcher
	model   string
	timeout time.Duration
}

// NewGenAI creates the generative-AI detector. The recording fetcher downloads
// the audio from the carrier with account credentials before submission.
func NewGenAI(ctx context.Context, cfg config.GenAIDetectorConfig, fetcher carrier.RecordingFetcher) (*GenAI, error) {
	if cfg.GetGenAIAPIKey() == "" {
		return nil, fmt.Errorf("genai api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GetGenAIAPIKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeout := cfg.GetGenAITimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GenAI{
		client:  client,
		fetcher: fetcher,
		model:   cfg.GetGenAIModel(),
		timeout: timeout,
	}, nil
}

func (g *GenAI) Name() string { return "generative-ai" }

type genaiVerdict struct {
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (g *GenAI) Detect(ctx context.Context, _, recordingURL string, _ int) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()

	audio, err := g.fetcher.FetchRecording(ctx, recordingURL)
	if err != nil {
		return Result{}, NewFailure(g.Name(), err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(audioPrompt),
			genai.NewPartFromBytes(audio, "audio/mpeg"),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Result{}, NewFailure(g.Name(), fmt.Errorf("model request: %w", err))
	}

	reply := resp.Text()
	verdict, err := parseModelVerdict(reply)
	if err != nil {
		return Result{}, NewFailure(g.Name(), err)
	}

	return Result{
		Verdict:       Verdict(verdict.Result),
		Confidence:    verdict.Confidence,
		Reasoning:     verdict.Reasoning,
		DetectionTime: int(time.Since(start).Milliseconds()),
		ModelUsed:     g.model,
	}, nil
}

// parseModelVerdict extracts the first JSON object from the model's free-text
// reply and validates it against the expected verdict shape.
func parseModelVerdict(reply string) (genaiVerdict, error) {
	raw, ok := extractFirstJSONObject(reply)
	if !ok {
		return genaiVerdict{}, fmt.Errorf("no JSON object in model reply")
	}

	var verdict genaiVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return genaiVerdict{}, fmt.Errorf("parse model verdict: %w", err)
	}

	switch Verdict(verdict.Result) {
	case VerdictHuman, VerdictMachine, VerdictUnknown:
	default:
		return genaiVerdict{}, fmt.Errorf("model returned invalid result %q", verdict.Result)
	}

	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return genaiVerdict{}, fmt.Errorf("model returned confidence %v outside [0,1]", verdict.Confidence)
	}

	return verdict, nil
}

// extractFirstJSONObject returns the first balanced top-level JSON object in
// text, tolerating surrounding prose and markdown fences.
func extractFirstJSONObject(text string) (string, bool) {
	startIdx := strings.IndexByte(text, '{')
	for startIdx >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := startIdx; i < len(text); i++ {
			ch := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[startIdx : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(text) // malformed, try the next opening brace
				}
			}
		}
		next := strings.IndexByte(text[startIdx+1:], '{')
		if next < 0 {
			return "", false
		}
		startIdx += 1 + next
	}
	return "", false
}
