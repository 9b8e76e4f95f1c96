package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 15 * time.Second
)

// ProviderConfig captures the runtime settings required to talk to the
// generative scoring provider.
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Provider wraps a chat-completion API that returns a strict JSON verdict
// for a submission. Every call carries a bounded timeout; any failure is
// reported to the caller so the deterministic fallback can take over.
type Provider struct {
	cfg        ProviderConfig
	httpClient *http.Client
}

// ProviderOption customizes the provider.
type ProviderOption func(*Provider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewProvider constructs a scoring provider from configuration.
func NewProvider(cfg ProviderConfig, opts ...ProviderOption) *Provider {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	p := &Provider{
		cfg: ProviderConfig{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether the provider has enough configuration to be
// called at all.
func (p *Provider) Configured() bool {
	return p != nil && p.cfg.BaseURL != "" && p.cfg.APIKey != ""
}

// providerVerdict is the response-shape contract with the provider. Any
// deviation from it triggers the fallback.
type providerVerdict struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
	Verdict  string `json:"verdict"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score asks the provider for a verdict on the submission.
func (p *Provider) Score(ctx context.Context, in Input) (providerVerdict, error) {
	var empty providerVerdict
	if !p.Configured() {
		return empty, errors.New("scoring provider: not configured")
	}
	payload := chatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: reviewSystemPrompt},
			{Role: "user", Content: reviewUserPrompt(in)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("scoring provider: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("scoring provider: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("scoring provider: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("scoring provider: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("scoring provider: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return empty, fmt.Errorf("scoring provider: decode response: %w", err)
	}
	if completion.Error != nil {
		return empty, fmt.Errorf("scoring provider: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	content := ""
	for _, choice := range completion.Choices {
		if trimmed := strings.TrimSpace(choice.Message.Content); trimmed != "" {
			content = trimmed
			break
		}
	}
	if content == "" {
		return empty, errors.New("scoring provider: empty content")
	}
	var parsed providerVerdict
	if err := decodeProviderJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("scoring provider: parse payload: %w", err)
	}
	return parsed, nil
}

// decodeProviderJSON decodes JSON from the provider, handling common model
// formatting quirks such as code fences around the object.
func decodeProviderJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	return json.Unmarshal([]byte(sanitized), target)
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
