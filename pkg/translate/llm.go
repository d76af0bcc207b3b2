package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultLLMBaseURL is the default OpenAI-compatible API base URL.
	DefaultLLMBaseURL = "https://api.openai.com/v1"
	// DefaultLLMModel is the default chat model used for translation.
	DefaultLLMModel = "gpt-4o-mini"
	// DefaultLLMTimeout is the transport timeout for a single batch request.
	DefaultLLMTimeout = 60 * time.Second
)

// LLMConfig holds configuration for the chat-completions translation engine.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond limits outgoing batch requests. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Logger            *logrus.Logger
}

// DefaultLLMConfig returns the default LLM engine configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:           DefaultLLMBaseURL,
		Model:             DefaultLLMModel,
		Timeout:           DefaultLLMTimeout,
		RequestsPerSecond: 2,
		Burst:             2,
	}
}

// LLMClient implements the Translator interface on top of an OpenAI-compatible
// chat-completions API. All texts of a batch go into one request.
type LLMClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
	metrics    *MetricsCollector
}

// NewLLMClient creates a new LLM translation client.
// It returns ErrNotConfigured when no API key is set.
func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key not set", ErrNotConfigured)
	}

	defaults := DefaultLLMConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &LLMClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		logger:  cfg.Logger,
		metrics: NewMetricsCollector(string(EngineLLM)),
	}, nil
}

// Name returns the engine name.
func (c *LLMClient) Name() string {
	return string(EngineLLM)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat chatResponseFormat `json:"response_format"`
}

// TranslateBatch translates texts into targetLang with one chat-completions call.
func (c *LLMClient) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	c.logger.WithFields(logrus.Fields{
		"engine":      c.Name(),
		"model":       c.model,
		"target_lang": targetLang,
		"batch_size":  len(texts),
	}).Debug("Translating batch with LLM")

	prompt, err := BuildPrompt(texts, targetLang)
	if err != nil {
		return nil, err
	}

	reqPayload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature:    0,
		ResponseFormat: chatResponseFormat{Type: "json_object"},
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(&reqPayload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrServiceUnavailable, err)
	}
	c.metrics.RecordRateLimitWait(time.Since(waitStart))

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordTranslationRequest(time.Since(startTime), false, len(texts))
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Translation request failed")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(startTime)
	if err != nil {
		c.metrics.RecordTranslationRequest(duration, false, len(texts))
		return nil, fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordTranslationRequest(duration, false, len(texts))
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    truncate(string(body), 512),
		}).Error("Translation request returned non-OK status")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	translations, err := parseChatTranslations(body, len(texts))
	c.metrics.RecordTranslationRequest(duration, err == nil, len(texts))
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"batch_size": len(texts),
		}).Error("Failed to parse translation response")
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"target_lang": targetLang,
		"batch_size":  len(texts),
		"duration_ms": duration.Milliseconds(),
	}).Info("Batch translation completed")

	return translations, nil
}

// parseChatTranslations extracts the positional translations from a
// chat-completions response envelope.
func parseChatTranslations(body []byte, want int) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrMalformedResponse)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing message content", ErrMalformedResponse)
	}

	return parseTranslationList(stripCodeFence(content.String()), want)
}

// parseTranslationList accepts either {"translations": [...]} or a bare array.
func parseTranslationList(raw string, want int) ([]string, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: content is not JSON", ErrMalformedResponse)
	}

	list := gjson.Get(raw, "translations")
	if !list.IsArray() {
		list = gjson.Parse(raw)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: no translations array", ErrMalformedResponse)
	}

	items := list.Array()
	if len(items) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(items), want)
	}

	out := make([]string, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%w: item %d is not a string", ErrMalformedResponse, i)
		}
		out[i] = strings.TrimSpace(item.String())
	}
	return out, nil
}

// stripCodeFence removes a surrounding Markdown code fence, which some models
// add even when asked for raw JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// CheckHealth verifies that the API is reachable and the key is accepted.
func (c *LLMClient) CheckHealth(ctx context.Context) error {
	c.logger.Debug("Checking LLM API health")

	url := c.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Health check request failed")
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
		}).Error("Health check returned non-OK status")
		return fmt.Errorf("%w: unexpected status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	c.logger.Debug("LLM API health check passed")
	return nil
}
