package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLibreTranslateURL is the default base URL for LibreTranslate API.
	DefaultLibreTranslateURL = "http://localhost:5000"
	// DefaultLibreTranslateTimeout is the default timeout for HTTP requests.
	DefaultLibreTranslateTimeout = 30 * time.Second
)

// LibreTranslateClient implements the Translator interface using LibreTranslate.
// LibreTranslate is a self-hosted, open-source machine translation API. It has no
// notion of the place-name rules the LLM prompt carries, so it is meant as a
// fallback engine for deployments without an LLM credential.
type LibreTranslateClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	mapper     *LanguageMapper
	logger     *logrus.Logger
	metrics    *MetricsCollector
}

// NewLibreTranslateClient creates a new LibreTranslate client.
// baseURL should point to the LibreTranslate server (default: http://localhost:5000).
func NewLibreTranslateClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *LibreTranslateClient {
	if baseURL == "" {
		baseURL = DefaultLibreTranslateURL
	}
	if timeout <= 0 {
		timeout = DefaultLibreTranslateTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LibreTranslateClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		mapper:  NewLanguageMapper(),
		logger:  logger,
		metrics: NewMetricsCollector(string(EngineLibreTranslate)),
	}
}

// Name returns the engine name.
func (c *LibreTranslateClient) Name() string {
	return string(EngineLibreTranslate)
}

// libreTranslateRequest represents a LibreTranslate API request.
// q accepts an array, which keeps the whole batch in one call.
type libreTranslateRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Format string   `json:"format"`
	APIKey string   `json:"api_key,omitempty"`
}

// libreTranslateResponse represents a LibreTranslate API response for array input.
type libreTranslateResponse struct {
	TranslatedText []string `json:"translatedText"`
}

// TranslateBatch translates texts into targetLang with one request.
func (c *LibreTranslateClient) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	c.logger.WithFields(logrus.Fields{
		"target_lang": targetLang,
		"batch_size":  len(texts),
	}).Debug("Translating batch with LibreTranslate")

	reqPayload := libreTranslateRequest{
		Q:      texts,
		Source: "auto",
		Target: c.mapper.ToLibreTranslateCode(targetLang),
		Format: "text",
		APIKey: c.apiKey,
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(&reqPayload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

	duration := time.Since(startTime)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.metrics.RecordTranslationRequest(duration, false, len(texts))
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    truncate(string(bodyBytes), 512),
		}).Error("Translation request returned non-OK status")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var ltResp libreTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ltResp); err != nil {
		c.metrics.RecordTranslationRequest(duration, false, len(texts))
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(ltResp.TranslatedText) != len(texts) {
		c.metrics.RecordTranslationRequest(duration, false, len(texts))
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(ltResp.TranslatedText), len(texts))
	}

	c.metrics.RecordTranslationRequest(duration, true, len(texts))
	c.logger.WithFields(logrus.Fields{
		"target_lang": targetLang,
		"batch_size":  len(texts),
		"duration_ms": duration.Milliseconds(),
	}).Info("Batch translation completed")

	return ltResp.TranslatedText, nil
}

// CheckHealth verifies that LibreTranslate is ready and operational.
func (c *LibreTranslateClient) CheckHealth(ctx context.Context) error {
	c.logger.Debug("Checking LibreTranslate health")

	// Use the /languages endpoint as a health check
	url := c.baseURL + "/languages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

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

	c.logger.Debug("LibreTranslate health check passed")
	return nil
}
