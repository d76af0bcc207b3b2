package translate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineType represents the type of translation engine to use.
type EngineType string

const (
	// EngineLLM uses an OpenAI-compatible chat-completions API.
	EngineLLM EngineType = "llm"
	// EngineLibreTranslate uses LibreTranslate as the backend.
	EngineLibreTranslate EngineType = "libretranslate"
	// EngineDisabled turns machine translation off; texts pass through unchanged.
	EngineDisabled EngineType = "disabled"
)

// Config holds configuration for creating a Translator instance.
type Config struct {
	// Engine specifies which translation engine to use.
	Engine EngineType
	// BaseURL is the base URL for the engine API. Engine defaults apply when empty.
	BaseURL string
	// APIKey is the engine credential. Required for EngineLLM.
	APIKey string
	// Model is the chat model name (EngineLLM only).
	Model   string
	Timeout time.Duration
	// RequestsPerSecond and Burst configure the client-side limiter (EngineLLM only).
	RequestsPerSecond float64
	Burst             int
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewTranslator creates a new Translator instance based on the configuration.
// A missing credential or a disabled engine yields ErrNotConfigured; callers
// run without a translator in that case.
func NewTranslator(cfg Config) (Translator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Info("Creating translator instance")

	switch cfg.Engine {
	case EngineLLM:
		client, err := NewLLMClient(LLMConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Logger:            cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case EngineLibreTranslate:
		return NewLibreTranslateClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.Logger), nil
	case EngineDisabled:
		return nil, fmt.Errorf("%w: translation engine disabled", ErrNotConfigured)
	default:
		cfg.Logger.WithFields(logrus.Fields{
			"engine": cfg.Engine,
		}).Error("Unknown translation engine")
		return nil, fmt.Errorf("unknown translation engine: %s", cfg.Engine)
	}
}

// ParseEngineType parses a string into an EngineType.
// Returns an error if the string is not a valid engine type.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "llm", "openai":
		return EngineLLM, nil
	case "libretranslate":
		return EngineLibreTranslate, nil
	case "disabled", "none", "":
		return EngineDisabled, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s (supported: llm, libretranslate, disabled)", s)
	}
}
