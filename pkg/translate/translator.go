package translate

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when the translation backend has no credential.
	// Callers treat it as degraded pass-through mode, not as a failure.
	ErrNotConfigured = errors.New("translation service not configured")
	// ErrServiceUnavailable wraps transport failures and non-OK upstream statuses.
	ErrServiceUnavailable = errors.New("translation service unavailable")
	// ErrMalformedResponse is returned when the upstream answer cannot be parsed.
	ErrMalformedResponse = errors.New("malformed translation response")
	// ErrLengthMismatch is returned when the upstream returns a different number
	// of translations than texts were sent. Positional results are never re-aligned.
	ErrLengthMismatch = errors.New("translation count does not match request")
	// ErrEmptyBatch is returned when TranslateBatch is called without texts.
	ErrEmptyBatch = errors.New("empty translation batch")
)

// Translator defines the interface for machine translation backends.
type Translator interface {
	// TranslateBatch translates all texts into targetLang with a single upstream
	// request. The result has the same length and order as texts.
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)

	// CheckHealth verifies that the translation backend is reachable.
	CheckHealth(ctx context.Context) error

	// Name returns the engine name used in logs and metrics labels.
	Name() string
}
