package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dasmlab/komuniti/pkg/translate"
)

// ErrValidation marks a malformed translation request. It never reaches the orchestrator.
var ErrValidation = errors.New("invalid request")

// TranslateRequest is the payload shared by the HTTP endpoint, the Lambda handler and the CLI.
type TranslateRequest struct {
	Texts          []string `json:"texts"`
	TargetLang     string   `json:"targetLang"`
	ForceTranslate bool     `json:"forceTranslate,omitempty"`
}

// TranslateResponse carries one translation per input position.
type TranslateResponse struct {
	Translations []string `json:"translations"`
}

// ErrorResponse is the body returned for rejected or failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Validate checks the request shape. Individual texts may be empty or duplicated.
func (r *TranslateRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("%w: texts must be a non-empty array of strings", ErrValidation)
	}
	if !translate.IsSupported(r.TargetLang) {
		return fmt.Errorf("%w: targetLang must be one of: %s",
			ErrValidation, strings.Join(translate.SupportedLanguages(), ", "))
	}
	return nil
}
