// Package handler provides the Lambda handler for translation requests.
package handler

import (
	"context"

	"github.com/dasmlab/komuniti/pkg/service"
	"github.com/sirupsen/logrus"
)

// TextTranslator is satisfied by *service.TranslationService.
type TextTranslator interface {
	TranslateTexts(ctx context.Context, texts []string, targetLang string, force bool) []string
}

// Response is the Lambda output: translations on success, error otherwise.
type Response struct {
	Translations []string `json:"translations,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Handler adapts Lambda invocations onto the translation service.
type Handler struct {
	translator TextTranslator
	logger     *logrus.Logger
}

// New creates a Handler.
func New(translator TextTranslator, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{translator: translator, logger: logger}
}

// Handle processes a translation request. Validation problems and unexpected
// failures are reported in Response.Error, never as an invocation error.
func (h *Handler) Handle(ctx context.Context, req service.TranslateRequest) (resp *Response, err error) {
	if verr := req.Validate(); verr != nil {
		return &Response{Error: verr.Error()}, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.WithFields(logrus.Fields{
				"panic": rec,
			}).Error("Translation request panicked")
			resp, err = &Response{Error: "Translation failed"}, nil
		}
	}()

	translations := h.translator.TranslateTexts(ctx, req.Texts, req.TargetLang, req.ForceTranslate)
	return &Response{Translations: translations}, nil
}
