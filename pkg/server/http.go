package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dasmlab/komuniti/pkg/announce"
	"github.com/dasmlab/komuniti/pkg/service"
	"github.com/dasmlab/komuniti/pkg/translate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds a /translate request body.
const maxBodyBytes = 1 << 20

// Translator is the subset of the translation service the HTTP surface needs.
type Translator interface {
	TranslateTexts(ctx context.Context, texts []string, targetLang string, force bool) []string
	TranslateFieldsBatch(ctx context.Context, rows []map[string]any, targetLang string) []map[string]any
	TranslatorName() string
}

// Options configures an HTTPServer.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CacheDriver is reported by /health.
	CacheDriver string
	// Announcements enables GET /announcements when set.
	Announcements announce.Lister
	Logger        *logrus.Logger
}

// HTTPServer exposes the translation endpoint, announcement listing, health and metrics.
type HTTPServer struct {
	translator    Translator
	announcements announce.Lister
	cacheDriver   string
	languages     *translate.LanguageMapper
	logger        *logrus.Logger
	srv           *http.Server
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(translator Translator, opts Options) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	s := &HTTPServer{
		translator:    translator,
		announcements: opts.Announcements,
		cacheDriver:   opts.CacheDriver,
		languages:     translate.NewLanguageMapper(),
		logger:        opts.Logger,
	}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/translate", s.handleTranslate)
	if s.announcements != nil {
		mux.HandleFunc("/announcements", s.handleAnnouncements)
	}

	// Health check endpoint
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return withRequestID(withAccessLog(s.logger, mux))
}

// Serve accepts connections on lis until Shutdown is called.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.logger.WithFields(logrus.Fields{
		"addr":          lis.Addr().String(),
		"announcements": s.announcements != nil,
	}).Info("HTTP server listening")

	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleTranslate serves POST /translate.
func (s *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.WithFields(logrus.Fields{
				"request_id": RequestIDFrom(r.Context()),
				"panic":      rec,
			}).Error("Translation request panicked")
			writeError(w, http.StatusInternalServerError, "Translation failed")
		}
	}()

	var req service.TranslateRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: texts must be an array of strings")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	translations := s.translator.TranslateTexts(r.Context(), req.Texts, req.TargetLang, req.ForceTranslate)
	writeJSON(w, http.StatusOK, service.TranslateResponse{Translations: translations})
}

// handleAnnouncements serves GET /announcements?lang=xx&limit=n.
func (s *HTTPServer) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	lang := s.languages.ToBackendCode(r.URL.Query().Get("lang"))
	if lang == "" {
		lang = translate.LangEnglish
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := s.announcements.List(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFrom(r.Context()),
		}).Error("Failed to list announcements")
		writeError(w, http.StatusInternalServerError, "Failed to list announcements")
		return
	}
	if items == nil {
		items = []announce.Announcement{}
	}

	items = announce.Localize(r.Context(), s.translator, items, lang)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lang":          lang,
		"announcements": items,
	})
}

// handleHealth provides a health check endpoint.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"translator": s.translator.TranslatorName(),
		"cache":      s.cacheDriver,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, service.ErrorResponse{Error: msg})
}
