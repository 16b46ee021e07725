// Package server exposes the flyer pipeline and the survey chat over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Bens368/IGIA/internal/cache"
	"github.com/Bens368/IGIA/internal/config"
	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/storage"
	"github.com/Bens368/IGIA/internal/survey"
)

// Models is everything the handlers ask of the model service.
type Models interface {
	domain.TableModel
	domain.TextModel
	domain.ChatStreamer
}

// ModelFactory builds a model client for one bearer credential.
type ModelFactory func(apiKey string) (Models, error)

// RasterizerFactory builds a rasterizer writing into outputDir.
type RasterizerFactory func(outputDir string) (domain.Rasterizer, error)

// Deps holds the collaborators shared by every request.
type Deps struct {
	Config        *config.Config
	Logger        *observability.Logger
	NewModels     ModelFactory
	NewRasterizer RasterizerFactory
	Cache         *cache.TableCache      // nil disables extraction caching
	Runs          *storage.RunRepository // nil disables run history
	Sessions      *survey.Store
	Instructions  string
}

// NewRouter creates the API router with all routes configured.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}
	if deps.Sessions == nil {
		deps.Sessions = survey.NewStore(0, 0)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"igia"}`))
	})

	runs := NewRunHandler(deps)
	chat := NewSurveyHandler(deps)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", runs.Create)
			r.Get("/", runs.List)
			r.Get("/{runID}", runs.Get)
		})

		r.Route("/survey/sessions", func(r chi.Router) {
			r.Post("/", chat.Create)
			r.Get("/{sessionID}", chat.Get)
			r.Post("/{sessionID}/messages", chat.Send)
		})
	})

	return r
}

func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsType(err, domain.ErrorTypeInput), domain.IsType(err, domain.ErrorTypeValidation):
		return http.StatusBadRequest
	case domain.IsType(err, domain.ErrorTypeExtraction), domain.IsType(err, domain.ErrorTypeSchema):
		return http.StatusUnprocessableEntity
	case domain.IsType(err, domain.ErrorTypeAPI):
		return http.StatusBadGateway
	case domain.IsType(err, domain.ErrorTypeConfig):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
