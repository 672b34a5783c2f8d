// Package server exposes the answer pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/app"
	"github.com/hyperifyio/goanswer/internal/metrics"
	"github.com/hyperifyio/goanswer/internal/search"
	"github.com/hyperifyio/goanswer/internal/synth"
	"github.com/hyperifyio/goanswer/internal/validate"
)

// Pipeline is the part of *app.App the handlers use.
type Pipeline interface {
	Sources(ctx context.Context, query, model string) ([]synth.Source, error)
	Answer(ctx context.Context, prompt, model, apiKey string) (*synth.AnswerStream, error)
	Ask(ctx context.Context, query, model, apiKey string) (*app.Prepared, error)
}

type handler struct {
	p Pipeline
}

// New returns the API router.
func New(p Pipeline) http.Handler {
	h := &handler{p: p}
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(api chi.Router) {
		api.With(instrument("sources")).Post("/sources", h.sources)
		api.With(instrument("answer")).Post("/answer", h.answer)
		api.With(instrument("ask")).Post("/ask", h.ask)
		api.Get("/answer/ws", h.answerWS)
	})
	return r
}

type ctxKey int

const loggerKey ctxKey = iota

// requestID tags each request with an X-Request-ID and a request-scoped
// logger. A client supplied ID is kept.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		logger := log.With().Str("req_id", id).Logger()
		ctx := context.WithValue(r.Context(), loggerKey, &logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok {
		return l
	}
	return &log.Logger
}

func instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			// deferred so aborted streams are counted too
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
				metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
				loggerFrom(r.Context()).Info().Str("route", route).Int("status", status).Dur("took", time.Since(started)).Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": app.BuildVersion, "commit": app.BuildCommit})
}

type sourcesRequest struct {
	Query string `json:"query"`
	Model string `json:"model"`
}

type sourcesResponse struct {
	Sources []synth.Source `json:"sources"`
}

func (h *handler) sources(w http.ResponseWriter, r *http.Request) {
	var req sourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sourcesResponse{Sources: []synth.Source{}})
		return
	}
	lg := loggerFrom(r.Context())
	sources, err := h.p.Sources(r.Context(), req.Query, req.Model)
	if err != nil {
		status := statusFor(err)
		lg.Error().Err(err).Str("query", req.Query).Msg("sources failed")
		writeJSON(w, status, sourcesResponse{Sources: []synth.Source{}})
		return
	}
	if sources == nil {
		sources = []synth.Source{}
	}
	lg.Info().Str("query", req.Query).Int("count", len(sources)).Msg("sources")
	writeJSON(w, http.StatusOK, sourcesResponse{Sources: sources})
}

type answerRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}

// answer streams the completion as text/plain, flushing after each chunk.
// Failures before the first byte map to a status code. A failure after it
// aborts the connection without the final chunk, so the client's read of
// the body fails instead of ending cleanly.
func (h *handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error", http.StatusBadRequest)
		return
	}
	lg := loggerFrom(r.Context())
	stream, err := h.p.Answer(r.Context(), req.Prompt, req.Model, req.APIKey)
	if err != nil {
		lg.Error().Err(err).Str("model", req.Model).Msg("answer setup failed")
		http.Error(w, "Error", statusFor(err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			lg.Warn().Err(err).Msg("answer stream ended with error")
			panic(http.ErrAbortHandler)
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type askRequest struct {
	Query  string `json:"query"`
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}

type askLine struct {
	Sources []synth.Source `json:"sources,omitempty"`
	Chunk   string         `json:"chunk,omitempty"`
	Done    bool           `json:"done,omitempty"`
	Error   string         `json:"error,omitempty"`

	Citations *validate.Citations `json:"citations,omitempty"`
}

// ask runs both phases over one NDJSON response: a sources line, chunk
// lines and one terminal line.
func (h *handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, askLine{Error: "invalid json"})
		return
	}
	lg := loggerFrom(r.Context())
	prepared, err := h.p.Ask(r.Context(), req.Query, req.Model, req.APIKey)
	if err != nil {
		lg.Error().Err(err).Str("query", req.Query).Msg("ask failed")
		writeJSON(w, statusFor(err), askLine{Error: publicError(err)})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	emit := func(line any) bool {
		if err := enc.Encode(line); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	sources := prepared.Sources
	if sources == nil {
		sources = []synth.Source{}
	}
	// the sources line is written even when the list is empty
	if !emit(sourcesResponse{Sources: sources}) {
		return
	}
	stream, err := prepared.Stream(r.Context())
	if err != nil {
		lg.Error().Err(err).Msg("ask stream setup failed")
		emit(askLine{Error: publicError(err)})
		return
	}
	defer stream.Close()
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				cites := validate.CheckCitations(stream.Text(), len(sources))
				if !cites.OK() {
					lg.Warn().Str("citations", cites.Summary()).Msg("answer citations")
				}
				emit(askLine{Done: true, Citations: &cites})
			} else {
				lg.Warn().Err(err).Msg("ask stream ended with error")
				emit(askLine{Error: publicError(err)})
			}
			return
		}
		if !emit(askLine{Chunk: chunk}) {
			return
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidCredential),
		errors.Is(err, app.ErrEmptyQuery),
		errors.Is(err, synth.ErrPromptBuild):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicError names the failure kind without leaking upstream details.
func publicError(err error) string {
	switch {
	case errors.Is(err, app.ErrInvalidCredential):
		return "invalid api key"
	case errors.Is(err, app.ErrEmptyQuery):
		return "empty query"
	case errors.Is(err, synth.ErrPromptBuild):
		return "prompt too large"
	case errors.Is(err, search.ErrHarvest):
		return "search failed"
	case errors.Is(err, synth.ErrStreamDecode):
		return "stream decode failed"
	default:
		return "Error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
