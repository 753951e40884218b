// Package httpapi exposes the model catalog, downloads, chat streaming and
// settings over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pocketllm/internal/catalog"
	"pocketllm/internal/chat"
	"pocketllm/internal/config"
	"pocketllm/internal/download"
	"pocketllm/internal/registry"
	"pocketllm/internal/session"
	"pocketllm/internal/store"
	"pocketllm/pkg/types"
)

// ChatService is the slice of the chat manager the handlers rely on.
type ChatService interface {
	Generate(ctx context.Context, mdl types.Model, text string, onToken func(string) error) (string, error)
	Reset(ctx context.Context) error
	LoadedModel() string
	WindowState() (size, sinceReset int)
}

// Deps wires the HTTP layer to the rest of the service.
type Deps struct {
	Orchestrator *download.Orchestrator
	Chat         ChatService
	Resolver     *catalog.Resolver
	Sessions     *session.Store
	Settings     *store.Settings
	Manifest     *store.Manifest
	Library      *registry.Library
	KV           store.KV
	CatalogCfg   config.CatalogConfig
}

// Server holds handler state.
type Server struct {
	deps    Deps
	started time.Time
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps, started: time.Now()}
}

// NewMux builds the router.
func NewMux(s *Server) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", s.handleListModels)
	r.Post("/models/refresh", s.handleRefreshModels)
	r.Delete("/models", s.handleClearModels)
	r.Delete("/models/{id}", s.handleDeleteModel)

	r.Post("/downloads", s.handleStartDownloads)
	r.Get("/downloads/progress", s.handleDownloadProgress)
	r.Post("/downloads/{id}/pause", s.handlePauseDownload)
	r.Post("/downloads/{id}/resume", s.handleResumeDownload)
	r.Delete("/downloads/{id}", s.handleCancelDownload)

	r.Post("/chat", s.handleChat)
	r.Post("/chat/reset", s.handleChatReset)

	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handleSaveSettings)

	r.Get("/status", s.handleStatus)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ready(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// ready reports whether the persistence layer answers.
func (s *Server) ready(ctx context.Context) bool {
	if s.deps.KV == nil {
		return false
	}
	_, _, err := s.deps.KV.Get(ctx, "downloaded_models")
	return err == nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleListModels returns the current model list with downloaded ids from
// the manifest, falling back to the builtin catalog when nothing has been
// resolved yet.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.deps.Orchestrator.Available()
	if len(models) == 0 {
		models = catalog.Fallback()
		s.deps.Orchestrator.SetAvailable(models)
	}
	writeJSON(w, types.ModelsResponse{Models: models})
}

// handleRefreshModels re-queries the remote index and replaces the list.
func (s *Server) handleRefreshModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	cfg := s.deps.CatalogCfg
	models := s.deps.Resolver.Search(ctx, catalog.SearchOptions{
		MaxSizeBytes: cfg.MaxSizeBytes,
		MinDownloads: cfg.MinDownloads,
		Limit:        cfg.Limit,
	})
	s.deps.Orchestrator.SetAvailable(models)
	writeJSON(w, types.ModelsResponse{Models: models})
}

// handleDeleteModel removes the artifact and the manifest entry.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mdl, ok := s.findModel(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not found: "+id)
		return
	}
	if err := s.deps.Library.Delete(mdl.Filename); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Manifest.Remove(r.Context(), id); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearModels wipes every artifact and empties the manifest.
func (s *Server) handleClearModels(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.ClearAll(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, id := range s.deps.Manifest.IDs(r.Context()) {
		if err := s.deps.Manifest.Remove(r.Context(), id); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartDownloads(w http.ResponseWriter, r *http.Request) {
	var req types.DownloadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Models) == 0 {
		writeJSONError(w, http.StatusBadRequest, "models is required")
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	downloaded, failed := s.deps.Orchestrator.StartTransfers(ctx, req.Models)
	writeJSON(w, types.DownloadResponse{Downloaded: downloaded, Failed: failed})
}

func (s *Server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.ProgressResponse{
		Progress:   s.deps.Orchestrator.ProgressAll(),
		Downloaded: s.deps.Manifest.IDs(r.Context()),
	})
}

func (s *Server) handlePauseDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Orchestrator.Progress(id); !ok {
		writeJSONError(w, http.StatusNotFound, "no download for model: "+id)
		return
	}
	s.deps.Orchestrator.Pause(id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResumeDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Orchestrator.Progress(id); !ok {
		writeJSONError(w, http.StatusNotFound, "no download for model: "+id)
		return
	}
	s.deps.Orchestrator.Resume(id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Orchestrator.Progress(id); !ok {
		writeJSONError(w, http.StatusNotFound, "no download for model: "+id)
		return
	}
	s.deps.Orchestrator.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.GetAll(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	writeJSON(w, types.SessionsResponse{Sessions: sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, found, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Settings.Get(r.Context()))
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.AppSettings
	if !decodeJSONBody(w, r, &settings) {
		return
	}
	s.deps.Settings.Save(r.Context(), settings)
	writeJSON(w, settings)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	windowSize, sinceReset := s.deps.Chat.WindowState()
	ids := s.deps.Manifest.IDs(r.Context())
	var filenames []string
	for _, id := range ids {
		if mdl, ok := s.findModel(id); ok {
			filenames = append(filenames, mdl.Filename)
		}
	}
	now := time.Now()
	writeJSON(w, types.StatusResponse{
		LoadedModel:        s.deps.Chat.LoadedModel(),
		WindowSize:         windowSize,
		MessagesSinceReset: sinceReset,
		ActiveDownloads:    s.deps.Orchestrator.ActiveCount(),
		DownloadedBytes:    s.deps.Library.TotalSize(filenames),
		UptimeSeconds:      int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:     now.Unix(),
	})
}

// findModel resolves id against the catalog list, then against artifacts
// already on disk.
func (s *Server) findModel(id string) (types.Model, bool) {
	for _, mdl := range s.deps.Orchestrator.Available() {
		if mdl.ID == id {
			return mdl, true
		}
	}
	if local, err := s.deps.Library.ScanLocal(); err == nil {
		for _, mdl := range local {
			if mdl.ID == id {
				return mdl, true
			}
		}
	}
	return types.Model{}, false
}

// mapChatError translates manager errors to HTTP status codes.
func mapChatError(err error) int {
	switch {
	case chat.IsModelNotAvailable(err):
		return http.StatusNotFound
	case chat.IsTooBusy(err):
		return http.StatusTooManyRequests
	case chat.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
