package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
)

// Deps are the services the HTTP layer fronts. Progress is optional; without
// it the websocket endpoint polls Downloads.
type Deps struct {
	Downloads DownloadService
	Edits     EditService
	Progress  ProgressSubscriber
}

// Server owns the router and the http.Server lifecycle.
type Server struct {
	cfg     *config.Config
	api     *APIHandler
	limiter *rate.Limiter
	handler http.Handler
}

// New builds the router for deps.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		api:     NewAPIHandler(deps.Downloads, deps.Edits, deps.Progress),
		limiter: newLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
	}
	s.handler = corsMiddleware(loggingMiddleware(s.routes()))
	return s
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	h := s.api

	// downloads
	handle(router, "/api/download", s.rateLimit(h.SubmitDownloadHandler), http.MethodPost)
	handle(router, "/api/download/{id}", h.GetDownloadHandler, http.MethodGet)
	handle(router, "/api/download/{id}/file", h.DownloadFileHandler, http.MethodGet, http.MethodHead)
	handle(router, "/api/download/{id}/ws", h.ProgressWSHandler, http.MethodGet)
	handle(router, "/api/downloads", h.ListDownloadsHandler, http.MethodGet)

	// edits
	handle(router, "/api/edit", s.rateLimit(h.CreateEditHandler), http.MethodPost)
	handle(router, "/api/edit/{id}", h.GetEditHandler, http.MethodGet)
	handle(router, "/api/edit/{id}/file", h.EditFileHandler, http.MethodGet, http.MethodHead)

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	return router
}

// handle registers path with and without a trailing slash.
func handle(r *mux.Router, path string, h http.HandlerFunc, methods ...string) {
	r.HandleFunc(path, h).Methods(methods...)
	r.HandleFunc(path+"/", h).Methods(methods...)
}

// Run serves on cfg.Server.Port until ctx is cancelled, then shuts down
// gracefully within cfg.Server.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        ":" + s.cfg.Server.Port,
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// Edits respond only after ffmpeg finishes, so there is no write deadline.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", logger.ErrorField(err))
			return err
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
