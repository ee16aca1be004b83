// Package api serves the library operations as a JSON REST API for browser
// clients. The caller's identity comes from the X-User-ID header.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/anatolykoptev/go_vidmark/internal/library"
)

const (
	// UserHeader carries the caller's user id.
	UserHeader = "X-User-ID"

	bodyLimit       = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Config configures the REST API.
type Config struct {
	Port           string
	RateLimit      float64 // requests/second per user; <= 0 disables limiting
	RateBurst      int
	AllowedOrigins []string
}

// Server is the REST API over a library.Service.
type Server struct {
	svc     *library.Service
	cfg     Config
	limiter *userLimiter
}

// New returns a Server for svc.
func New(svc *library.Service, cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		svc:     svc,
		cfg:     cfg,
		limiter: newUserLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			req.Body = http.MaxBytesReader(w, req.Body, bodyLimit)
			next.ServeHTTP(w, req)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.middleware(clientKey))
		r.Get("/api/embed", s.handleEmbed)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Use(s.limiter.middleware(userKey))

		r.Get("/api/videos", s.handleListVideos)
		r.Post("/api/videos", s.handleCreateVideo)
		r.Patch("/api/videos/{videoID}/favorite", s.handleSetFavorite)
		r.Delete("/api/videos/{videoID}", s.handleDeleteVideo)

		r.Get("/api/lists", s.handleListLists)
		r.Post("/api/lists", s.handleCreateList)
		r.Route("/api/lists/{listID}", func(r chi.Router) {
			r.Get("/", s.handleGetList)
			r.Patch("/", s.handleRenameList)
			r.Delete("/", s.handleDeleteList)
			r.Get("/videos", s.handleListVideosOfList)
			r.Put("/videos/{videoID}", s.handleAddToList)
			r.Delete("/videos/{videoID}", s.handleRemoveFromList)
		})

		r.Get("/api/integrity", s.handleIntegrity)
	})
	return r
}

// Run serves the API until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("rest api listening", slog.String("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("rest api shut down")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}
