// Package server exposes the dashboard service and reading ingest over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/dashboard"
	"github.com/sells-group/biogas-cli/internal/ingest"
	"github.com/sells-group/biogas-cli/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP server.
type Options struct {
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server routes HTTP requests to the dashboard service and the ingest handler.
type Server struct {
	svc      *dashboard.Service
	ingest   *ingest.Handler
	validate *validator.Validate
	opts     Options
}

// New creates a Server.
func New(svc *dashboard.Service, h *ingest.Handler, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		svc:      svc,
		ingest:   h,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limitBody)

		r.Post("/simulate", s.handleSimulate)
		r.Post("/calculator", s.handleCalculate)
		r.Get("/production/current", s.handleCurrentProduction)

		r.Route("/stages", func(r chi.Router) {
			r.Get("/", s.handleListStages)
			r.Post("/", s.handleCreateStage)
			r.Post("/close-current", s.handleCloseCurrentStage)
			r.Get("/{id}/production", s.handleStageProduction)
		})

		r.Get("/stats", s.handleStats)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleListReports)
			r.Post("/", s.handleCreateReport)
			r.Post("/{id}/regenerate", s.handleRegenerateReport)
			r.Get("/{id}/download/{filetype}", s.handleDownloadReport)
		})

		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts/{id}/resolve", s.handleResolveAlert)

		r.Post("/readings", s.handleIngestReading)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", s.opts.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
