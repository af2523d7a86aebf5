/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/daisho-wakazashi/keybook/internal/api"
	"github.com/daisho-wakazashi/keybook/internal/config"
	"github.com/daisho-wakazashi/keybook/internal/db"
	"github.com/daisho-wakazashi/keybook/internal/events"
	"github.com/daisho-wakazashi/keybook/internal/telemetry"
	"github.com/daisho-wakazashi/keybook/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	services *Services
	tracer   *telemetry.TracerProvider
	api      *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires every dependency and returns a server ready to listen.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("keybook-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		metricsRouter := chi.NewRouter()
		metricsRouter.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "keybook",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error { return tracer.Shutdown(context.Background()) })

	services, err := OpenServices(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.services = services
	s.DeferClose(services.Close)

	s.api = api.New(
		services.DB,
		[]byte(s.cfg.JWTSigningKey),
		s.cfg.TokenTTL,
		services.Users,
		services.Availability,
		services.Booking,
		s.logger,
	)

	s.logger.Info().
		Str("db_backend", string(s.cfg.DBBackend)).
		Str("lock_backend", string(s.cfg.LockBackend)).
		Str("event_bus", string(s.cfg.EventBus)).
		Str("timezone", s.cfg.Timezone).
		Msg("dependencies initialized")

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Router exposes the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runConnectionMetrics(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runEventLog(ctx)
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) runConnectionMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	db.UpdateConnectionMetrics(s.services.DB)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdateConnectionMetrics(s.services.DB)
		}
	}
}

// runEventLog writes rejected instants and claims to the log so operators can
// follow them without an external sink.
func (s *Server) runEventLog(ctx context.Context) {
	bus := s.services.Bus
	invalid := bus.Subscribe(events.EventInvalidDatetime)
	claimed := bus.Subscribe(events.EventBlockClaimed)
	defer bus.Unsubscribe(events.EventInvalidDatetime, invalid)
	defer bus.Unsubscribe(events.EventBlockClaimed, claimed)

	logger := s.logger.With().Str("component", "event_log").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-invalid:
			if !ok {
				return
			}
			logger.Warn().Fields(map[string]any(payload)).Msg(string(events.EventInvalidDatetime))
		case payload, ok := <-claimed:
			if !ok {
				return
			}
			logger.Info().Fields(map[string]any(payload)).Msg(string(events.EventBlockClaimed))
		}
	}
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}
