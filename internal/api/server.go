// Package api exposes the survival predictor over HTTP: authenticated
// predictions, health reports, model metadata, Prometheus metrics and a
// websocket stream of served predictions.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/health"
	"titanic-predictor/internal/ml"
	"titanic-predictor/internal/storage"
	"titanic-predictor/internal/validation"
)

const maxBodyBytes = 16 << 10

// MetricsInterface defines metrics methods needed by the HTTP layer
type MetricsInterface interface {
	HTTPRequestInc(route string, code int)
	AuthFailureInc()
	RateLimitedInc()
	StreamClientsSet(n int)
}

// Deps are the collaborators a Server needs. Store, Metrics and Gatherer are
// optional.
type Deps struct {
	Settings  cfg.Settings
	Predictor *ml.Service
	Health    *health.Checker
	Validator *validation.Validator
	Auth      *auth.Service
	Store     *storage.Store
	Metrics   MetricsInterface
	Gatherer  prometheus.Gatherer
}

type Server struct {
	settings  cfg.Settings
	predictor *ml.Service
	health    *health.Checker
	validator *validation.Validator
	auth      *auth.Service
	store     *storage.Store
	metrics   MetricsInterface
	hub       *Hub

	router *mux.Router
	server *http.Server
}

func NewServer(d Deps) (*Server, error) {
	switch {
	case d.Predictor == nil:
		return nil, common.NewConfigurationError("api server requires a prediction service", nil)
	case d.Health == nil:
		return nil, common.NewConfigurationError("api server requires a health checker", nil)
	case d.Validator == nil:
		return nil, common.NewConfigurationError("api server requires an input validator", nil)
	case d.Auth == nil:
		return nil, common.NewConfigurationError("api server requires an auth service", nil)
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		settings:  d.Settings,
		predictor: d.Predictor,
		health:    d.Health,
		validator: d.Validator,
		auth:      d.Auth,
		store:     d.Store,
		metrics:   d.Metrics,
	}
	if d.Settings.StreamEnabled {
		s.hub = NewHub(d.Metrics)
	}
	s.router = s.routes(d.Gatherer)

	writeTimeout := 10 * time.Second
	if t := d.Settings.RequestTimeout + d.Settings.ModelLoadTimeout; t > writeTimeout {
		writeTimeout = t
	}
	s.server = &http.Server{
		Addr:         d.Settings.Addr(),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(gatherer prometheus.Gatherer) *mux.Router {
	rl := s.settings.RateLimits
	var (
		defaultLimit = s.rateLimit(newLimiter("default", rl.Default))
		predictLimit = s.rateLimit(newLimiter("predictions", rl.Predictions))
		healthLimit  = s.rateLimit(newLimiter("health", rl.Health))
	)

	r := mux.NewRouter()
	r.Use(requestID, s.accessLog, recoverer)
	r.NotFoundHandler = requestID(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = requestID(http.HandlerFunc(s.handleMethodNotAllowed))

	r.Handle("/predict", s.authenticate(predictLimit(http.HandlerFunc(s.handlePredict)))).Methods(http.MethodPost)
	r.Handle("/health", healthLimit(http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)
	r.Handle("/models/info", defaultLimit(http.HandlerFunc(s.handleModelsInfo))).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	if s.hub != nil {
		r.Handle("/ws/predictions", defaultLimit(s.hub)).Methods(http.MethodGet)
	}
	r.Handle("/", defaultLimit(http.HandlerFunc(s.handleRoot))).Methods(http.MethodGet)
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.hub != nil {
		s.hub.Start()
	}
	log.Info().
		Str("addr", s.server.Addr).
		Bool("stream", s.hub != nil).
		Msg("Starting prediction API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes stream clients, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.server.Shutdown(ctx)
}
