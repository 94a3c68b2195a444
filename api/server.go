package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"localsearch-forecast/database"
	"localsearch-forecast/engine"
	"localsearch-forecast/notifications"
	"localsearch-forecast/realtime"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server handles HTTP API requests
type Server struct {
	engine      *engine.Engine
	broker      *realtime.Broker
	webhookRepo *database.WebhookRepository
	webhookMq   *notifications.WebhookManager
	checks      map[string]HealthCheck
	logger      *logrus.Entry
}

// NewServer creates a new API server instance. broker may be nil when realtime is disabled.
func NewServer(eng *engine.Engine, broker *realtime.Broker, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		engine: eng,
		broker: broker,
		checks: make(map[string]HealthCheck),
		logger: logger.WithField("component", "api"),
	}
}

// SetWebhooks enables the webhook management routes
func (s *Server) SetWebhooks(repo *database.WebhookRepository, manager *notifications.WebhookManager) {
	s.webhookRepo = repo
	s.webhookMq = manager
}

// AddHealthCheck registers a dependency check reported by /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler builds the routed handler with middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Predictions
	mux.HandleFunc("POST /api/predictions", s.handlePredict)
	mux.HandleFunc("POST /api/predictions/batch", s.handleBatchPredict)
	mux.HandleFunc("GET /api/locations/{location}/predictions", s.handleListPredictions)
	mux.HandleFunc("GET /api/locations/{location}/predictions/{keyword}", s.handleGetPrediction)

	// Trends
	mux.HandleFunc("GET /api/locations/{location}/trends", s.handleAnalyzeTrends)
	mux.HandleFunc("POST /api/locations/{location}/trends", s.handleRecordTrend)

	// Forecast and scenarios
	mux.HandleFunc("GET /api/locations/{location}/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/locations/{location}/scenarios", s.handleListScenarios)
	mux.HandleFunc("POST /api/locations/{location}/scenarios", s.handleCreateScenario)
	mux.HandleFunc("GET /api/scenarios/{id}", s.handleGetScenario)

	// Models
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("PUT /api/models/{id}/active", s.handleSetModelActive)

	// Webhook Management Routes
	if s.webhookRepo != nil {
		mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
		mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
		mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
		mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)
		mux.HandleFunc("GET /api/config/webhooks/{id}/logs", s.handleGetWebhookLogs)
	}

	// Realtime
	if s.broker != nil {
		mux.Handle("GET /api/events", s.broker) // SSE Endpoint
		mux.HandleFunc("GET /api/ws", s.broker.ServeWS)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.corsMiddleware(s.metricsMiddleware(s.loggingMiddleware(mux)))
}

// Start serves the API until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		// no WriteTimeout: SSE and WebSocket responses stay open
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("🚀 API Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("🛑 Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	return nil
}
