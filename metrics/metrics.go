// Package metrics exposes Prometheus collectors for the prediction engine, the factor
// provider guard and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine Metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_predictions_total",
			Help: "Total number of prediction runs by outcome",
		},
		[]string{"result"}, // "ok", "not_found", "model_unavailable", "invalid", "timeout", "error"
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localsearch_prediction_duration_seconds",
			Help:    "Duration of a single prediction run including provider reads",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModelFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localsearch_model_fallbacks_total",
			Help: "Predictions computed with the default weighting because no ranking model was active",
		},
	)

	BatchKeysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_batch_keys_total",
			Help: "Keys processed by batch recomputation",
		},
		[]string{"status"}, // "completed", "failed"
	)

	TrendsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_trends_recorded_total",
			Help: "Trends recorded by impact",
		},
		[]string{"impact"},
	)

	TrendsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localsearch_trends_purged_total",
			Help: "Expired trends removed by the trend sweeper",
		},
	)

	// Factor Provider Metrics
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_provider_calls_total",
			Help: "Factor provider reads by result",
		},
		[]string{"result"}, // "ok", "missing", "timeout", "error"
	)

	ProviderRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_provider_rejected_total",
			Help: "Factor provider reads rejected by the guard before reaching the provider",
		},
		[]string{"reason"}, // "circuit_open", "rate_limited"
	)

	ProviderBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localsearch_provider_breaker_state",
			Help: "Circuit breaker state of the factor provider (0=closed, 1=half-open, 2=open)",
		},
	)

	// Delivery Metrics
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_webhook_deliveries_total",
			Help: "Webhook deliveries by status",
		},
		[]string{"status"}, // "success", "failed"
	)

	RealtimeClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "localsearch_realtime_clients",
			Help: "Connected realtime dashboard clients",
		},
		[]string{"transport"}, // "sse", "websocket"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localsearch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localsearch_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordPrediction records the outcome and duration of one prediction run
func RecordPrediction(result string, duration time.Duration) {
	PredictionsTotal.WithLabelValues(result).Inc()
	PredictionDuration.Observe(duration.Seconds())
}

// RecordModelFallback counts a prediction made with the default weighting
func RecordModelFallback() {
	ModelFallbacksTotal.Inc()
}

// RecordBatchKey counts one processed batch key
func RecordBatchKey(status string) {
	BatchKeysTotal.WithLabelValues(status).Inc()
}

// RecordTrend counts a recorded trend
func RecordTrend(impact string) {
	TrendsRecordedTotal.WithLabelValues(impact).Inc()
}

// RecordTrendsPurged adds the number of purged trends
func RecordTrendsPurged(n int64) {
	if n > 0 {
		TrendsPurgedTotal.Add(float64(n))
	}
}

// RecordProviderCall counts a factor provider read
func RecordProviderCall(result string) {
	ProviderCallsTotal.WithLabelValues(result).Inc()
}

// RecordProviderRejected counts a read rejected by the provider guard
func RecordProviderRejected(reason string) {
	ProviderRejectedTotal.WithLabelValues(reason).Inc()
}

// SetBreakerState records the circuit breaker state
func SetBreakerState(state int) {
	ProviderBreakerState.Set(float64(state))
}

// RecordWebhookDelivery counts a webhook delivery attempt
func RecordWebhookDelivery(success bool) {
	if success {
		WebhookDeliveriesTotal.WithLabelValues("success").Inc()
		return
	}
	WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
}

// TrackRealtimeClient adjusts the connected client gauge of a transport
func TrackRealtimeClient(transport string, connected bool) {
	if connected {
		RealtimeClients.WithLabelValues(transport).Inc()
	} else {
		RealtimeClients.WithLabelValues(transport).Dec()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
