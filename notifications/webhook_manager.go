// Package notifications delivers webhook alerts for predictions at risk of declining and for
// negative local search trends.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/cache"
	"localsearch-forecast/database"
	"localsearch-forecast/engine"
	"localsearch-forecast/helpers"
	"localsearch-forecast/metrics"
)

// Webhook event names
const (
	EventDeclineRisk   = "decline_risk"
	EventNegativeTrend = "negative_trend"
)

const activeWebhooksCacheKey = "active_webhooks"

// DefaultDeclineThreshold is the decline probability that triggers an alert when the
// webhook does not set its own
const DefaultDeclineThreshold = 0.35

// WebhookManager handles webhook notifications
type WebhookManager struct {
	repo             *database.WebhookRepository
	redis            *cache.RedisClient
	client           *http.Client
	declineThreshold float64
	logger           *logrus.Entry
	wg               sync.WaitGroup
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	Event              string                 `json:"event"`
	LocationKey        string                 `json:"location_key"`
	Keyword            string                 `json:"keyword,omitempty"`
	DetectedAt         time.Time              `json:"detected_at"`
	CurrentPosition    float64                `json:"current_position,omitempty"`
	PredictedPosition  float64                `json:"predicted_position,omitempty"`
	DeclineProbability float64                `json:"decline_probability,omitempty"`
	Confidence         float64                `json:"confidence,omitempty"`
	TrendID            string                 `json:"trend_id,omitempty"`
	TrendType          string                 `json:"trend_type,omitempty"`
	Strength           float64                `json:"strength,omitempty"`
	Message            string                 `json:"message"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// NewWebhookManager creates a new webhook manager. A threshold <= 0 uses DefaultDeclineThreshold.
func NewWebhookManager(repo *database.WebhookRepository, redis *cache.RedisClient, declineThreshold float64, logger *logrus.Entry) *WebhookManager {
	if declineThreshold <= 0 {
		declineThreshold = DefaultDeclineThreshold
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebhookManager{
		repo:             repo,
		redis:            redis,
		client:           &http.Client{Timeout: 10 * time.Second},
		declineThreshold: declineThreshold,
		logger:           logger.WithField("component", "webhooks"),
	}
}

// NotifyPrediction alerts webhooks when the decline probability reaches their threshold
func (wm *WebhookManager) NotifyPrediction(ctx context.Context, p engine.SearchPrediction) {
	payload := wm.CreatePredictionPayload(p)
	wm.dispatch(ctx, payload, func(hook database.Webhook) bool {
		threshold := wm.declineThreshold
		if hook.MinDecline != nil {
			threshold = *hook.MinDecline
		}
		return p.Probability.Decline >= threshold
	})
}

// NotifyTrend alerts webhooks about negative trends
func (wm *WebhookManager) NotifyTrend(ctx context.Context, t engine.LocalSearchTrend) {
	if t.Impact != engine.ImpactNegative {
		return
	}
	wm.dispatch(ctx, wm.CreateTrendPayload(t), func(database.Webhook) bool { return true })
}

// Wait blocks until in-flight deliveries finish
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

func (wm *WebhookManager) dispatch(ctx context.Context, payload WebhookPayload, threshold func(database.Webhook) bool) {
	webhooks, err := wm.getActiveWebhooks(ctx)
	if err != nil {
		wm.logger.WithError(err).Warn("⚠️  Failed to load webhooks")
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		wm.logger.WithError(err).Warn("⚠️  Failed to marshal webhook payload")
		return
	}

	for _, hook := range webhooks {
		if !shouldSend(hook, payload) || !threshold(hook) {
			continue
		}
		wm.wg.Add(1)
		go func(hook database.Webhook) {
			defer wm.wg.Done()
			wm.deliverWebhook(hook, payload, payloadBytes)
		}(hook)
	}
}

func (wm *WebhookManager) getActiveWebhooks(ctx context.Context) ([]database.Webhook, error) {
	var cached []database.Webhook
	if err := wm.redis.Get(ctx, activeWebhooksCacheKey, &cached); err == nil {
		return cached, nil
	}

	webhooks, err := wm.repo.GetActiveWebhooks(ctx)
	if err != nil {
		return nil, err
	}

	_ = wm.redis.Set(ctx, activeWebhooksCacheKey, webhooks, time.Hour)
	return webhooks, nil
}

// CreatePredictionPayload builds the decline risk payload for a prediction
func (wm *WebhookManager) CreatePredictionPayload(p engine.SearchPrediction) WebhookPayload {
	// Example: "📉 DECLINE RISK! berlin-mitte "solaranlage berlin" | Position: #8.0 → #9.4 | Decline: 41.2% | Confidence: 82.0% | Traffic: 1,250/mo"
	message := fmt.Sprintf("📉 DECLINE RISK! %s %q | Position: %s → %s | Decline: %s | Confidence: %s | Traffic: %s/mo",
		p.LocationKey,
		p.Keyword,
		helpers.FormatPosition(p.CurrentPosition),
		helpers.FormatPosition(p.PredictedPosition),
		helpers.FormatPercent(p.Probability.Decline),
		helpers.FormatPercent(p.Confidence),
		helpers.FormatCount(p.CurrentTraffic),
	)

	weak := make([]string, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		weak = append(weak, r.Factor)
	}

	return WebhookPayload{
		Event:              EventDeclineRisk,
		LocationKey:        p.LocationKey,
		Keyword:            p.Keyword,
		DetectedAt:         p.CreatedAt,
		CurrentPosition:    p.CurrentPosition,
		PredictedPosition:  p.PredictedPosition,
		DeclineProbability: p.Probability.Decline,
		Confidence:         p.Confidence,
		Message:            message,
		Metadata: map[string]interface{}{
			"model_id":         p.ModelID,
			"trend_adjustment": p.TrendAdjustment,
			"weak_factors":     weak,
		},
	}
}

// CreateTrendPayload builds the negative trend payload
func (wm *WebhookManager) CreateTrendPayload(t engine.LocalSearchTrend) WebhookPayload {
	message := fmt.Sprintf("⚠️ NEGATIVE TREND! %s %s | Strength: %s | Duration: %s | Keywords: %s",
		t.LocationKey,
		t.TrendType,
		helpers.FormatPercent(t.Strength),
		t.Duration,
		strings.Join(t.AffectedKeywords, ", "),
	)

	return WebhookPayload{
		Event:       EventNegativeTrend,
		LocationKey: t.LocationKey,
		DetectedAt:  t.DetectedAt,
		TrendID:     t.ID,
		TrendType:   string(t.TrendType),
		Strength:    t.Strength,
		Message:     message,
		Metadata: map[string]interface{}{
			"affected_keywords": t.AffectedKeywords,
			"expires_at":        t.ExpiresAt,
		},
	}
}

func shouldSend(hook database.Webhook, payload WebhookPayload) bool {
	if events := filterValues(hook.Events); len(events) > 0 && !containsValue(events, payload.Event) {
		return false
	}
	if locations := filterValues(hook.LocationKeys); len(locations) > 0 && !containsValue(locations, payload.LocationKey) {
		return false
	}
	return true
}

// filterValues parses a webhook filter stored as a JSON array or a comma separated list.
// An empty result means no filter.
func filterValues(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	var values []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			values = strings.Split(strings.Trim(raw, "[]"), ",")
		}
	} else {
		values = strings.Split(raw, ",")
	}

	out := values[:0]
	for _, v := range values {
		if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func (wm *WebhookManager) deliverWebhook(hook database.Webhook, payload WebhookPayload, body []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var (
		statusCode int
		lastErr    error
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		wm.logger.WithFields(logrus.Fields{"url": hook.URL, "attempt": attempt, "max": maxRetries}).
			Debug("🔹 Sending webhook")

		statusCode, lastErr = wm.send(hook, method, body, timeout)
		if lastErr == nil {
			metrics.RecordWebhookDelivery(true)
			wm.logDelivery(hook.ID, payload, database.DeliverySuccess, statusCode, "", attempt)
			return
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	metrics.RecordWebhookDelivery(false)
	wm.logger.WithError(lastErr).WithField("url", hook.URL).Warn("⚠️  Webhook delivery failed")
	wm.logDelivery(hook.ID, payload, database.DeliveryFailed, statusCode, lastErr.Error(), maxRetries)
}

func (wm *WebhookManager) send(hook database.Webhook, method string, body []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LocalSearch-Forecast-Alert/1.0")

	if hook.AuthType == "BEARER" {
		req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
	} else if hook.AuthHeader != "" {
		req.Header.Set(hook.AuthHeader, hook.AuthValue)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (wm *WebhookManager) logDelivery(webhookID int, payload WebhookPayload, status string, code int, errMsg string, attempt int) {
	entry := &database.WebhookLog{
		WebhookID:    webhookID,
		Event:        payload.Event,
		LocationKey:  payload.LocationKey,
		TriggeredAt:  time.Now().UTC(),
		Status:       status,
		ErrorMessage: errMsg,
		RetryAttempt: attempt,
	}
	if code != 0 {
		entry.HTTPStatusCode = &code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wm.repo.SaveWebhookLog(ctx, entry); err != nil {
		wm.logger.WithError(err).Warn("⚠️  Failed to save webhook log")
	}
}

// RefreshCache drops the cached webhook list
func (wm *WebhookManager) RefreshCache(ctx context.Context) {
	if err := wm.redis.Delete(ctx, activeWebhooksCacheKey); err == nil {
		wm.logger.Info("🔄 Webhook cache invalidated")
	}
}
