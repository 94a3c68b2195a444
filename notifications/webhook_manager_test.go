package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/database"
	"localsearch-forecast/engine"
)

type hookServer struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	auth     []string
	status   int
}

func newHookServer(t *testing.T, status int) (*hookServer, *httptest.Server) {
	t.Helper()
	hs := &hookServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		hs.mu.Lock()
		hs.payloads = append(hs.payloads, p)
		hs.auth = append(hs.auth, r.Header.Get("Authorization"))
		hs.mu.Unlock()
		w.WriteHeader(hs.status)
	}))
	t.Cleanup(srv.Close)
	return hs, srv
}

func (hs *hookServer) received() []WebhookPayload {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return append([]WebhookPayload(nil), hs.payloads...)
}

func newTestManager(t *testing.T, hooks ...*database.Webhook) (*WebhookManager, *database.WebhookRepository) {
	t.Helper()
	repo := database.NewWebhookRepository(database.TestDB(t))
	for _, h := range hooks {
		require.NoError(t, repo.SaveWebhook(context.Background(), h))
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return NewWebhookManager(repo, nil, 0, logrus.NewEntry(l)), repo
}

func riskyPrediction(decline float64) engine.SearchPrediction {
	return engine.SearchPrediction{
		LocationKey:       "berlin-mitte",
		Keyword:           "solaranlage berlin",
		CurrentPosition:   8,
		PredictedPosition: 9.4,
		Confidence:        0.82,
		Probability:       engine.Probability{Improve: 0.2, Maintain: 1 - 0.2 - decline, Decline: decline},
		Recommendations:   []engine.Recommendation{{Factor: engine.FactorReviews}},
		ModelID:           "ranking-v1",
		CreatedAt:         time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestNotifyPredictionAboveThreshold(t *testing.T) {
	hs, srv := newHookServer(t, http.StatusOK)
	hook := &database.Webhook{Name: "ops", URL: srv.URL, IsActive: true, RetryCount: 1, AuthType: "BEARER", AuthValue: "tok"}
	wm, repo := newTestManager(t, hook)

	wm.NotifyPrediction(context.Background(), riskyPrediction(0.4))
	wm.Wait()

	got := hs.received()
	require.Len(t, got, 1)
	assert.Equal(t, EventDeclineRisk, got[0].Event)
	assert.Equal(t, "solaranlage berlin", got[0].Keyword)
	assert.Equal(t, 0.4, got[0].DeclineProbability)
	assert.Contains(t, got[0].Message, "#8.0 → #9.4")
	assert.Contains(t, got[0].Message, "40.0%")
	assert.Equal(t, "Bearer tok", hs.auth[0])

	stored, err := repo.GetWebhookByID(context.Background(), hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalSent)

	logs, err := repo.GetWebhookLogs(context.Background(), hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, database.DeliverySuccess, logs[0].Status)
	require.NotNil(t, logs[0].HTTPStatusCode)
	assert.Equal(t, http.StatusOK, *logs[0].HTTPStatusCode)
}

func TestNotifyPredictionBelowThreshold(t *testing.T) {
	hs, srv := newHookServer(t, http.StatusOK)
	strict := 0.6
	wm, _ := newTestManager(t,
		&database.Webhook{Name: "default", URL: srv.URL, IsActive: true, RetryCount: 1},
		&database.Webhook{Name: "strict", URL: srv.URL, IsActive: true, RetryCount: 1, MinDecline: &strict},
	)

	wm.NotifyPrediction(context.Background(), riskyPrediction(0.2))
	wm.Wait()
	assert.Empty(t, hs.received())

	// default threshold 0.35 passes, the strict hook does not
	wm.NotifyPrediction(context.Background(), riskyPrediction(0.5))
	wm.Wait()
	assert.Len(t, hs.received(), 1)
}

func TestNotifyTrendOnlyNegative(t *testing.T) {
	hs, srv := newHookServer(t, http.StatusOK)
	wm, _ := newTestManager(t, &database.Webhook{Name: "ops", URL: srv.URL, IsActive: true, RetryCount: 1})

	trend := engine.LocalSearchTrend{
		ID: "t-1", LocationKey: "berlin-mitte", TrendType: engine.TrendCompetitive, Impact: engine.ImpactPositive,
		Strength: 0.6, Duration: "3 months", AffectedKeywords: []string{"solaranlage berlin"},
	}
	wm.NotifyTrend(context.Background(), trend)
	wm.Wait()
	assert.Empty(t, hs.received())

	trend.Impact = engine.ImpactNegative
	wm.NotifyTrend(context.Background(), trend)
	wm.Wait()

	got := hs.received()
	require.Len(t, got, 1)
	assert.Equal(t, EventNegativeTrend, got[0].Event)
	assert.Equal(t, "t-1", got[0].TrendID)
	assert.Contains(t, got[0].Message, "60.0%")
}

func TestShouldSendFilters(t *testing.T) {
	payload := WebhookPayload{Event: EventNegativeTrend, LocationKey: "berlin-mitte"}

	assert.True(t, shouldSend(database.Webhook{}, payload))
	assert.True(t, shouldSend(database.Webhook{Events: `["negative_trend"]`, LocationKeys: "null"}, payload))
	assert.False(t, shouldSend(database.Webhook{Events: "decline_risk"}, payload))
	assert.False(t, shouldSend(database.Webhook{LocationKeys: "hamburg-altona"}, payload))
	assert.True(t, shouldSend(database.Webhook{Events: "decline_risk, negative_trend", LocationKeys: `["berlin-mitte","hamburg"]`}, payload))

	// filters compare whole entries
	assert.False(t, shouldSend(database.Webhook{LocationKeys: "berlin-mitte"}, WebhookPayload{Event: EventNegativeTrend, LocationKey: "berlin"}))
	assert.False(t, shouldSend(database.Webhook{LocationKeys: `["berlin-mitte"]`}, WebhookPayload{Event: EventNegativeTrend, LocationKey: "berlin"}))
	assert.False(t, shouldSend(database.Webhook{Events: `["negative_trend"]`}, WebhookPayload{Event: "trend", LocationKey: "berlin"}))
}

func TestFailedDeliveryIsLogged(t *testing.T) {
	hs, srv := newHookServer(t, http.StatusInternalServerError)
	hook := &database.Webhook{Name: "ops", URL: srv.URL, IsActive: true, RetryCount: 2}
	wm, repo := newTestManager(t, hook)

	wm.NotifyPrediction(context.Background(), riskyPrediction(0.9))
	wm.Wait()
	assert.Len(t, hs.received(), 2)

	stored, err := repo.GetWebhookByID(context.Background(), hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalFailed)
	assert.Contains(t, stored.LastError, "500")
}
