package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/database"
	"localsearch-forecast/engine"
	"localsearch-forecast/provider"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server  *Server
	handler http.Handler
	engine  *engine.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	static, err := provider.NewStaticProvider([]provider.LocationFixture{
		{
			Key: "loc-1",
			Keywords: []provider.KeywordFixture{
				{
					Keyword:         "plumber",
					KeywordSnapshot: engine.KeywordSnapshot{Position: 12, MonthlyTraffic: 400, ConversionRate: 2.5},
					Factors: map[string]engine.Reading{
						engine.FactorReviews:        {CurrentValue: 3.5, TargetValue: 4.5},
						engine.FactorContentQuality: {CurrentValue: 60, TargetValue: 85},
						engine.FactorTechnicalSEO:   {CurrentValue: 70, TargetValue: 90},
					},
				},
				{
					Keyword:         "drain cleaning",
					KeywordSnapshot: engine.KeywordSnapshot{Position: 20, MonthlyTraffic: 150, ConversionRate: 1.8},
					Factors: map[string]engine.Reading{
						engine.FactorUserBehavior: {CurrentValue: 40, TargetValue: 70},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	registry, err := engine.NewRegistry(engine.DefaultModels())
	require.NoError(t, err)

	db := database.TestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(logger)

	eng, err := engine.New(engine.DefaultConfig(), engine.Dependencies{
		Provider:    static,
		Registry:    registry,
		Predictions: database.NewPredictionRepository(db),
		Trends:      database.NewTrendRepository(db),
		Scenarios:   database.NewScenarioRepository(db),
		Logger:      entry,
		Clock:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	srv := NewServer(eng, nil, entry)
	srv.SetWebhooks(database.NewWebhookRepository(db), nil)
	srv.AddHealthCheck("database", db.Ping)
	return &testEnv{server: srv, handler: srv.Handler(), engine: eng}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPredictEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/predictions", map[string]string{"location_key": "loc-1", "keyword": "plumber"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	pred := decode[engine.SearchPrediction](t, rec)
	assert.Equal(t, "loc-1", pred.LocationKey)
	assert.Equal(t, 12.0, pred.CurrentPosition)
	assert.Less(t, pred.PredictedPosition, pred.CurrentPosition)
	assert.Equal(t, "ranking-v1", pred.ModelID)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/predictions/plumber", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[engine.SearchPrediction](t, rec)
	assert.Equal(t, pred.PredictedPosition, stored.PredictedPosition)
}

func TestPredictEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{name: "missing keyword", body: map[string]string{"location_key": "loc-1"}, code: http.StatusBadRequest},
		{name: "unknown field", body: map[string]string{"location_key": "loc-1", "keyword": "plumber", "extra": "x"}, code: http.StatusBadRequest},
		{name: "unknown key", body: map[string]string{"location_key": "loc-9", "keyword": "plumber"}, code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/predictions", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestBatchAndListPredictions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/predictions/batch", map[string]interface{}{
		"keys": []engine.Key{
			{LocationKey: "loc-1", Keyword: "plumber"},
			{LocationKey: "loc-1", Keyword: "drain cleaning"},
			{LocationKey: "loc-1", Keyword: "roofing"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[engine.BatchResult](t, rec)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Completed)
	assert.Len(t, result.Failed, 1)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/predictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]engine.SearchPrediction](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/locations/nowhere/predictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestTrendEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/locations/loc-1/trends", map[string]interface{}{
		"trend_type":        "competitive",
		"impact":            "negative",
		"strength":          0.8,
		"duration":          "P30D",
		"affected_keywords": []string{"plumber"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trend := decode[engine.LocalSearchTrend](t, rec)
	assert.NotEmpty(t, trend.ID)
	assert.Equal(t, "loc-1", trend.LocationKey)
	assert.True(t, trend.ExpiresAt.After(testNow))

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/trends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	analysis := decode[engine.TrendAnalysis](t, rec)
	assert.Len(t, analysis.ActiveTrends, 1)
	assert.NotEmpty(t, analysis.Threats)

	rec = env.do(t, http.MethodPost, "/api/locations/loc-1/trends", map[string]interface{}{
		"trend_type": "weather",
		"impact":     "negative",
		"strength":   1.5,
		"duration":   "P30D",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[errorResponse](t, rec).Fields
	assert.Contains(t, fields, "trendRequest.TrendType")
	assert.Contains(t, fields, "trendRequest.Strength")
}

func TestForecastEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/locations/loc-1/forecast", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[engine.ForecastResult](t, rec).HasData)

	_, err := env.engine.Predict(context.Background(), "loc-1", "plumber")
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/forecast?months=6", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[engine.ForecastResult](t, rec).HasData)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/forecast?months=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/forecast?months=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarioEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Predict(context.Background(), "loc-1", "plumber")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/locations/loc-1/scenarios", map[string]interface{}{
		"name":        "review push",
		"assumptions": []map[string]interface{}{{"factor": engine.FactorReviews, "delta": 10}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	scenario := decode[engine.PerformanceScenario](t, rec)
	assert.NotEmpty(t, scenario.ID)
	assert.NotEmpty(t, scenario.Predictions)

	rec = env.do(t, http.MethodGet, "/api/scenarios/"+scenario.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scenario.Name, decode[engine.PerformanceScenario](t, rec).Name)

	rec = env.do(t, http.MethodGet, "/api/locations/loc-1/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]engine.PerformanceScenario](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/scenarios/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/locations/loc-1/scenarios", map[string]interface{}{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]engine.PredictionModel](t, rec), 4)

	rec = env.do(t, http.MethodPut, "/api/models/ranking-v1/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[engine.PredictionModel](t, rec).Active)

	_, err := env.engine.Registry().GetActiveModel(engine.ModelRanking)
	assert.True(t, errors.Is(err, engine.ErrModelUnavailable))

	// without an active ranking model predictions fall back to the default weighting
	rec = env.do(t, http.MethodPost, "/api/predictions", map[string]string{"location_key": "loc-1", "keyword": "plumber"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, engine.DefaultModel.ID, decode[engine.SearchPrediction](t, rec).ModelID)

	rec = env.do(t, http.MethodPut, "/api/models/ghost/active", map[string]bool{"active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/models/ranking-v1/active", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/config/webhooks", map[string]interface{}{
		"name": "ops",
		"url":  "https://hooks.example.com/forecast",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[database.Webhook](t, rec)
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, "POST", created.Method)

	path := "/api/config/webhooks/" + jsonNumber(created.ID)
	rec = env.do(t, http.MethodPut, path, map[string]interface{}{"name": "ops-renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[database.Webhook](t, rec)
	assert.Equal(t, "ops-renamed", updated.Name)
	assert.Equal(t, created.URL, updated.URL)

	rec = env.do(t, http.MethodGet, "/api/config/webhooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]database.Webhook](t, rec), 1)

	rec = env.do(t, http.MethodGet, path+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/config/webhooks", map[string]interface{}{"name": "bad", "url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/config/webhooks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])

	env.server.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]interface{}](t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodOptions, "/api/predictions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func jsonNumber(id int) string {
	b, _ := json.Marshal(id)
	return string(b)
}
