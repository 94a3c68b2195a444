package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/config"
	"localsearch-forecast/database"
	"localsearch-forecast/engine"
)

const fixturesYAML = `
locations:
  - key: downtown
    keywords:
      - keyword: coffee shop
        position: 9
        monthly_traffic: 800
        conversion_rate: 3
        factors:
          reviews:
            current: 4.1
            target: 4.6
          technical_seo:
            current: 55
      - keyword: espresso bar
        position: 22
        monthly_traffic: 120
        conversion_rate: 1.5
        factors:
          content_quality:
            current: 48
`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(fixturesYAML), 0o600))

	return &config.Config{
		Database: config.DatabaseConfig{Driver: driver, SQLitePath: filepath.Join(dir, "forecast.db")},
		Engine:   config.EngineConfig{TimeFrame: "3 months", Concurrency: 2, MaxRecommendations: 3},
		Forecast: config.ForecastConfig{MonthlyConversionGrowth: 0.02, ConversionCap: 5, DefaultConversionRate: 2},
		Provider: config.ProviderConfig{
			Mode:            config.ProviderStatic,
			FixturesFile:    fixtures,
			Timeout:         time.Second,
			BreakerFailures: 5,
			BreakerOpenFor:  time.Second,
			BreakerHalfOpen: 1,
		},
		API:      config.APIConfig{Port: 0, ReadTimeout: time.Second, ShutdownTimeout: time.Second},
		Refresh:  config.RefreshConfig{Interval: time.Hour, SweepInterval: time.Hour, TrendRetention: time.Hour},
		Webhooks: config.WebhookConfig{Enabled: true, DeclineThreshold: 0.35},
	}
}

func buildApp(t *testing.T, driver string) *App {
	t.Helper()
	a := New(testConfig(t, driver), quietLogger())
	require.NoError(t, a.Build(context.Background()))
	t.Cleanup(a.Close)
	return a
}

func TestBuildWithMemoryStores(t *testing.T) {
	a := buildApp(t, "memory")

	require.NotNil(t, a.Engine())
	assert.Nil(t, a.db)
	assert.Nil(t, a.webhookManager, "webhooks need a database")
	assert.Len(t, a.seedKeys(), 2)

	pred, err := a.Engine().Predict(context.Background(), "downtown", "coffee shop")
	require.NoError(t, err)
	assert.Equal(t, 9.0, pred.CurrentPosition)
}

func TestBuildWithSQLite(t *testing.T) {
	a := buildApp(t, "sqlite")

	require.NotNil(t, a.db)
	require.NotNil(t, a.webhookRepo)
	assert.NotNil(t, a.webhookManager)

	_, err := a.Engine().Predict(context.Background(), "downtown", "espresso bar")
	require.NoError(t, err)
	a.webhookManager.Wait()

	keys, err := a.Engine().TrackedKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []engine.Key{{LocationKey: "downtown", Keyword: "espresso bar"}}, keys)
}

func TestCloseDrainsWebhookDeliveries(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	a := New(testConfig(t, "sqlite"), quietLogger())
	require.NoError(t, a.Build(context.Background()))
	ctx := context.Background()
	require.NoError(t, a.webhookRepo.SaveWebhook(ctx, &database.Webhook{Name: "ops", URL: srv.URL, IsActive: true, RetryCount: 1, TimeoutSeconds: 5}))

	_, err := a.Engine().RecordTrend(ctx, engine.LocalSearchTrend{
		LocationKey:      "downtown",
		TrendType:        engine.TrendCompetitive,
		Impact:           engine.ImpactNegative,
		Strength:         0.6,
		Duration:         "2 weeks",
		AffectedKeywords: []string{"coffee shop"},
	})
	require.NoError(t, err)

	a.Close()
	assert.Equal(t, int32(1), delivered.Load())
	assert.Nil(t, a.db)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Provider.FixturesFile = filepath.Join(t.TempDir(), "missing.yaml")
	a := New(cfg, quietLogger())
	assert.Error(t, a.Build(context.Background()))

	cfg = testConfig(t, "oracle")
	assert.Error(t, New(cfg, quietLogger()).Build(context.Background()))
}

func TestBuildLoadsModelsFile(t *testing.T) {
	cfg := testConfig(t, "memory")
	models := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(models, []byte(`
models:
  - id: ranking-custom
    type: ranking
    accuracy: 0.9
    active: true
    sensitivity: 12
`), 0o600))
	cfg.Engine.ModelsFile = models

	a := New(cfg, quietLogger())
	require.NoError(t, a.Build(context.Background()))

	listed := a.Engine().Registry().ListModels()
	require.Len(t, listed, 1)
	assert.Equal(t, "ranking-custom", listed[0].ID)
}
