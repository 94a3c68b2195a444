package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/engine"
)

const cliFixtures = `
locations:
  - key: riverside
    keywords:
      - keyword: florist
        position: 15
        monthly_traffic: 260
        conversion_rate: 2.2
        factors:
          reviews:
            current: 3.9
          content_quality:
            current: 52
`

// setupEnv points the CLI at a temporary fixture file and the given store backend
func setupEnv(t *testing.T, driver string) {
	t.Helper()
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(cliFixtures), 0o600))

	t.Setenv("DB_DRIVER", driver)
	t.Setenv("DB_SQLITE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("PROVIDER_MODE", "static")
	t.Setenv("PROVIDER_FIXTURES_FILE", fixtures)
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "localsearch-forecast", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	assert.NotNil(t, cmd.PersistentPreRunE)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "predict", "batch", "forecast", "models"} {
		assert.True(t, names[name], "missing command %s", name)
	}
}

func TestPredictCommand(t *testing.T) {
	setupEnv(t, "memory")

	out, err := run(t, "predict", "--location", "riverside", "--keyword", "florist")
	require.NoError(t, err)

	var pred engine.SearchPrediction
	require.NoError(t, json.Unmarshal([]byte(out), &pred))
	assert.Equal(t, "florist", pred.Keyword)
	assert.Equal(t, 15.0, pred.CurrentPosition)
}

func TestPredictCommandRequiresFlags(t *testing.T) {
	setupEnv(t, "memory")

	_, err := run(t, "predict", "--location", "riverside")
	assert.Error(t, err)
}

func TestPredictCommandUnknownKeyword(t *testing.T) {
	setupEnv(t, "memory")

	_, err := run(t, "predict", "--location", "riverside", "--keyword", "bakery")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestBatchThenForecastWithSQLite(t *testing.T) {
	setupEnv(t, "sqlite")

	out, err := run(t, "batch")
	require.NoError(t, err)
	var result engine.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Completed)

	out, err = run(t, "forecast", "--location", "riverside", "--months", "6")
	require.NoError(t, err)
	var forecast engine.ForecastResult
	require.NoError(t, json.Unmarshal([]byte(out), &forecast))
	assert.True(t, forecast.HasData)

	_, err = run(t, "forecast", "--location", "riverside", "--months", "48")
	assert.ErrorIs(t, err, engine.ErrInvalidHorizon)
}

func TestModelsCommand(t *testing.T) {
	setupEnv(t, "memory")

	out, err := run(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "ranking-v1")
	assert.Contains(t, out, "ACCURACY")

	out, err = run(t, "models", "--json")
	require.NoError(t, err)
	var models []engine.PredictionModel
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	assert.Len(t, models, 4)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	setupEnv(t, "postgres")

	// --db-driver memory avoids the postgres connection
	_, err := run(t, "models", "--db-driver", "memory")
	require.NoError(t, err)

	_, err = run(t, "models", "--db-driver", "memory", "--log-level", "loud")
	assert.Error(t, err)
}
