// Package app wires configuration, storage, providers and the prediction engine into a
// running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/api"
	"localsearch-forecast/cache"
	"localsearch-forecast/config"
	"localsearch-forecast/database"
	"localsearch-forecast/engine"
	"localsearch-forecast/notifications"
	"localsearch-forecast/provider"
	"localsearch-forecast/realtime"
)

// App represents the main application
type App struct {
	config *config.Config
	logger *logrus.Entry

	db             *database.Database
	redis          *cache.RedisClient
	static         *provider.StaticProvider
	engine         *engine.Engine
	broker         *realtime.Broker
	webhookRepo    *database.WebhookRepository
	webhookManager *notifications.WebhookManager

	refresher *BatchRefresher
	sweeper   *TrendSweeper
}

// New creates a new application instance. Nothing is connected until Build.
func New(cfg *config.Config, logger *logrus.Logger) *App {
	if logger == nil {
		logger = config.NewLogger(cfg.Log)
	}
	return &App{
		config: cfg,
		logger: logrus.NewEntry(logger).WithField("component", "app"),
	}
}

// Engine returns the prediction engine. It is nil before Build.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Build connects storage and collaborators and constructs the engine.
// Long-lived relays started here stop when ctx is cancelled.
func (a *App) Build(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 1. Database Connection
	stores, err := a.connectStores()
	if err != nil {
		return err
	}

	// 2. Redis Connection
	if a.config.Redis.Enabled {
		a.logger.Info("🧠 Connecting to Redis...")
		redisClient, err := cache.NewRedisClient(a.config.Redis.Addr(), a.config.Redis.Password, a.config.Redis.DB, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("⚠️  Redis connection failed. Caching disabled.")
		} else {
			a.redis = redisClient
		}
	}

	// 3. Factor provider
	factorProvider, err := a.buildProvider()
	if err != nil {
		return err
	}

	// 4. Model registry
	models := engine.DefaultModels()
	if a.config.Engine.ModelsFile != "" {
		models, err = engine.LoadModelsFile(a.config.Engine.ModelsFile)
		if err != nil {
			return err
		}
	}
	registry, err := engine.NewRegistry(models)
	if err != nil {
		return fmt.Errorf("invalid model registry: %w", err)
	}

	// 5. Realtime broker, relayed through Redis when available
	a.broker = realtime.NewBroker(a.logger)
	if a.redis != nil {
		if err := a.broker.AttachRelay(ctx, a.redis, a.config.Redis.Channel); err != nil {
			a.logger.WithError(err).Warn("⚠️  Realtime relay unavailable, broadcasting locally")
		}
	}

	deps := engine.Dependencies{
		Provider:    factorProvider,
		Registry:    registry,
		Predictions: stores.predictions,
		Trends:      stores.trends,
		Scenarios:   stores.scenarios,
		Publisher:   a.broker,
		Logger:      a.logger,
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}

	// 6. Webhooks need persistent storage for registrations and delivery logs
	if a.db != nil {
		a.webhookRepo = database.NewWebhookRepository(a.db)
		if a.config.Webhooks.Enabled {
			a.webhookManager = notifications.NewWebhookManager(a.webhookRepo, a.redis, a.config.Webhooks.DeclineThreshold, a.logger)
			deps.Notifier = a.webhookManager
		}
	}

	a.engine, err = engine.New(engine.Config{
		TimeFrame:          a.config.Engine.TimeFrame,
		ProviderTimeout:    a.config.Provider.Timeout,
		Concurrency:        a.config.Engine.Concurrency,
		RequireModel:       a.config.Engine.RequireModel,
		MaxRecommendations: a.config.Engine.MaxRecommendations,
		CacheTTL:           a.config.Engine.CacheTTL,
		Forecast: engine.ForecastParams{
			MonthlyConversionGrowth: a.config.Forecast.MonthlyConversionGrowth,
			ConversionCap:           a.config.Forecast.ConversionCap,
			DefaultConversionRate:   a.config.Forecast.DefaultConversionRate,
		},
	}, deps)
	if err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"db_driver": a.config.Database.Driver,
		"provider":  a.config.Provider.Mode,
		"models":    len(models),
		"redis":     a.redis != nil,
		"webhooks":  a.webhookManager != nil,
	}).Info("✅ Engine ready")
	return nil
}

type storeSet struct {
	predictions engine.PredictionStore
	trends      engine.TrendStore
	scenarios   engine.ScenarioStore
}

func (a *App) connectStores() (storeSet, error) {
	if a.config.Database.Driver == "memory" {
		a.logger.Info("🗄️  Using in-memory stores")
		return storeSet{}, nil
	}

	a.logger.WithField("driver", a.config.Database.Driver).Info("🗄️  Connecting to database...")
	db, err := database.Connect(database.Config{
		Driver:   a.config.Database.Driver,
		Host:     a.config.Database.Host,
		Port:     a.config.Database.Port,
		User:     a.config.Database.User,
		Password: a.config.Database.Password,
		DBName:   a.config.Database.Name,
		Path:     a.config.Database.SQLitePath,
	})
	if err != nil {
		return storeSet{}, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.InitSchema(db); err != nil {
		db.Close()
		return storeSet{}, fmt.Errorf("schema initialization failed: %w", err)
	}
	a.db = db

	return storeSet{
		predictions: database.NewPredictionRepository(db),
		trends:      database.NewTrendRepository(db),
		scenarios:   database.NewScenarioRepository(db),
	}, nil
}

func (a *App) buildProvider() (engine.FactorProvider, error) {
	var next engine.FactorProvider
	switch a.config.Provider.Mode {
	case config.ProviderHTTP:
		next = provider.NewHTTPProvider(a.config.Provider.BaseURL, a.config.Provider.APIKey)
	default:
		static, err := provider.LoadStaticFile(a.config.Provider.FixturesFile)
		if err != nil {
			return nil, err
		}
		a.static = static
		next = static
	}

	return provider.NewGuarded(next, provider.GuardConfig{
		RequestsPerSecond: a.config.Provider.RateLimit,
		Burst:             a.config.Provider.Burst,
		FailureThreshold:  uint32(a.config.Provider.BreakerFailures),
		OpenTimeout:       a.config.Provider.BreakerOpenFor,
		HalfOpenRequests:  uint32(a.config.Provider.BreakerHalfOpen),
	}, a.logger), nil
}

// Refresh recomputes every tracked and fixture keyword once
func (a *App) Refresh(ctx context.Context) engine.BatchResult {
	return NewBatchRefresher(a.engine, a.seedKeys, a.config.Refresh.Interval, a.logger).Refresh(ctx)
}

// seedKeys returns the fixture keys so a fresh deployment has predictions to serve
func (a *App) seedKeys() []engine.Key {
	if a.static == nil {
		return nil
	}
	return a.static.Keys()
}

// Run builds the application, serves the API and runs background workers until an
// interrupt or SIGTERM arrives.
func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Build(ctx); err != nil {
		a.Close()
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.broker.Run(ctx)
	}()

	if a.config.Refresh.Enabled {
		a.refresher = NewBatchRefresher(a.engine, a.seedKeys, a.config.Refresh.Interval, a.logger)
		a.sweeper = NewTrendSweeper(a.engine, a.config.Refresh.SweepInterval, a.config.Refresh.TrendRetention, a.logger)
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.refresher.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			a.sweeper.Start(ctx)
		}()
	}

	server := api.NewServer(a.engine, a.broker, a.logger)
	if a.webhookRepo != nil {
		server.SetWebhooks(a.webhookRepo, a.webhookManager)
	}
	if a.db != nil {
		server.AddHealthCheck("database", a.db.Ping)
	}
	if a.redis != nil {
		server.AddHealthCheck("redis", a.redis.Ping)
	}

	serverErr := server.Start(ctx, a.config.API.Port, a.config.API.ReadTimeout, a.config.API.ShutdownTimeout)
	if serverErr != nil {
		a.logger.WithError(serverErr).Error("⚠️  API Server failed")
	}
	cancel()

	return errors.Join(serverErr, a.waitForWorkers(&wg))
}

// waitForWorkers waits for background goroutines with the shutdown timeout
func (a *App) waitForWorkers(wg *sync.WaitGroup) error {
	a.logger.Info("🛑 Shutdown signal received, stopping workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if a.webhookManager != nil {
			a.webhookManager.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("✅ Graceful shutdown completed")
		return nil
	case <-time.After(a.config.API.ShutdownTimeout):
		a.logger.Warn("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// Close waits for in-flight webhook deliveries, then releases database and Redis connections
func (a *App) Close() {
	// deliveries write their logs through the database, so drain them first
	if a.webhookManager != nil {
		a.webhookManager.Wait()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing database")
		} else {
			a.logger.Info("✅ Database connection closed")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing redis")
		} else {
			a.logger.Info("✅ Redis connection closed")
		}
		a.redis = nil
	}
}
