package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"localsearch-forecast/metrics"
)

// Events published to live dashboards
const (
	EventPrediction = "prediction"
	EventTrend      = "trend"
	EventScenario   = "scenario"
)

const predictionsCachePrefix = "predictions:"

// Config holds the engine tuning knobs
type Config struct {
	// TimeFrame is the horizon label stored on every prediction, e.g. "3 months"
	TimeFrame       string
	ProviderTimeout time.Duration
	// Concurrency bounds parallel keys in RunBatch
	Concurrency int
	// RequireModel surfaces ErrModelUnavailable instead of using DefaultModel
	RequireModel       bool
	MaxRecommendations int
	CacheTTL           time.Duration
	Forecast           ForecastParams
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		TimeFrame:          "3 months",
		ProviderTimeout:    2 * time.Second,
		Concurrency:        8,
		MaxRecommendations: MaxRecommendations,
		CacheTTL:           5 * time.Minute,
		Forecast:           DefaultForecastParams(),
	}
}

// Dependencies are the collaborators injected into the engine.
// Provider and Registry are required; nil stores default to in-memory stores.
type Dependencies struct {
	Provider    FactorProvider
	Registry    *Registry
	Predictions PredictionStore
	Trends      TrendStore
	Scenarios   ScenarioStore
	Cache       Cache
	Publisher   Publisher
	Notifier    Notifier
	Specs       []FactorSpec
	Logger      *logrus.Entry
	Clock       func() time.Time
}

// Engine runs the prediction pipeline and owns the stored predictions, trends and scenarios
type Engine struct {
	cfg         Config
	aggregator  *Aggregator
	provider    FactorProvider
	registry    *Registry
	catalog     map[string]FactorSpec
	predictions PredictionStore
	trends      TrendStore
	scenarios   ScenarioStore
	cache       Cache
	publisher   Publisher
	notifier    Notifier
	logger      *logrus.Entry
	now         func() time.Time

	keyLocks sync.Map
	// locationLocks orders cache fills against Put+invalidate of the same location
	locationLocks sync.Map
}

// New creates an engine
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New("engine: factor provider is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("engine: model registry is required")
	}

	defaults := DefaultConfig()
	if cfg.TimeFrame == "" {
		cfg.TimeFrame = defaults.TimeFrame
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = defaults.MaxRecommendations
	}
	if cfg.Forecast.ConversionCap <= 0 {
		cfg.Forecast = defaults.Forecast
	}

	if deps.Predictions == nil {
		deps.Predictions = NewMemoryPredictionStore()
	}
	if deps.Trends == nil {
		deps.Trends = NewMemoryTrendStore()
	}
	if deps.Scenarios == nil {
		deps.Scenarios = NewMemoryScenarioStore()
	}
	if len(deps.Specs) == 0 {
		deps.Specs = DefaultFactorSpecs()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	aggregator := NewAggregator(deps.Provider, deps.Specs, cfg.ProviderTimeout, deps.Logger)
	aggregator.now = deps.Clock

	return &Engine{
		cfg:         cfg,
		aggregator:  aggregator,
		provider:    deps.Provider,
		registry:    deps.Registry,
		catalog:     specCatalog(deps.Specs),
		predictions: deps.Predictions,
		trends:      deps.Trends,
		scenarios:   deps.Scenarios,
		cache:       deps.Cache,
		publisher:   deps.Publisher,
		notifier:    deps.Notifier,
		logger:      deps.Logger.WithField("component", "engine"),
		now:         deps.Clock,
	}, nil
}

// Registry returns the model registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// EvaluationInput is everything a single prediction is computed from
type EvaluationInput struct {
	Key       Key
	Snapshot  KeywordSnapshot
	Factors   []PerformanceFactor
	Trends    []LocalSearchTrend
	Model     PredictionModel
	Catalog   map[string]FactorSpec
	TimeFrame string
	MaxRecs   int
	Now       time.Time
}

// Evaluate computes a prediction from fixed inputs. It has no side effects, so identical
// inputs always produce identical predictions.
func Evaluate(in EvaluationInput) SearchPrediction {
	current := in.Snapshot.Position
	if current < MinPosition || current > MaxPosition {
		current = MaxPosition
	}

	shift := TrendShift(in.Trends, in.Key.Keyword, in.Now)
	predicted := PredictPosition(current, in.Factors, PredictOptions{Model: in.Model, TrendShift: shift})

	return SearchPrediction{
		LocationKey:       in.Key.LocationKey,
		Keyword:           in.Key.Keyword,
		CurrentPosition:   current,
		PredictedPosition: predicted,
		Confidence:        EstimateConfidence(in.Factors),
		TimeFrame:         in.TimeFrame,
		Factors:           append([]PerformanceFactor{}, in.Factors...),
		Probability:       CalculateProbability(current, predicted, in.Factors),
		Recommendations:   GenerateRecommendations(in.Factors, in.Catalog, in.MaxRecs),
		ModelID:           in.Model.ID,
		TrendAdjustment:   shift,
		CurrentTraffic:    in.Snapshot.MonthlyTraffic,
		ConversionRate:    in.Snapshot.ConversionRate,
		CreatedAt:         in.Now,
	}
}

// Predict runs the pipeline for one key and stores the result, replacing the previous
// prediction for the key. It returns NotFound when the provider has no data for the key.
func (e *Engine) Predict(ctx context.Context, locationKey, keyword string) (SearchPrediction, error) {
	start := time.Now()
	key := Key{LocationKey: locationKey, Keyword: keyword}
	if locationKey == "" || keyword == "" {
		return SearchPrediction{}, fmt.Errorf("%w: location key and keyword are required", ErrInvalidFactorData)
	}

	unlock := e.lockKey(key)
	defer unlock()

	pred, err := e.compute(ctx, key)
	if err != nil {
		metrics.RecordPrediction(predictionOutcome(err), time.Since(start))
		return SearchPrediction{}, err
	}

	if err := e.store(ctx, pred); err != nil {
		metrics.RecordPrediction("error", time.Since(start))
		return SearchPrediction{}, fmt.Errorf("failed to store prediction %s: %w", key, err)
	}

	if e.publisher != nil {
		e.publisher.Broadcast(EventPrediction, pred)
	}
	if e.notifier != nil {
		e.notifier.NotifyPrediction(ctx, pred)
	}

	metrics.RecordPrediction("ok", time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"location":   locationKey,
		"keyword":    keyword,
		"current":    pred.CurrentPosition,
		"predicted":  pred.PredictedPosition,
		"confidence": pred.Confidence,
	}).Debug("📊 Prediction stored")
	return pred, nil
}

func (e *Engine) compute(ctx context.Context, key Key) (SearchPrediction, error) {
	snapshot, err := e.snapshot(ctx, key)
	if err != nil {
		return SearchPrediction{}, err
	}

	factors, err := e.aggregator.Aggregate(ctx, key.LocationKey, key.Keyword)
	if err != nil {
		return SearchPrediction{}, err
	}

	model, err := e.resolveModel()
	if err != nil {
		return SearchPrediction{}, err
	}

	return Evaluate(EvaluationInput{
		Key:       key,
		Snapshot:  snapshot,
		Factors:   factors,
		Trends:    e.locationTrends(ctx, key.LocationKey),
		Model:     model,
		Catalog:   e.catalog,
		TimeFrame: e.cfg.TimeFrame,
		MaxRecs:   e.cfg.MaxRecommendations,
		Now:       e.timestamp(),
	}), nil
}

func (e *Engine) snapshot(ctx context.Context, key Key) (KeywordSnapshot, error) {
	callCtx := ctx
	if e.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		defer cancel()
	}

	snapshot, err := e.provider.GetSnapshot(callCtx, key.LocationKey, key.Keyword)
	switch {
	case err == nil:
		return snapshot, nil
	case errors.Is(err, ErrFactorMissing) || errors.Is(err, ErrNotFound):
		return KeywordSnapshot{}, newNotFound("keyword", key.String())
	case ctx.Err() != nil:
		return KeywordSnapshot{}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return KeywordSnapshot{}, fmt.Errorf("snapshot %s: %w", key, ErrTimeout)
	default:
		return KeywordSnapshot{}, fmt.Errorf("snapshot %s: %w", key, err)
	}
}

// resolveModel returns the active ranking model, or DefaultModel unless RequireModel is set
func (e *Engine) resolveModel() (PredictionModel, error) {
	model, err := e.registry.GetActiveModel(ModelRanking)
	if err == nil {
		return model, nil
	}
	if e.cfg.RequireModel {
		return PredictionModel{}, err
	}
	metrics.RecordModelFallback()
	e.logger.WithError(err).Warn("⚠️  No active ranking model, falling back to default weighting")
	return DefaultModel, nil
}

// locationTrends loads trends for a location. A failing trend store only loses the
// trend adjustment, so the error is logged and absorbed.
func (e *Engine) locationTrends(ctx context.Context, locationKey string) []LocalSearchTrend {
	trends, err := e.trends.List(ctx, locationKey)
	if err != nil {
		e.logger.WithError(err).WithField("location", locationKey).Warn("⚠️  Failed to load trends, predicting without trend adjustment")
		return nil
	}
	return trends
}

// ListPredictions returns the latest prediction of every keyword of the location
func (e *Engine) ListPredictions(ctx context.Context, locationKey string) ([]SearchPrediction, error) {
	cacheKey := predictionsCachePrefix + locationKey
	if e.cache != nil {
		var cached []SearchPrediction
		if err := e.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	mu := e.locationLock(locationKey)
	mu.RLock()
	defer mu.RUnlock()

	preds, err := e.predictions.List(ctx, locationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions for %s: %w", locationKey, err)
	}

	if e.cache != nil && e.cfg.CacheTTL > 0 {
		if err := e.cache.Set(ctx, cacheKey, preds, e.cfg.CacheTTL); err != nil {
			e.logger.WithError(err).Debug("Failed to cache predictions")
		}
	}
	return preds, nil
}

// LatestPrediction returns the current prediction for a key or a NotFound error
func (e *Engine) LatestPrediction(ctx context.Context, locationKey, keyword string) (SearchPrediction, error) {
	return e.predictions.Get(ctx, Key{LocationKey: locationKey, Keyword: keyword})
}

// TrackedKeys returns every key with a stored prediction
func (e *Engine) TrackedKeys(ctx context.Context) ([]Key, error) {
	return e.predictions.Keys(ctx)
}

// RecordTrend validates and stores a detected trend. ID and DetectedAt default to a new
// UUID and the current time; ExpiresAt is derived from the duration.
func (e *Engine) RecordTrend(ctx context.Context, t LocalSearchTrend) (LocalSearchTrend, error) {
	if err := ValidateTrend(t); err != nil {
		return LocalSearchTrend{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DetectedAt.IsZero() {
		t.DetectedAt = e.now()
	}
	t.DetectedAt = t.DetectedAt.UTC().Truncate(time.Microsecond)

	expires, err := TrendExpiry(t.DetectedAt, t.Duration)
	if err != nil {
		return LocalSearchTrend{}, newFactorDataError("trend", err.Error(), t.Duration)
	}
	t.ExpiresAt = expires

	t.AffectedKeywords = append([]string{}, t.AffectedKeywords...)
	effects := make(map[string]KeywordEffect, len(t.KeywordEffects))
	for kw, eff := range t.KeywordEffects {
		effects[kw] = eff
	}
	t.KeywordEffects = effects

	if err := e.trends.Put(ctx, t); err != nil {
		return LocalSearchTrend{}, fmt.Errorf("failed to store trend: %w", err)
	}
	metrics.RecordTrend(string(t.Impact))

	e.logger.WithFields(logrus.Fields{
		"location": t.LocationKey,
		"type":     t.TrendType,
		"impact":   t.Impact,
		"strength": t.Strength,
		"expires":  t.ExpiresAt.Format(time.RFC3339),
	}).Info("📈 Trend recorded")

	if e.publisher != nil {
		e.publisher.Broadcast(EventTrend, t)
	}
	if e.notifier != nil {
		e.notifier.NotifyTrend(ctx, t)
	}
	return t, nil
}

// AnalyzeTrends summarizes the active trends of a location
func (e *Engine) AnalyzeTrends(ctx context.Context, locationKey string) (TrendAnalysis, error) {
	trends, err := e.trends.List(ctx, locationKey)
	if err != nil {
		return TrendAnalysis{}, fmt.Errorf("failed to list trends for %s: %w", locationKey, err)
	}
	return AnalyzeTrends(locationKey, trends, e.now()), nil
}

// PurgeExpiredTrends deletes trends that expired before the given time
func (e *Engine) PurgeExpiredTrends(ctx context.Context, before time.Time) (int64, error) {
	return e.trends.DeleteExpired(ctx, before)
}

// Forecast rolls up the stored predictions of a location over the horizon.
// A location without predictions yields a result with HasData false.
func (e *Engine) Forecast(ctx context.Context, locationKey string, months int) (ForecastResult, error) {
	if err := ValidateHorizon(months); err != nil {
		return ForecastResult{}, err
	}

	preds, err := e.ListPredictions(ctx, locationKey)
	if err != nil {
		return ForecastResult{}, err
	}
	trends, err := e.trends.List(ctx, locationKey)
	if err != nil {
		return ForecastResult{}, fmt.Errorf("failed to list trends for %s: %w", locationKey, err)
	}

	result := AggregateForecast(locationKey, months, preds, trends, e.cfg.Forecast, e.now())
	if model, err := e.registry.GetActiveModel(ModelTraffic); err == nil && result.HasData {
		result.TrafficModelID = model.ID
	}
	return result, nil
}

// store writes the prediction and drops the cached location list. No list read can fill
// the cache between the two steps.
func (e *Engine) store(ctx context.Context, pred SearchPrediction) error {
	mu := e.locationLock(pred.LocationKey)
	mu.Lock()
	defer mu.Unlock()

	if err := e.predictions.Put(ctx, pred); err != nil {
		return err
	}
	e.invalidate(ctx, pred.LocationKey)
	return nil
}

func (e *Engine) locationLock(locationKey string) *sync.RWMutex {
	v, _ := e.locationLocks.LoadOrStore(locationKey, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

func (e *Engine) invalidate(ctx context.Context, locationKey string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, predictionsCachePrefix+locationKey); err != nil {
		e.logger.WithError(err).Debug("Failed to invalidate prediction cache")
	}
}

func (e *Engine) lockKey(key Key) func() {
	v, _ := e.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// timestamp is the current time at the precision every store keeps
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func predictionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrInvalidFactorData):
		return "invalid"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
