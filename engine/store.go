package engine

import (
	"context"
	"time"
)

// PredictionStore persists the latest prediction per (location, keyword).
// Put replaces the previous prediction for the key atomically.
type PredictionStore interface {
	Get(ctx context.Context, key Key) (SearchPrediction, error)
	Put(ctx context.Context, p SearchPrediction) error
	List(ctx context.Context, locationKey string) ([]SearchPrediction, error)
	Keys(ctx context.Context) ([]Key, error)
}

// TrendStore persists trends per location
type TrendStore interface {
	Put(ctx context.Context, t LocalSearchTrend) error
	List(ctx context.Context, locationKey string) ([]LocalSearchTrend, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ScenarioStore persists caller-defined scenarios
type ScenarioStore interface {
	Put(ctx context.Context, s PerformanceScenario) error
	Get(ctx context.Context, id string) (PerformanceScenario, error)
	List(ctx context.Context, locationKey string) ([]PerformanceScenario, error)
}

// Cache is a read-through cache for location level reads
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Publisher fans engine events out to live dashboards
type Publisher interface {
	Broadcast(event string, payload interface{})
}

// Notifier delivers alerts for risky predictions and negative trends
type Notifier interface {
	NotifyPrediction(ctx context.Context, p SearchPrediction)
	NotifyTrend(ctx context.Context, t LocalSearchTrend)
}
