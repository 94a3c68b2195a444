package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/engine"
)

// BatchRefresher periodically recomputes every tracked prediction
type BatchRefresher struct {
	engine   *engine.Engine
	seed     func() []engine.Key
	interval time.Duration
	logger   *logrus.Entry

	done     chan struct{}
	stopOnce sync.Once
}

// NewBatchRefresher creates a refresher. seed may return keys that have not been predicted
// yet; it may be nil.
func NewBatchRefresher(eng *engine.Engine, seed func() []engine.Key, interval time.Duration, logger *logrus.Entry) *BatchRefresher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BatchRefresher{
		engine:   eng,
		seed:     seed,
		interval: interval,
		logger:   logger.WithField("component", "batch_refresher"),
		done:     make(chan struct{}),
	}
}

// Start runs an initial refresh, then one per interval until ctx is cancelled or Stop is called
func (br *BatchRefresher) Start(ctx context.Context) {
	br.logger.WithField("interval", br.interval).Info("🔄 Batch Refresher started")

	ticker := time.NewTicker(br.interval)
	defer ticker.Stop()

	// Initial run
	br.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			br.Refresh(ctx)
		case <-ctx.Done():
			br.logger.Info("🔄 Batch Refresher stopped")
			return
		case <-br.done:
			br.logger.Info("🔄 Batch Refresher stopped")
			return
		}
	}
}

// Stop stops the refresh loop
func (br *BatchRefresher) Stop() {
	br.stopOnce.Do(func() { close(br.done) })
}

// Refresh recomputes the tracked keys plus the seed keys
func (br *BatchRefresher) Refresh(ctx context.Context) engine.BatchResult {
	keys, err := br.engine.TrackedKeys(ctx)
	if err != nil {
		br.logger.WithError(err).Warn("⚠️  Failed to load tracked keys")
	}
	if br.seed != nil {
		keys = append(keys, br.seed()...)
	}
	if len(keys) == 0 {
		br.logger.Debug("No keys to refresh")
		return engine.BatchResult{Failed: map[string]string{}}
	}

	result := br.engine.RunBatch(ctx, keys)
	if len(result.Failed) > 0 {
		br.logger.WithField("failed", len(result.Failed)).Warn("⚠️  Some predictions could not be refreshed")
	} else {
		br.logger.WithField("completed", result.Completed).Info("✅ Predictions refreshed")
	}
	return result
}
