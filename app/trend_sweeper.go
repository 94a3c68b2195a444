package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/engine"
	"localsearch-forecast/metrics"
)

// TrendSweeper deletes trends that expired longer ago than the retention window
type TrendSweeper struct {
	engine    *engine.Engine
	interval  time.Duration
	retention time.Duration
	logger    *logrus.Entry
	now       func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewTrendSweeper creates a sweeper
func NewTrendSweeper(eng *engine.Engine, interval, retention time.Duration, logger *logrus.Entry) *TrendSweeper {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TrendSweeper{
		engine:    eng,
		interval:  interval,
		retention: retention,
		logger:    logger.WithField("component", "trend_sweeper"),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start sweeps once per interval until ctx is cancelled or Stop is called
func (ts *TrendSweeper) Start(ctx context.Context) {
	ts.logger.WithField("retention", ts.retention).Info("🧹 Trend Sweeper started")

	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.Sweep(ctx)
		case <-ctx.Done():
			ts.logger.Info("🧹 Trend Sweeper stopped")
			return
		case <-ts.done:
			ts.logger.Info("🧹 Trend Sweeper stopped")
			return
		}
	}
}

// Stop stops the sweep loop
func (ts *TrendSweeper) Stop() {
	ts.stopOnce.Do(func() { close(ts.done) })
}

// Sweep purges trends that expired before now minus the retention window
func (ts *TrendSweeper) Sweep(ctx context.Context) int64 {
	cutoff := ts.now().Add(-ts.retention)
	n, err := ts.engine.PurgeExpiredTrends(ctx, cutoff)
	if err != nil {
		ts.logger.WithError(err).Error("❌ Failed to purge expired trends")
		return 0
	}
	metrics.RecordTrendsPurged(n)
	if n > 0 {
		ts.logger.WithFields(logrus.Fields{"purged": n, "cutoff": cutoff.Format(time.RFC3339)}).Info("🧹 Expired trends purged")
	}
	return n
}
