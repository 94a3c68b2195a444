package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/engine"
)

type flakyProvider struct {
	calls atomic.Int32
	err   error
}

func (f *flakyProvider) GetFactor(ctx context.Context, locationKey, keyword, factorName string) (engine.Reading, error) {
	f.calls.Add(1)
	if f.err != nil {
		return engine.Reading{}, f.err
	}
	return engine.Reading{CurrentValue: 50}, nil
}

func (f *flakyProvider) GetSnapshot(ctx context.Context, locationKey, keyword string) (engine.KeywordSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return engine.KeywordSnapshot{}, f.err
	}
	return engine.KeywordSnapshot{Position: 5}, nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestGuardedPassesThrough(t *testing.T) {
	next := &flakyProvider{}
	g := NewGuarded(next, DefaultGuardConfig(), quietLogger())

	r, err := g.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
	require.NoError(t, err)
	assert.Equal(t, 50.0, r.CurrentValue)

	snap, err := g.GetSnapshot(context.Background(), "loc-1", "kw")
	require.NoError(t, err)
	assert.Equal(t, 5.0, snap.Position)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	next := &flakyProvider{err: errors.New("connection refused")}
	cfg := GuardConfig{FailureThreshold: 3, OpenTimeout: time.Minute, HalfOpenRequests: 1}
	g := NewGuarded(next, cfg, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := g.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
		require.Error(t, err)
		assert.NotErrorIs(t, err, engine.ErrFactorMissing)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
	assert.ErrorIs(t, err, engine.ErrFactorMissing)
	assert.Equal(t, int32(3), next.calls.Load(), "open breaker must not reach the provider")
}

func TestGuardedMissingDoesNotTrip(t *testing.T) {
	next := &flakyProvider{err: engine.ErrFactorMissing}
	g := NewGuarded(next, GuardConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, quietLogger())

	for i := 0; i < 5; i++ {
		_, err := g.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
		assert.ErrorIs(t, err, engine.ErrFactorMissing)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
	assert.Equal(t, int32(5), next.calls.Load())
}

func TestGuardedRateLimitTimesOut(t *testing.T) {
	next := &flakyProvider{}
	g := NewGuarded(next, GuardConfig{RequestsPerSecond: 0.1, Burst: 1, FailureThreshold: 5}, quietLogger())

	_, err := g.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
	require.NoError(t, err)

	// the next token is ten seconds away, well past the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.GetFactor(ctx, "loc-1", "kw", engine.FactorReviews)
	assert.ErrorIs(t, err, engine.ErrTimeout)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestGuardedFallbackInAggregator(t *testing.T) {
	next := &flakyProvider{err: errors.New("boom")}
	g := NewGuarded(next, GuardConfig{FailureThreshold: 1, OpenTimeout: time.Minute}, quietLogger())

	agg := engine.NewAggregator(g, engine.DefaultFactorSpecs(), time.Second, quietLogger())
	factors, err := agg.Aggregate(context.Background(), "loc-1", "kw")
	require.NoError(t, err)
	assert.Zero(t, engine.Completeness(factors))
	assert.Equal(t, int32(1), next.calls.Load())
}
