package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"localsearch-forecast/engine"
	"localsearch-forecast/metrics"
)

// GuardConfig configures the rate limiter and circuit breaker around a provider
type GuardConfig struct {
	RequestsPerSecond float64       // Token refill rate, 0 disables limiting
	Burst             int           // Max tokens available at once
	FailureThreshold  uint32        // Consecutive failures that open the breaker
	OpenTimeout       time.Duration // Time the breaker stays open before probing
	HalfOpenRequests  uint32        // Probe requests allowed while half-open
}

// DefaultGuardConfig returns conservative defaults for a shared factor service
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond: 50,
		Burst:             20,
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
		HalfOpenRequests:  2,
	}
}

// Guarded wraps a provider with a rate limiter and a circuit breaker so that batch runs
// cannot stampede the collaborators. While the breaker is open every read is reported as
// missing.
type Guarded struct {
	next    engine.FactorProvider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  *logrus.Entry
}

// NewGuarded creates a guarded provider
func NewGuarded(next engine.FactorProvider, cfg GuardConfig, logger *logrus.Entry) *Guarded {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &Guarded{
		next:   next,
		logger: logger.WithField("component", "provider_guard"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultGuardConfig().FailureThreshold
	}
	g.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "factor-provider",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// missing data is a healthy answer
			return err == nil || errors.Is(err, engine.ErrFactorMissing)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(int(to))
			g.logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warn("⚠️  Factor provider circuit breaker changed state")
		},
	})
	return g
}

// GetFactor reads through the limiter and breaker
func (g *Guarded) GetFactor(ctx context.Context, locationKey, keyword, factorName string) (engine.Reading, error) {
	result, err := g.call(ctx, func() (interface{}, error) {
		return g.next.GetFactor(ctx, locationKey, keyword, factorName)
	})
	if err != nil {
		return engine.Reading{}, err
	}
	return result.(engine.Reading), nil
}

// GetSnapshot reads through the limiter and breaker
func (g *Guarded) GetSnapshot(ctx context.Context, locationKey, keyword string) (engine.KeywordSnapshot, error) {
	result, err := g.call(ctx, func() (interface{}, error) {
		return g.next.GetSnapshot(ctx, locationKey, keyword)
	})
	if err != nil {
		return engine.KeywordSnapshot{}, err
	}
	return result.(engine.KeywordSnapshot), nil
}

// State returns the breaker state
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guarded) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.RecordProviderRejected("rate_limited")
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rate limited: %w", engine.ErrTimeout)
		}
	}

	result, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordProviderRejected("circuit_open")
		return nil, fmt.Errorf("%w: %v", engine.ErrFactorMissing, err)
	}
	return result, err
}
