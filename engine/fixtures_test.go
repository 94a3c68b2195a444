package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeProvider serves readings from maps and can delay or fail selected factors
type fakeProvider struct {
	mu        sync.Mutex
	snapshots map[Key]KeywordSnapshot
	readings  map[string]Reading
	delays    map[string]time.Duration
	failures  map[string]error
	calls     int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		snapshots: map[Key]KeywordSnapshot{},
		readings:  map[string]Reading{},
		delays:    map[string]time.Duration{},
		failures:  map[string]error{},
	}
}

func readingKey(loc, kw, factor string) string {
	return loc + "|" + kw + "|" + factor
}

func (p *fakeProvider) GetFactor(ctx context.Context, loc, kw, factor string) (Reading, error) {
	p.mu.Lock()
	p.calls++
	delay := p.delays[factor]
	failure := p.failures[factor]
	reading, ok := p.readings[readingKey(loc, kw, factor)]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		}
	}
	if failure != nil {
		return Reading{}, failure
	}
	if !ok {
		return Reading{}, ErrFactorMissing
	}
	return reading, nil
}

func (p *fakeProvider) GetSnapshot(_ context.Context, loc, kw string) (KeywordSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.snapshots[Key{LocationKey: loc, Keyword: kw}]
	if !ok {
		return KeywordSnapshot{}, ErrFactorMissing
	}
	return s, nil
}

// seedAtTarget stores a snapshot and readings with every default factor at its target
func (p *fakeProvider) seedAtTarget(loc, kw string, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[Key{LocationKey: loc, Keyword: kw}] = KeywordSnapshot{Position: position, MonthlyTraffic: 320, ConversionRate: 2.4}
	for _, spec := range DefaultFactorSpecs() {
		p.readings[readingKey(loc, kw, spec.Name)] = Reading{
			CurrentValue: spec.DefaultTarget,
			TargetValue:  spec.DefaultTarget,
			Trend:        TrendStable,
			UpdatedAt:    fixedNow.Add(-time.Hour),
		}
	}
}

func (p *fakeProvider) setReading(loc, kw, factor string, r Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings[readingKey(loc, kw, factor)] = r
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func newTestEngine(t *testing.T, provider FactorProvider, cfg Config) *Engine {
	t.Helper()
	registry, err := NewRegistry(DefaultModels())
	require.NoError(t, err)
	e, err := New(cfg, Dependencies{
		Provider: provider,
		Registry: registry,
		Logger:   testLogger(),
		Clock:    fixedClock,
	})
	require.NoError(t, err)
	return e
}

func factorAtTarget(name string, weight, value float64) PerformanceFactor {
	return PerformanceFactor{
		Name:         name,
		Category:     CategoryLocal,
		Weight:       weight,
		CurrentValue: value,
		TargetValue:  value,
		Impact:       0.5,
		Trend:        TrendStable,
		LastUpdated:  fixedNow,
	}
}

// defaultFactorSet returns the default factors with every value at its target
func defaultFactorSet() []PerformanceFactor {
	specs := DefaultFactorSpecs()
	factors := make([]PerformanceFactor, len(specs))
	for i, s := range specs {
		target := toReference(s.DefaultTarget, s.Scale)
		factors[i] = PerformanceFactor{
			Name:         s.Name,
			Category:     s.Category,
			Weight:       s.Weight,
			CurrentValue: target,
			TargetValue:  target,
			Impact:       s.Impact,
			Trend:        TrendStable,
			LastUpdated:  fixedNow,
		}
	}
	return factors
}
