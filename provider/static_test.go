package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/engine"
)

const fixtureYAML = `
locations:
  - key: loc-1
    nap:
      name: Harbor Dental
      address: 12 Pier Street
      phone: "(555) 0100"
    citations:
      - source: yelp
        name: Harbor Dental
        address: 12 Pier Street
        phone: "555-0100"
      - source: yellowpages
        name: Harbour Dental Clinic
        address: 12 Pier Street
        phone: "555 0100"
    keywords:
      - keyword: dentist near me
        position: 8
        monthly_traffic: 320
        conversion_rate: 2.4
        factors:
          reviews:
            current: 3.6
            target: 4.5
            trend: improving
          content_quality:
            current: 70
            target: 85
      - keyword: emergency dentist
        position: 14
        monthly_traffic: 90
        conversion_rate: 3.1
        factors:
          citation_consistency:
            current: 40
            target: 95
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))
	return path
}

func TestLoadStaticFile(t *testing.T) {
	p, err := LoadStaticFile(writeFixture(t))
	require.NoError(t, err)

	assert.Equal(t, []engine.Key{
		{LocationKey: "loc-1", Keyword: "dentist near me"},
		{LocationKey: "loc-1", Keyword: "emergency dentist"},
	}, p.Keys())

	snap, err := p.GetSnapshot(context.Background(), "loc-1", "dentist near me")
	require.NoError(t, err)
	assert.Equal(t, 8.0, snap.Position)
	assert.Equal(t, 320.0, snap.MonthlyTraffic)
	assert.Equal(t, 2.4, snap.ConversionRate)

	r, err := p.GetFactor(context.Background(), "loc-1", "dentist near me", engine.FactorReviews)
	require.NoError(t, err)
	assert.Equal(t, 3.6, r.CurrentValue)
	assert.Equal(t, 4.5, r.TargetValue)
	assert.Equal(t, engine.TrendImproving, r.Trend)
}

func TestStaticProviderDerivesCitationConsistency(t *testing.T) {
	p, err := LoadStaticFile(writeFixture(t))
	require.NoError(t, err)

	// yelp matches every field, yellowpages matches address and phone only
	r, err := p.GetFactor(context.Background(), "loc-1", "dentist near me", engine.FactorCitationConsistency)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, r.CurrentValue, 1e-9)
	assert.Equal(t, engine.TrendStable, r.Trend)

	// an explicit reading wins over the derived one
	r, err = p.GetFactor(context.Background(), "loc-1", "emergency dentist", engine.FactorCitationConsistency)
	require.NoError(t, err)
	assert.Equal(t, 40.0, r.CurrentValue)
}

func TestStaticProviderMissing(t *testing.T) {
	p, err := LoadStaticFile(writeFixture(t))
	require.NoError(t, err)

	_, err = p.GetFactor(context.Background(), "loc-1", "dentist near me", engine.FactorTechnicalSEO)
	assert.ErrorIs(t, err, engine.ErrFactorMissing)

	_, err = p.GetSnapshot(context.Background(), "loc-2", "dentist near me")
	assert.ErrorIs(t, err, engine.ErrFactorMissing)
}

func TestStaticProviderCancelled(t *testing.T) {
	p, err := NewStaticProvider(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetFactor(ctx, "loc-1", "kw", engine.FactorReviews)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticProviderRejectsIncompleteFixtures(t *testing.T) {
	_, err := NewStaticProvider([]LocationFixture{{Keywords: []KeywordFixture{{Keyword: "kw"}}}})
	assert.Error(t, err)

	_, err = NewStaticProvider([]LocationFixture{{Key: "loc-1", Keywords: []KeywordFixture{{}}}})
	assert.Error(t, err)
}

func TestStaticProviderSetReading(t *testing.T) {
	p, err := NewStaticProvider(nil)
	require.NoError(t, err)

	key := engine.Key{LocationKey: "loc-1", Keyword: "kw"}
	p.SetReading(key, engine.FactorReviews, engine.Reading{CurrentValue: 4.1})

	r, err := p.GetFactor(context.Background(), "loc-1", "kw", engine.FactorReviews)
	require.NoError(t, err)
	assert.Equal(t, 4.1, r.CurrentValue)
}

func TestStaticProviderFeedsAggregator(t *testing.T) {
	p, err := LoadStaticFile(writeFixture(t))
	require.NoError(t, err)

	agg := engine.NewAggregator(p, engine.DefaultFactorSpecs(), 0, nil)
	factors, err := agg.Aggregate(context.Background(), "loc-1", "dentist near me")
	require.NoError(t, err)
	require.Len(t, factors, len(engine.DefaultFactorSpecs()))

	// citation, reviews and content have readings, the rest fall back
	assert.InDelta(t, 0.5, engine.Completeness(factors), 1e-9)
}
