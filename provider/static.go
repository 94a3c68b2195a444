// Package provider implements engine.FactorProvider collaborators: a static provider backed
// by YAML fixtures, an HTTP client for a remote factor service, and a guard that rate limits
// and circuit-breaks any provider.
package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"localsearch-forecast/engine"
	"localsearch-forecast/scoring"
)

// LocationFixture describes one business location in a fixture file
type LocationFixture struct {
	Key       string             `yaml:"key"`
	NAP       scoring.NAP        `yaml:"nap"`
	Citations []scoring.Citation `yaml:"citations"`
	Keywords  []KeywordFixture   `yaml:"keywords"`
}

// KeywordFixture holds the snapshot and factor readings of one keyword
type KeywordFixture struct {
	Keyword                string `yaml:"keyword"`
	engine.KeywordSnapshot `yaml:",inline"`
	Factors                map[string]engine.Reading `yaml:"factors"`
}

type fixtureFile struct {
	Locations []LocationFixture `yaml:"locations"`
}

// StaticProvider serves readings from in-memory fixtures
type StaticProvider struct {
	mu        sync.RWMutex
	snapshots map[engine.Key]engine.KeywordSnapshot
	readings  map[engine.Key]map[string]engine.Reading
}

// LoadStaticFile reads a YAML fixture file with a top-level "locations" list
func LoadStaticFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return NewStaticProvider(file.Locations)
}

// NewStaticProvider indexes the fixtures. Locations with citation listings and no explicit
// citation_consistency reading get one derived from NAP consistency.
func NewStaticProvider(locations []LocationFixture) (*StaticProvider, error) {
	p := &StaticProvider{
		snapshots: make(map[engine.Key]engine.KeywordSnapshot),
		readings:  make(map[engine.Key]map[string]engine.Reading),
	}

	for _, loc := range locations {
		if loc.Key == "" {
			return nil, fmt.Errorf("fixture location without key")
		}

		var citation *engine.Reading
		if len(loc.Citations) > 0 {
			citation = &engine.Reading{
				CurrentValue: scoring.CitationConsistency(loc.NAP, loc.Citations),
				Trend:        engine.TrendStable,
			}
		}

		for _, kw := range loc.Keywords {
			if kw.Keyword == "" {
				return nil, fmt.Errorf("fixture location %s has a keyword without name", loc.Key)
			}
			key := engine.Key{LocationKey: loc.Key, Keyword: kw.Keyword}
			p.snapshots[key] = kw.KeywordSnapshot

			readings := make(map[string]engine.Reading, len(kw.Factors)+1)
			for name, r := range kw.Factors {
				readings[name] = r
			}
			if _, ok := readings[engine.FactorCitationConsistency]; !ok && citation != nil {
				readings[engine.FactorCitationConsistency] = *citation
			}
			p.readings[key] = readings
		}
	}
	return p, nil
}

// GetFactor returns the reading or engine.ErrFactorMissing
func (p *StaticProvider) GetFactor(ctx context.Context, locationKey, keyword, factorName string) (engine.Reading, error) {
	if err := ctx.Err(); err != nil {
		return engine.Reading{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.readings[engine.Key{LocationKey: locationKey, Keyword: keyword}][factorName]
	if !ok {
		return engine.Reading{}, fmt.Errorf("%s for %s|%s: %w", factorName, locationKey, keyword, engine.ErrFactorMissing)
	}
	return r, nil
}

// GetSnapshot returns the keyword snapshot or engine.ErrFactorMissing
func (p *StaticProvider) GetSnapshot(ctx context.Context, locationKey, keyword string) (engine.KeywordSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return engine.KeywordSnapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.snapshots[engine.Key{LocationKey: locationKey, Keyword: keyword}]
	if !ok {
		return engine.KeywordSnapshot{}, fmt.Errorf("snapshot for %s|%s: %w", locationKey, keyword, engine.ErrFactorMissing)
	}
	return s, nil
}

// Keys returns every fixture key, sorted
func (p *StaticProvider) Keys() []engine.Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]engine.Key, 0, len(p.snapshots))
	for k := range p.snapshots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].LocationKey != keys[j].LocationKey {
			return keys[i].LocationKey < keys[j].LocationKey
		}
		return keys[i].Keyword < keys[j].Keyword
	})
	return keys
}

// SetReading replaces a single reading
func (p *StaticProvider) SetReading(key engine.Key, factorName string, r engine.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readings[key] == nil {
		p.readings[key] = make(map[string]engine.Reading)
	}
	p.readings[key][factorName] = r
}
