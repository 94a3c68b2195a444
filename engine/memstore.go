package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryPredictionStore is an in-memory PredictionStore
type MemoryPredictionStore struct {
	mu    sync.RWMutex
	items map[Key]SearchPrediction
}

// NewMemoryPredictionStore creates an empty store
func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{items: make(map[Key]SearchPrediction)}
}

func (s *MemoryPredictionStore) Get(_ context.Context, key Key) (SearchPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[key]
	if !ok {
		return SearchPrediction{}, newNotFound("prediction", key.String())
	}
	return clonePrediction(p), nil
}

func (s *MemoryPredictionStore) Put(_ context.Context, p SearchPrediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.Key()] = clonePrediction(p)
	return nil
}

func (s *MemoryPredictionStore) List(_ context.Context, locationKey string) ([]SearchPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SearchPrediction, 0)
	for k, p := range s.items {
		if k.LocationKey == locationKey {
			out = append(out, clonePrediction(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (s *MemoryPredictionStore) Keys(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].LocationKey != keys[j].LocationKey {
			return keys[i].LocationKey < keys[j].LocationKey
		}
		return keys[i].Keyword < keys[j].Keyword
	})
}

func clonePrediction(p SearchPrediction) SearchPrediction {
	factors := make([]PerformanceFactor, len(p.Factors))
	copy(factors, p.Factors)
	p.Factors = factors

	recs := make([]Recommendation, len(p.Recommendations))
	copy(recs, p.Recommendations)
	p.Recommendations = recs
	return p
}

// MemoryTrendStore is an in-memory TrendStore
type MemoryTrendStore struct {
	mu     sync.RWMutex
	trends map[string][]LocalSearchTrend
}

// NewMemoryTrendStore creates an empty store
func NewMemoryTrendStore() *MemoryTrendStore {
	return &MemoryTrendStore{trends: make(map[string][]LocalSearchTrend)}
}

// Put stores the trend, replacing a trend with the same ID
func (s *MemoryTrendStore) Put(_ context.Context, t LocalSearchTrend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.trends[t.LocationKey]
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			return nil
		}
	}
	s.trends[t.LocationKey] = append(list, t)
	return nil
}

func (s *MemoryTrendStore) List(_ context.Context, locationKey string) ([]LocalSearchTrend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LocalSearchTrend{}, s.trends[locationKey]...), nil
}

// DeleteExpired removes trends that expired before the given time
func (s *MemoryTrendStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for loc, list := range s.trends {
		kept := list[:0]
		for _, t := range list {
			if t.ExpiresAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.trends, loc)
		} else {
			s.trends[loc] = kept
		}
	}
	return removed, nil
}

// MemoryScenarioStore is an in-memory ScenarioStore
type MemoryScenarioStore struct {
	mu        sync.RWMutex
	scenarios map[string]PerformanceScenario
}

// NewMemoryScenarioStore creates an empty store
func NewMemoryScenarioStore() *MemoryScenarioStore {
	return &MemoryScenarioStore{scenarios: make(map[string]PerformanceScenario)}
}

func (s *MemoryScenarioStore) Put(_ context.Context, sc PerformanceScenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[sc.ID] = sc
	return nil
}

func (s *MemoryScenarioStore) Get(_ context.Context, id string) (PerformanceScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return PerformanceScenario{}, newNotFound("scenario", id)
	}
	return sc, nil
}

func (s *MemoryScenarioStore) List(_ context.Context, locationKey string) ([]PerformanceScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PerformanceScenario, 0)
	for _, sc := range s.scenarios {
		if sc.LocationKey == locationKey {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
