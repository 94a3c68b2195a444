package engine

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// DefaultSensitivity is used when a model does not declare its own sensitivity
const DefaultSensitivity = 10.0

// DefaultModel is the documented fallback weighting used when no active ranking model exists:
// every factor with its aggregator weight and DefaultSensitivity.
var DefaultModel = PredictionModel{
	ID:          "default-weighting",
	Type:        ModelRanking,
	Accuracy:    0.7,
	Active:      true,
	Sensitivity: DefaultSensitivity,
}

type registrySnapshot struct {
	models []PredictionModel
	active map[ModelType]PredictionModel
}

// Registry holds prediction models. Readers see a consistent snapshot; writers build a new
// snapshot and swap it atomically, so a prediction never observes a half-updated model.
type Registry struct {
	snapshot atomic.Pointer[registrySnapshot]
	writeMu  sync.Mutex
}

// NewRegistry creates a registry from the given models
func NewRegistry(models []PredictionModel) (*Registry, error) {
	r := &Registry{}
	if err := r.Swap(models); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultModels returns the built-in models, one active model per type
func DefaultModels() []PredictionModel {
	all := []string{
		FactorCitationConsistency, FactorReviews, FactorContentQuality,
		FactorTechnicalSEO, FactorCompetitivePosition, FactorUserBehavior,
	}
	return []PredictionModel{
		{ID: "ranking-v1", Type: ModelRanking, Accuracy: 0.82, Features: all, Active: true, Sensitivity: DefaultSensitivity, Version: "1"},
		{ID: "traffic-v1", Type: ModelTraffic, Accuracy: 0.76, Features: []string{FactorUserBehavior, FactorContentQuality}, Active: true, Version: "1"},
		{ID: "conversion-v1", Type: ModelConversion, Accuracy: 0.71, Features: []string{FactorReviews, FactorUserBehavior}, Active: true, Version: "1"},
		{ID: "competition-v1", Type: ModelCompetition, Accuracy: 0.68, Features: []string{FactorCompetitivePosition, FactorCitationConsistency}, Active: true, Version: "1"},
	}
}

type modelsFile struct {
	Models []PredictionModel `yaml:"models"`
}

// LoadModelsFile reads models from a YAML file with a top-level "models" list
func LoadModelsFile(path string) ([]PredictionModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}
	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse models file: %w", err)
	}
	return file.Models, nil
}

// GetActiveModel returns the active model of the given type or ErrModelUnavailable
func (r *Registry) GetActiveModel(t ModelType) (PredictionModel, error) {
	snap := r.snapshot.Load()
	if snap != nil {
		if m, ok := snap.active[t]; ok {
			return m, nil
		}
	}
	return PredictionModel{}, fmt.Errorf("%w: no active %s model", ErrModelUnavailable, t)
}

// ListModels returns all models sorted by type and ID
func (r *Registry) ListModels() []PredictionModel {
	snap := r.snapshot.Load()
	if snap == nil {
		return nil
	}
	out := make([]PredictionModel, len(snap.models))
	copy(out, snap.models)
	return out
}

// Swap replaces all models at once
func (r *Registry) Swap(models []PredictionModel) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap, err := buildSnapshot(models)
	if err != nil {
		return err
	}
	r.snapshot.Store(snap)
	return nil
}

// SetActive toggles a model. Activating a model deactivates the other models of its type.
func (r *Registry) SetActive(id string, active bool) (PredictionModel, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot.Load()
	if current == nil {
		return PredictionModel{}, newNotFound("model", id)
	}

	models := make([]PredictionModel, len(current.models))
	copy(models, current.models)

	idx := -1
	for i := range models {
		if models[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PredictionModel{}, newNotFound("model", id)
	}

	if active {
		for i := range models {
			if models[i].Type == models[idx].Type {
				models[i].Active = false
			}
		}
	}
	models[idx].Active = active

	snap, err := buildSnapshot(models)
	if err != nil {
		return PredictionModel{}, err
	}
	r.snapshot.Store(snap)
	return models[idx], nil
}

func buildSnapshot(models []PredictionModel) (*registrySnapshot, error) {
	snap := &registrySnapshot{
		models: make([]PredictionModel, 0, len(models)),
		active: make(map[ModelType]PredictionModel),
	}
	seen := make(map[string]bool, len(models))

	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model without id")
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true

		switch m.Type {
		case ModelRanking, ModelTraffic, ModelConversion, ModelCompetition:
		default:
			return nil, fmt.Errorf("model %q has unknown type %q", m.ID, m.Type)
		}
		if m.Accuracy < 0 || m.Accuracy > 1 {
			return nil, fmt.Errorf("model %q accuracy %.2f outside [0,1]", m.ID, m.Accuracy)
		}
		if m.Active {
			if other, ok := snap.active[m.Type]; ok {
				return nil, fmt.Errorf("models %q and %q are both active for type %s", other.ID, m.ID, m.Type)
			}
		}

		model := m
		model.Features = append([]string(nil), m.Features...)
		snap.models = append(snap.models, model)
		if model.Active {
			snap.active[model.Type] = model
		}
	}

	sort.Slice(snap.models, func(i, j int) bool {
		if snap.models[i].Type != snap.models[j].Type {
			return snap.models[i].Type < snap.models[j].Type
		}
		return snap.models[i].ID < snap.models[j].ID
	})
	return snap, nil
}
