package database

import (
	"time"

	"localsearch-forecast/engine"
)

// PredictionRow holds the latest prediction for one (location, keyword) pair.
// The composite unique index backs the upsert in PredictionRepository.Put.
type PredictionRow struct {
	ID                int64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	LocationKey       string                     `gorm:"size:255;not null;uniqueIndex:idx_predictions_key,priority:1" json:"location_key"`
	Keyword           string                     `gorm:"size:255;not null;uniqueIndex:idx_predictions_key,priority:2" json:"keyword"`
	CurrentPosition   float64                    `gorm:"not null" json:"current_position"`
	PredictedPosition float64                    `gorm:"not null" json:"predicted_position"`
	Confidence        float64                    `gorm:"not null" json:"confidence"`
	TimeFrame         string                     `gorm:"size:50" json:"time_frame"`
	Factors           []engine.PerformanceFactor `gorm:"type:text;serializer:json" json:"factors"`
	Probability       engine.Probability         `gorm:"type:text;serializer:json" json:"probability"`
	Recommendations   []engine.Recommendation    `gorm:"type:text;serializer:json" json:"recommendations"`
	ModelID           string                     `gorm:"size:100" json:"model_id"`
	TrendAdjustment   float64                    `json:"trend_adjustment"`
	CurrentTraffic    float64                    `json:"current_traffic"`
	ConversionRate    float64                    `json:"conversion_rate"`
	PredictedAt       time.Time                  `gorm:"not null;index" json:"predicted_at"`
}

// TableName specifies the table name for PredictionRow
func (PredictionRow) TableName() string {
	return "search_predictions"
}

// TrendRow holds one recorded local search trend
type TrendRow struct {
	ID               string                          `gorm:"primaryKey;size:64" json:"id"`
	LocationKey      string                          `gorm:"size:255;not null;index" json:"location_key"`
	TrendType        string                          `gorm:"size:30;not null" json:"trend_type"`
	Impact           string                          `gorm:"size:20;not null" json:"impact"`
	Strength         float64                         `json:"strength"`
	Duration         string                          `gorm:"size:50" json:"duration"`
	AffectedKeywords []string                        `gorm:"type:text;serializer:json" json:"affected_keywords"`
	KeywordEffects   map[string]engine.KeywordEffect `gorm:"type:text;serializer:json" json:"keyword_effects"`
	DetectedAt       time.Time                       `gorm:"not null;index" json:"detected_at"`
	ExpiresAt        time.Time                       `gorm:"not null;index" json:"expires_at"`
}

// TableName specifies the table name for TrendRow
func (TrendRow) TableName() string {
	return "local_search_trends"
}

// ScenarioRow holds a what-if scenario
type ScenarioRow struct {
	ID          string                      `gorm:"primaryKey;size:64" json:"id"`
	LocationKey string                      `gorm:"size:255;not null;index" json:"location_key"`
	Name        string                      `gorm:"size:120;not null" json:"name"`
	Assumptions []engine.Assumption         `gorm:"type:text;serializer:json" json:"assumptions"`
	Predictions []engine.ScenarioPrediction `gorm:"type:text;serializer:json" json:"predictions"`
	CreatedAt   time.Time                   `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for ScenarioRow
func (ScenarioRow) TableName() string {
	return "performance_scenarios"
}

// Webhook holds a webhook registration
type Webhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name" validate:"required,max=100"`
	URL               string     `gorm:"not null" json:"url" validate:"required,url"`
	Method            string     `gorm:"size:10;default:POST" json:"method" validate:"omitempty,oneof=POST PUT"`
	AuthType          string     `gorm:"size:20" json:"auth_type" validate:"omitempty,oneof=BEARER HEADER"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header"`
	AuthValue         string     `json:"auth_value"`
	Events            string     `json:"events"`        // CSV or JSON list of event names, empty matches all
	LocationKeys      string     `json:"location_keys"` // CSV or JSON list, empty matches all
	MinDecline        *float64   `json:"min_decline,omitempty" validate:"omitempty,gte=0,lte=1"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count" validate:"gte=0,lte=10"`
	RetryDelaySeconds int        `json:"retry_delay_seconds" validate:"gte=0,lte=300"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds" validate:"gte=0,lte=120"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Webhook
func (Webhook) TableName() string {
	return "webhooks"
}

// WebhookLog holds webhook delivery logs
type WebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	Event          string    `gorm:"size:30;not null" json:"event"`
	LocationKey    string    `gorm:"size:255" json:"location_key"`
	TriggeredAt    time.Time `gorm:"index;not null" json:"triggered_at"`
	Status         string    `gorm:"size:20" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryAttempt   int       `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for WebhookLog
func (WebhookLog) TableName() string {
	return "webhook_logs"
}

func predictionToRow(p engine.SearchPrediction) PredictionRow {
	return PredictionRow{
		LocationKey:       p.LocationKey,
		Keyword:           p.Keyword,
		CurrentPosition:   p.CurrentPosition,
		PredictedPosition: p.PredictedPosition,
		Confidence:        p.Confidence,
		TimeFrame:         p.TimeFrame,
		Factors:           p.Factors,
		Probability:       p.Probability,
		Recommendations:   p.Recommendations,
		ModelID:           p.ModelID,
		TrendAdjustment:   p.TrendAdjustment,
		CurrentTraffic:    p.CurrentTraffic,
		ConversionRate:    p.ConversionRate,
		PredictedAt:       p.CreatedAt.UTC(),
	}
}

func (r PredictionRow) toPrediction() engine.SearchPrediction {
	factors := r.Factors
	for i := range factors {
		factors[i].LastUpdated = factors[i].LastUpdated.UTC()
	}
	recs := r.Recommendations
	if recs == nil {
		recs = []engine.Recommendation{}
	}
	return engine.SearchPrediction{
		LocationKey:       r.LocationKey,
		Keyword:           r.Keyword,
		CurrentPosition:   r.CurrentPosition,
		PredictedPosition: r.PredictedPosition,
		Confidence:        r.Confidence,
		TimeFrame:         r.TimeFrame,
		Factors:           factors,
		Probability:       r.Probability,
		Recommendations:   recs,
		ModelID:           r.ModelID,
		TrendAdjustment:   r.TrendAdjustment,
		CurrentTraffic:    r.CurrentTraffic,
		ConversionRate:    r.ConversionRate,
		CreatedAt:         r.PredictedAt.UTC(),
	}
}

func trendToRow(t engine.LocalSearchTrend) TrendRow {
	return TrendRow{
		ID:               t.ID,
		LocationKey:      t.LocationKey,
		TrendType:        string(t.TrendType),
		Impact:           string(t.Impact),
		Strength:         t.Strength,
		Duration:         t.Duration,
		AffectedKeywords: t.AffectedKeywords,
		KeywordEffects:   t.KeywordEffects,
		DetectedAt:       t.DetectedAt.UTC(),
		ExpiresAt:        t.ExpiresAt.UTC(),
	}
}

func (r TrendRow) toTrend() engine.LocalSearchTrend {
	return engine.LocalSearchTrend{
		ID:               r.ID,
		LocationKey:      r.LocationKey,
		TrendType:        engine.TrendType(r.TrendType),
		Impact:           engine.TrendImpact(r.Impact),
		Strength:         r.Strength,
		Duration:         r.Duration,
		AffectedKeywords: r.AffectedKeywords,
		KeywordEffects:   r.KeywordEffects,
		DetectedAt:       r.DetectedAt.UTC(),
		ExpiresAt:        r.ExpiresAt.UTC(),
	}
}

func scenarioToRow(s engine.PerformanceScenario) ScenarioRow {
	return ScenarioRow{
		ID:          s.ID,
		LocationKey: s.LocationKey,
		Name:        s.Name,
		Assumptions: s.Assumptions,
		Predictions: s.Predictions,
		CreatedAt:   s.CreatedAt.UTC(),
	}
}

func (r ScenarioRow) toScenario() engine.PerformanceScenario {
	return engine.PerformanceScenario{
		ID:          r.ID,
		LocationKey: r.LocationKey,
		Name:        r.Name,
		Assumptions: r.Assumptions,
		Predictions: r.Predictions,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}
