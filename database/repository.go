package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"localsearch-forecast/engine"
)

// InitSchema creates or updates all tables
func InitSchema(d *Database) error {
	err := d.db.AutoMigrate(
		&PredictionRow{},
		&TrendRow{},
		&ScenarioRow{},
		&Webhook{},
		&WebhookLog{},
	)
	if err != nil {
		return WrapDBError("InitSchema", err)
	}
	return nil
}

// PredictionRepository implements engine.PredictionStore
type PredictionRepository struct {
	db *Database
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *Database) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// predictionUpdateColumns are overwritten when a newer prediction supersedes the stored one
var predictionUpdateColumns = []string{
	"current_position", "predicted_position", "confidence", "time_frame", "factors",
	"probability", "recommendations", "model_id", "trend_adjustment", "current_traffic",
	"conversion_rate", "predicted_at",
}

// Put upserts the prediction on (location_key, keyword)
func (r *PredictionRepository) Put(ctx context.Context, p engine.SearchPrediction) error {
	row := predictionToRow(p)
	err := r.db.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location_key"}, {Name: "keyword"}},
		DoUpdates: clause.AssignmentColumns(predictionUpdateColumns),
	}).Create(&row).Error
	return WrapDBError("PutPrediction", err)
}

// Get returns the stored prediction for the key
func (r *PredictionRepository) Get(ctx context.Context, key engine.Key) (engine.SearchPrediction, error) {
	var row PredictionRow
	err := r.db.db.WithContext(ctx).
		Where("location_key = ? AND keyword = ?", key.LocationKey, key.Keyword).
		First(&row).Error
	if err != nil {
		return engine.SearchPrediction{}, lookupError("GetPrediction", "prediction", key.String(), err)
	}
	return row.toPrediction(), nil
}

// List returns every prediction of the location ordered by keyword
func (r *PredictionRepository) List(ctx context.Context, locationKey string) ([]engine.SearchPrediction, error) {
	var rows []PredictionRow
	err := r.db.db.WithContext(ctx).
		Where("location_key = ?", locationKey).
		Order("keyword ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("ListPredictions", err)
	}

	out := make([]engine.SearchPrediction, len(rows))
	for i, row := range rows {
		out[i] = row.toPrediction()
	}
	return out, nil
}

// Keys returns every stored key ordered by location and keyword
func (r *PredictionRepository) Keys(ctx context.Context) ([]engine.Key, error) {
	var keys []engine.Key
	err := r.db.db.WithContext(ctx).
		Model(&PredictionRow{}).
		Select("location_key, keyword").
		Order("location_key ASC, keyword ASC").
		Scan(&keys).Error
	if err != nil {
		return nil, WrapDBError("PredictionKeys", err)
	}
	return keys, nil
}

// TrendRepository implements engine.TrendStore
type TrendRepository struct {
	db *Database
}

// NewTrendRepository creates a new trend repository
func NewTrendRepository(db *Database) *TrendRepository {
	return &TrendRepository{db: db}
}

// Put inserts or replaces the trend by ID
func (r *TrendRepository) Put(ctx context.Context, t engine.LocalSearchTrend) error {
	row := trendToRow(t)
	err := r.db.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return WrapDBError("PutTrend", err)
}

// List returns the trends of the location ordered by detection time
func (r *TrendRepository) List(ctx context.Context, locationKey string) ([]engine.LocalSearchTrend, error) {
	var rows []TrendRow
	err := r.db.db.WithContext(ctx).
		Where("location_key = ?", locationKey).
		Order("detected_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("ListTrends", err)
	}

	out := make([]engine.LocalSearchTrend, len(rows))
	for i, row := range rows {
		out[i] = row.toTrend()
	}
	return out, nil
}

// DeleteExpired removes trends that expired before the given time
func (r *TrendRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.db.WithContext(ctx).
		Where("expires_at < ?", before.UTC()).
		Delete(&TrendRow{})
	if result.Error != nil {
		return 0, WrapDBError("DeleteExpiredTrends", result.Error)
	}
	return result.RowsAffected, nil
}

// ScenarioRepository implements engine.ScenarioStore
type ScenarioRepository struct {
	db *Database
}

// NewScenarioRepository creates a new scenario repository
func NewScenarioRepository(db *Database) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// Put stores the scenario
func (r *ScenarioRepository) Put(ctx context.Context, s engine.PerformanceScenario) error {
	row := scenarioToRow(s)
	err := r.db.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return WrapDBError("PutScenario", err)
}

// Get returns the scenario by ID
func (r *ScenarioRepository) Get(ctx context.Context, id string) (engine.PerformanceScenario, error) {
	var row ScenarioRow
	err := r.db.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return engine.PerformanceScenario{}, lookupError("GetScenario", "scenario", id, err)
	}
	return row.toScenario(), nil
}

// List returns the scenarios of the location, oldest first
func (r *ScenarioRepository) List(ctx context.Context, locationKey string) ([]engine.PerformanceScenario, error) {
	var rows []ScenarioRow
	err := r.db.db.WithContext(ctx).
		Where("location_key = ?", locationKey).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("ListScenarios", err)
	}

	out := make([]engine.PerformanceScenario, len(rows))
	for i, row := range rows {
		out[i] = row.toScenario()
	}
	return out, nil
}

// WebhookRepository handles webhook registrations and delivery logs
type WebhookRepository struct {
	db *Database
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *Database) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// GetActiveWebhooks retrieves all active webhooks
func (r *WebhookRepository) GetActiveWebhooks(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	err := r.db.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&webhooks).Error
	return webhooks, WrapDBError("GetActiveWebhooks", err)
}

// GetWebhooks retrieves all webhooks (active and inactive)
func (r *WebhookRepository) GetWebhooks(ctx context.Context) ([]Webhook, error) {
	var webhooks []Webhook
	err := r.db.db.WithContext(ctx).Order("id ASC").Find(&webhooks).Error
	return webhooks, WrapDBError("GetWebhooks", err)
}

// GetWebhookByID retrieves a specific webhook
func (r *WebhookRepository) GetWebhookByID(ctx context.Context, id int) (*Webhook, error) {
	var webhook Webhook
	err := r.db.db.WithContext(ctx).First(&webhook, id).Error
	if err != nil {
		return nil, lookupError("GetWebhookByID", "webhook", strconv.Itoa(id), err)
	}
	return &webhook, nil
}

// SaveWebhook creates or updates a webhook
func (r *WebhookRepository) SaveWebhook(ctx context.Context, webhook *Webhook) error {
	if webhook.Method == "" {
		webhook.Method = "POST"
	}
	return WrapDBError("SaveWebhook", r.db.db.WithContext(ctx).Save(webhook).Error)
}

// DeleteWebhook deletes a webhook
func (r *WebhookRepository) DeleteWebhook(ctx context.Context, id int) error {
	result := r.db.db.WithContext(ctx).Delete(&Webhook{}, id)
	if result.Error != nil {
		return WrapDBError("DeleteWebhook", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewNotFoundError("webhook", strconv.Itoa(id))
	}
	return nil
}

// SaveWebhookLog saves a delivery log and updates the webhook counters
func (r *WebhookRepository) SaveWebhookLog(ctx context.Context, log *WebhookLog) error {
	return r.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(log).Error; err != nil {
			return WrapDBError("SaveWebhookLog", err)
		}

		updates := map[string]interface{}{"last_triggered_at": log.TriggeredAt}
		if log.Status == DeliverySuccess {
			updates["last_success_at"] = log.TriggeredAt
			updates["last_error"] = ""
			updates["total_sent"] = gorm.Expr("total_sent + 1")
		} else {
			updates["last_error"] = log.ErrorMessage
			updates["total_failed"] = gorm.Expr("total_failed + 1")
		}
		if err := tx.Model(&Webhook{}).Where("id = ?", log.WebhookID).Updates(updates).Error; err != nil {
			return WrapDBError("UpdateWebhookCounters", err)
		}
		return nil
	})
}

// GetWebhookLogs returns recent delivery logs of a webhook, newest first
func (r *WebhookRepository) GetWebhookLogs(ctx context.Context, webhookID int, limit int) ([]WebhookLog, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	var logs []WebhookLog
	err := r.db.db.WithContext(ctx).
		Where("webhook_id = ? AND triggered_at >= ?", webhookID, time.Now().UTC().Add(-WebhookLogLookback)).
		Order("triggered_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, WrapDBError("GetWebhookLogs", fmt.Errorf("webhook %d: %w", webhookID, err))
	}
	return logs, nil
}
