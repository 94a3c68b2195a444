package database

import "time"

// Connection pool settings for PostgreSQL
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 10
	ConnMaxLifetime = 5 * time.Minute
	ConnMaxIdleTime = 2 * time.Minute
)

// Query limits
const (
	DefaultLimit       = 50
	MaxLimit           = 500
	WebhookLogLookback = 7 * 24 * time.Hour
)

// Webhook delivery statuses
const (
	DeliverySuccess = "SUCCESS"
	DeliveryFailed  = "FAILED"
)
