package api

import (
	"net/http"
	"time"

	"localsearch-forecast/engine"
)

type trendRequest struct {
	TrendType        engine.TrendType                `json:"trend_type" validate:"required,oneof=seasonal competitive algorithm market"`
	Impact           engine.TrendImpact              `json:"impact" validate:"required,oneof=positive negative neutral"`
	Strength         float64                         `json:"strength" validate:"gte=0,lte=1"`
	Duration         string                          `json:"duration" validate:"required,max=50"`
	AffectedKeywords []string                        `json:"affected_keywords" validate:"dive,required"`
	KeywordEffects   map[string]engine.KeywordEffect `json:"keyword_effects"`
	DetectedAt       *time.Time                      `json:"detected_at,omitempty"`
}

func (s *Server) handleAnalyzeTrends(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.engine.AnalyzeTrends(r.Context(), r.PathValue("location"))
	if err != nil {
		s.respondWithEngineError(w, "Failed to analyze trends", err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleRecordTrend(w http.ResponseWriter, r *http.Request) {
	var req trendRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	trend := engine.LocalSearchTrend{
		LocationKey:      r.PathValue("location"),
		TrendType:        req.TrendType,
		Impact:           req.Impact,
		Strength:         req.Strength,
		Duration:         req.Duration,
		AffectedKeywords: req.AffectedKeywords,
		KeywordEffects:   req.KeywordEffects,
	}
	if req.DetectedAt != nil {
		trend.DetectedAt = *req.DetectedAt
	}

	recorded, err := s.engine.RecordTrend(r.Context(), trend)
	if err != nil {
		s.respondWithEngineError(w, "Failed to record trend", err)
		return
	}
	respondJSON(w, http.StatusCreated, recorded)
}
