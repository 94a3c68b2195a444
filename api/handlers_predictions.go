package api

import (
	"net/http"

	"localsearch-forecast/engine"
)

// maxBatchKeys bounds a single batch request
const maxBatchKeys = 500

type predictRequest struct {
	LocationKey string `json:"location_key" validate:"required,max=255"`
	Keyword     string `json:"keyword" validate:"required,max=255"`
}

type batchRequest struct {
	Keys []engine.Key `json:"keys" validate:"required,min=1,max=500,dive"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pred, err := s.engine.Predict(r.Context(), req.LocationKey, req.Keyword)
	if err != nil {
		s.respondWithEngineError(w, "Prediction failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, pred)
}

func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result := s.engine.RunBatch(r.Context(), req.Keys)
	status := http.StatusOK
	if result.Cancelled {
		status = http.StatusAccepted
	}
	respondJSON(w, status, result)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.engine.ListPredictions(r.Context(), r.PathValue("location"))
	if err != nil {
		s.respondWithEngineError(w, "Failed to list predictions", err)
		return
	}
	if preds == nil {
		preds = []engine.SearchPrediction{}
	}
	respondJSON(w, http.StatusOK, preds)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	pred, err := s.engine.LatestPrediction(r.Context(), r.PathValue("location"), r.PathValue("keyword"))
	if err != nil {
		s.respondWithEngineError(w, "Prediction not available", err)
		return
	}
	respondJSON(w, http.StatusOK, pred)
}
