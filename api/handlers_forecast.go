package api

import (
	"net/http"

	"localsearch-forecast/engine"
)

const defaultForecastMonths = 3

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	months, ok := getIntParam(r, "months", defaultForecastMonths)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "months must be a number", nil)
		return
	}

	result, err := s.engine.Forecast(r.Context(), r.PathValue("location"), months)
	if err != nil {
		s.respondWithEngineError(w, "Forecast failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req engine.ScenarioRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	scenario, err := s.engine.CreateScenario(r.Context(), r.PathValue("location"), req)
	if err != nil {
		s.respondWithEngineError(w, "Scenario failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, scenario)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.engine.ListScenarios(r.Context(), r.PathValue("location"))
	if err != nil {
		s.respondWithEngineError(w, "Failed to list scenarios", err)
		return
	}
	if scenarios == nil {
		scenarios = []engine.PerformanceScenario{}
	}
	respondJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scenario, err := s.engine.GetScenario(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondWithEngineError(w, "Scenario not available", err)
		return
	}
	respondJSON(w, http.StatusOK, scenario)
}
