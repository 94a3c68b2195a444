package api

import (
	"net/http"
)

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Registry().ListModels())
}

func (s *Server) handleSetModelActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	model, err := s.engine.Registry().SetActive(r.PathValue("id"), *req.Active)
	if err != nil {
		s.respondWithEngineError(w, "Failed to update model", err)
		return
	}
	s.logger.WithField("model", model.ID).WithField("active", model.Active).Info("🔁 Model activation changed")
	respondJSON(w, http.StatusOK, model)
}
