package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"localsearch-forecast/database"
	"localsearch-forecast/engine"
)

// handleHealth reports the status of every registered dependency
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{"status": status, "dependencies": deps})
}

// Configuration Handlers (Webhooks Only)

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.webhookRepo.GetWebhooks(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load webhooks", err)
		return
	}
	if webhooks == nil {
		webhooks = []database.Webhook{}
	}
	respondJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	webhook := database.Webhook{IsActive: true, RetryCount: 3, RetryDelaySeconds: 5, TimeoutSeconds: 10}
	if !decodeAndValidate(w, r, &webhook) {
		return
	}

	// Reset ID to let DB assign it
	webhook.ID = 0
	if err := s.webhookRepo.SaveWebhook(r.Context(), &webhook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save webhook", err)
		return
	}
	s.refreshWebhooks(r.Context())

	respondJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	existing, err := s.webhookRepo.GetWebhookByID(r.Context(), id)
	if err != nil {
		s.respondWithWebhookError(w, err)
		return
	}

	webhook := *existing
	if !decodeAndValidate(w, r, &webhook) {
		return
	}

	webhook.ID = id // Ensure ID matches path
	if err := s.webhookRepo.SaveWebhook(r.Context(), &webhook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save webhook", err)
		return
	}
	s.refreshWebhooks(r.Context())

	respondJSON(w, http.StatusOK, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	if err := s.webhookRepo.DeleteWebhook(r.Context(), id); err != nil {
		s.respondWithWebhookError(w, err)
		return
	}
	s.refreshWebhooks(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWebhookLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}
	limit, ok := getIntParam(r, "limit", database.DefaultLimit)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "limit must be a number", nil)
		return
	}

	logs, err := s.webhookRepo.GetWebhookLogs(r.Context(), id, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load webhook logs", err)
		return
	}
	if logs == nil {
		logs = []database.WebhookLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) refreshWebhooks(ctx context.Context) {
	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache(ctx)
	}
}

func (s *Server) respondWithWebhookError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Webhook not found", nil)
		return
	}
	respondWithError(w, http.StatusInternalServerError, "Webhook operation failed", err)
}
