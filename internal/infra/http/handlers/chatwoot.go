package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainChatwoot "zapdesk/internal/domain/chatwoot"
	integrationChatwoot "zapdesk/internal/infra/integrations/chatwoot"
	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

type ChatwootHandler struct {
	*BaseHandler
	service  *domainChatwoot.Service
	webhooks *integrationChatwoot.WebhookHandler
}

func NewChatwootHandler(log *logger.Logger, service *domainChatwoot.Service, webhooks *integrationChatwoot.WebhookHandler) *ChatwootHandler {
	return &ChatwootHandler{
		BaseHandler: NewBaseHandler(log),
		service:     service,
		webhooks:    webhooks,
	}
}

func (h *ChatwootHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	if instance == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Instance name is required")
		return
	}

	var req domainChatwoot.CreateConfigRequest
	if details, err := h.decodeAndValidate(r, &req); err != nil {
		if details != nil {
			h.writeValidationError(w, details)
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	config, err := h.service.CreateConfig(r.Context(), instance, &req)
	if err != nil {
		if errors.Is(err, ports.ErrConfigExists) {
			h.writeErrorResponse(w, http.StatusConflict, "Chatwoot config already exists for this instance")
			return
		}
		h.logger.ErrorWithFields("Failed to create chatwoot config", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to create chatwoot config")
		return
	}

	h.provisionCommandChannel(r, instance, config)

	h.writeSuccessResponse(w, config, "Chatwoot config created successfully")
}

func (h *ChatwootHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	config, err := h.service.GetConfig(r.Context(), instance)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Chatwoot config not found")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to get chatwoot config")
		return
	}

	h.writeSuccessResponse(w, config, "")
}

func (h *ChatwootHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	var req domainChatwoot.CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	config, err := h.service.UpdateConfig(r.Context(), instance, &req)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Chatwoot config not found")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to update chatwoot config")
		return
	}

	h.provisionCommandChannel(r, instance, config)

	h.writeSuccessResponse(w, config, "Chatwoot config updated successfully")
}

// provisionCommandChannel sets up the operator command conversation as a
// side effect of saving a config. Best effort; a Chatwoot hiccup here must
// not fail the config write.
func (h *ChatwootHandler) provisionCommandChannel(r *http.Request, instance string, config *domainChatwoot.Config) {
	if !config.Enabled {
		return
	}
	if err := h.webhooks.ProvisionCommandChannel(r.Context(), instance); err != nil {
		h.logger.WarnWithFields("Failed to provision command channel", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
	}
}

func (h *ChatwootHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	if err := h.service.DeleteConfig(r.Context(), instance); err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Chatwoot config not found")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to delete chatwoot config")
		return
	}

	h.writeSuccessResponse(w, nil, "Chatwoot config deleted successfully")
}

func (h *ChatwootHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	if err := h.service.TestConnection(r.Context(), instance); err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Chatwoot config not found")
			return
		}
		h.writeErrorResponse(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeSuccessResponse(w, nil, "Chatwoot connection is working")
}

// ReceiveWebhook ingests webhook deliveries from Chatwoot. It always
// acknowledges well-formed payloads so Chatwoot does not retry events
// we chose to skip; failures are reported back into the conversation
// by the webhook handler itself.
func (h *ChatwootHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	if instance == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Instance name is required")
		return
	}

	var payload domainChatwoot.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.webhooks.ProcessWebhook(r.Context(), instance, &payload); err != nil {
		h.logger.ErrorWithFields("Failed to process chatwoot webhook", map[string]interface{}{
			"instance": instance,
			"event":    payload.Event,
			"error":    err.Error(),
		})
	}

	h.writeSuccessResponse(w, nil, "Webhook received")
}
