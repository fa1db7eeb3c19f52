package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

type InstanceHandler struct {
	*BaseHandler
	gateway   ports.WhatsAppGateway
	instances ports.InstanceRepository
}

func NewInstanceHandler(log *logger.Logger, gateway ports.WhatsAppGateway, instances ports.InstanceRepository) *InstanceHandler {
	return &InstanceHandler{
		BaseHandler: NewBaseHandler(log),
		gateway:     gateway,
		instances:   instances,
	}
}

func (h *InstanceHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	list, err := h.instances.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list instances: " + err.Error())
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}

	h.writeSuccessResponse(w, list, "")
}

func (h *InstanceHandler) ConnectInstance(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	if instance == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Instance name is required")
		return
	}

	if err := h.gateway.Connect(r.Context(), instance); err != nil {
		h.logger.ErrorWithFields("Failed to connect instance", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to connect instance")
		return
	}

	h.writeSuccessResponse(w, h.gateway.ConnectionStatus(instance), "Connection started")
}

func (h *InstanceHandler) DisconnectInstance(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	if err := h.gateway.Disconnect(instance); err != nil {
		if errors.Is(err, ports.ErrInstanceNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Instance not found")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to disconnect instance")
		return
	}

	h.writeSuccessResponse(w, nil, "Instance disconnected")
}

func (h *InstanceHandler) LogoutInstance(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	if err := h.gateway.Logout(r.Context(), instance); err != nil {
		if errors.Is(err, ports.ErrInstanceNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Instance not found")
			return
		}
		h.logger.ErrorWithFields("Failed to logout instance", map[string]interface{}{
			"instance": instance,
			"error":    err.Error(),
		})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to logout instance")
		return
	}

	h.writeSuccessResponse(w, nil, "Instance logged out")
}

func (h *InstanceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	status := h.gateway.ConnectionStatus(instance)
	if status == nil {
		h.writeErrorResponse(w, http.StatusNotFound, "Instance not found")
		return
	}

	h.writeSuccessResponse(w, status, "")
}

func (h *InstanceHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	if instance == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Instance name is required")
		return
	}

	// The QR code arrives asynchronously after the connect attempt, so a
	// miss here usually means the caller should retry in a moment.
	qr, err := h.gateway.GetQRCode(r.Context(), instance)
	if err != nil || qr == nil || qr.Code == "" {
		h.writeErrorResponse(w, http.StatusNotFound, "No QR code available yet. Retry shortly, or the instance may already be logged in")
		return
	}

	h.writeSuccessResponse(w, qr, "")
}

func (h *InstanceHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	if err := h.gateway.Disconnect(instance); err != nil && !errors.Is(err, ports.ErrInstanceNotFound) {
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to disconnect instance")
		return
	}

	if err := h.instances.DeleteByName(r.Context(), instance); err != nil {
		if errors.Is(err, ports.ErrInstanceNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "Instance not found")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to delete instance")
		return
	}

	h.writeSuccessResponse(w, nil, "Instance deleted")
}
