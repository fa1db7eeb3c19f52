package handlers

import (
	"net/http"

	"zapdesk/platform/logger"
)

type HealthHandler struct {
	*BaseHandler
}

func NewHealthHandler(log *logger.Logger) *HealthHandler {
	return &HealthHandler{BaseHandler: NewBaseHandler(log)}
}

func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &HealthResponse{
		Status:  "ok",
		Service: "zapdesk",
	})
}
