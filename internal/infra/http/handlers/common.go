package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"zapdesk/platform/logger"
)

var validate = validator.New()

type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Success bool        `json:"success"`
}

type ErrorResponse struct {
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error"`
	Success bool        `json:"success"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// BaseHandler carries the response helpers shared by every handler.
type BaseHandler struct {
	logger *logger.Logger
}

func NewBaseHandler(log *logger.Logger) *BaseHandler {
	return &BaseHandler{logger: log}
}

func (h *BaseHandler) writeSuccessResponse(w http.ResponseWriter, data interface{}, message string) {
	h.writeJSON(w, http.StatusOK, &SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func (h *BaseHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, &ErrorResponse{
		Success: false,
		Error:   message,
	})
}

func (h *BaseHandler) writeValidationError(w http.ResponseWriter, details interface{}) {
	h.writeJSON(w, http.StatusBadRequest, &ErrorResponse{
		Success: false,
		Error:   "Validation failed",
		Details: details,
	})
}

func (h *BaseHandler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response: " + err.Error())
	}
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation. The returned details are safe to echo back to the caller.
func (h *BaseHandler) decodeAndValidate(r *http.Request, dst interface{}) (interface{}, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errs, ok := err.(validator.ValidationErrors); ok {
			validationErrors = errs
		} else {
			return nil, err
		}

		details := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			details = append(details, fmt.Sprintf("%s failed on the '%s' rule", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
		}
		return details, fmt.Errorf("validation failed")
	}

	return nil, nil
}
