package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inventory/internal/domain"
	"inventory/internal/http/middleware"
)

// retryAfterSeconds is advertised on 503 so clients back off before retrying.
const retryAfterSeconds = 1

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error            string   `json:"error"`
	Code             string   `json:"code"`
	Message          string   `json:"message"`
	RequestID        string   `json:"request_id,omitempty"`
	UnavailableDates []string `json:"unavailableDates,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, dates []string) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:            code,
		Code:             code,
		Message:          message,
		RequestID:        middleware.GetRequestID(c),
		UnavailableDates: dates,
	})
}

// StatusFor maps a domain error class to its HTTP status.
func StatusFor(err error) int {
	switch {
	case domain.IsInvalidRange(err), domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsCapacityExceeded(err), domain.IsInvalidState(err), domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsStorageUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	status := StatusFor(err)
	code := domain.Code(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		message = "penyimpanan sedang tidak tersedia, silakan coba lagi"
	case http.StatusInternalServerError:
		message = "terjadi kesalahan"
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respondError(c, status, code, message, domain.UnavailableDates(err))
}
