package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"

	ErrorCodeUpstreamAuth    ErrorCode = "upstream_authentication_failed"
	ErrorCodeHarvestAborted  ErrorCode = "harvest_aborted"
	ErrorCodeStateUnreadable ErrorCode = "state_unreadable"
	ErrorCodeHarvestBusy     ErrorCode = "harvest_unavailable"
	ErrorCodeRunlogDisabled  ErrorCode = "run_history_disabled"
)

// APIError is the JSON error body returned by every route.
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	StatusCode int       `json:"-"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAPIError is a constructor for APIError.
func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// classify maps a harvest error to the response the caller should see.
func classify(err error) APIError {
	var (
		authErr  *models.AuthenticationError
		aborted  *models.HarvestAbortedError
		stateErr *models.StateReadError
	)
	switch {
	case errors.As(err, &authErr):
		return NewAPIError(ErrorCodeUpstreamAuth, "upstream rejected the configured credentials", err.Error(), http.StatusBadGateway)
	case errors.As(err, &aborted):
		return NewAPIError(ErrorCodeHarvestAborted, "harvest aborted before completion", gin.H{
			"last_page":     aborted.LastPage,
			"last_page_url": aborted.LastURL,
			"error":         err.Error(),
		}, http.StatusBadGateway)
	case errors.As(err, &stateErr):
		return NewAPIError(ErrorCodeStateUnreadable, "incremental state could not be read", err.Error(), http.StatusInternalServerError)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewAPIError(ErrorCodeHarvestBusy, "harvest did not complete in time", err.Error(), http.StatusServiceUnavailable)
	default:
		return NewAPIError(ErrorCodeInternalServerError, err.Error(), nil, http.StatusInternalServerError)
	}
}

func abortWithError(c *gin.Context, apiErr APIError) {
	_ = c.Error(apiErr)
	c.AbortWithStatusJSON(apiErr.StatusCode, apiErr)
}
