package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/travelplanner/internal/common"
)

// APIError is the body of every error response, wrapped as {"error": ...}.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	errBadRequest = &APIError{Code: "bad_request", Message: "invalid request body", Status: http.StatusBadRequest}
	errAuth       = &APIError{Code: "unauthorized", Message: "authentication required", Status: http.StatusUnauthorized}
	errInternal   = &APIError{Code: "internal_error", Message: "internal server error", Status: http.StatusInternalServerError}
)

// toAPIError maps service errors to HTTP status codes. Token failures share
// one generic message so the client cannot tell expired from forged.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, common.ErrEmailAlreadyExists), errors.Is(err, common.ErrorAlreadyExists):
		return &APIError{Code: "email_already_exists", Message: common.ErrEmailAlreadyExists.Error(), Status: http.StatusConflict}
	case errors.Is(err, common.ErrInvalidCredentials):
		return &APIError{Code: "invalid_credentials", Message: common.ErrInvalidCredentials.Error(), Status: http.StatusUnauthorized}
	case errors.Is(err, common.ErrInvalidProviderToken):
		return &APIError{Code: "invalid_provider_token", Message: common.ErrInvalidProviderToken.Error(), Status: http.StatusUnauthorized}
	case errors.Is(err, common.ErrProviderUnavailable):
		return &APIError{Code: "provider_unavailable", Message: common.ErrProviderUnavailable.Error(), Status: http.StatusServiceUnavailable}
	case errors.Is(err, common.ErrRefreshTokenRevoked):
		return &APIError{Code: "session_revoked", Message: common.ErrRefreshTokenRevoked.Error(), Status: http.StatusUnauthorized}
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenSignatureInvalid),
		errors.Is(err, common.ErrTokenKindMismatch),
		errors.Is(err, common.ErrUnauthorized):
		return errAuth
	case errors.Is(err, common.ErrForbidden):
		return &APIError{Code: "forbidden", Message: "insufficient role", Status: http.StatusForbidden}
	case errors.Is(err, common.ErrValidation):
		return &APIError{Code: "validation_error", Message: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, common.ErrorNotFound):
		return &APIError{Code: "not_found", Message: "resource not found", Status: http.StatusNotFound}
	default:
		return errInternal
	}
}
