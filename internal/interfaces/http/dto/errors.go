package dto

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
)

// Codes returned in ErrorInfo.Code. Domain errors keep their own code
// (INVALID_PERIOD, CURRENCY_MISMATCH, ...) unless it is one of the generic
// codes in genericCodes.
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeConflict     = "ERR_CONFLICT"
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"

	// Marketplace channels and suppliers
	ErrCodeChannelUnavailable   = "ERR_CHANNEL_UNAVAILABLE"
	ErrCodeChannelRateLimited   = "ERR_CHANNEL_RATE_LIMITED"
	ErrCodeChannelAuthFailed    = "ERR_CHANNEL_AUTH_FAILED"
	ErrCodeUnsupportedChannel   = "ERR_UNSUPPORTED_CHANNEL"
	ErrCodeUnsupportedOperation = "ERR_UNSUPPORTED_OPERATION"
	ErrCodeSupplierUnavailable  = "ERR_SUPPLIER_UNAVAILABLE"
	ErrCodeSupplierRejected     = "ERR_SUPPLIER_REJECTED"
	ErrCodeUpstreamTimeout      = "ERR_UPSTREAM_TIMEOUT"
)

var codeStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	ErrCodeChannelUnavailable:   http.StatusBadGateway,
	ErrCodeChannelRateLimited:   http.StatusServiceUnavailable,
	ErrCodeChannelAuthFailed:    http.StatusBadGateway,
	ErrCodeUnsupportedChannel:   http.StatusBadRequest,
	ErrCodeUnsupportedOperation: http.StatusUnprocessableEntity,
	ErrCodeSupplierUnavailable:  http.StatusBadGateway,
	ErrCodeSupplierRejected:     http.StatusBadGateway,
	ErrCodeUpstreamTimeout:      http.StatusGatewayTimeout,
}

// genericCodes are the shared.DomainError codes that map onto an ERR_ code
var genericCodes = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeConflict,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"FORBIDDEN":            ErrCodeForbidden,
	"INTERNAL":             ErrCodeInternal,
}

// NormalizeErrorCode maps a generic domain code to its ERR_ form and returns
// any other code unchanged
func NormalizeErrorCode(code string) string {
	if mapped, ok := genericCodes[code]; ok {
		return mapped
	}
	return code
}

// GetHTTPStatus returns the status for code. Domain codes are classified by
// shape: INVALID_* is 400, *_NOT_FOUND and *_NOT_GENERATED are 404, the rest
// are 422. An unregistered ERR_ code is a 500.
func GetHTTPStatus(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	switch {
	case code == "", strings.HasPrefix(code, "ERR_"):
		return http.StatusInternalServerError
	case strings.HasPrefix(code, "INVALID_"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "_NOT_FOUND"), strings.HasSuffix(code, "_NOT_GENERATED"):
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

// ResolveError classifies err into an HTTP status and error payload. ok is
// false for errors that carry no client-facing meaning; callers answer those
// with a generic internal error.
func ResolveError(err error) (status int, info *ErrorInfo, ok bool) {
	if sc, isConflict := shared.IsStateConflict(err); isConflict {
		info := newErrorInfo(ErrCodeInvalidState, sc.Error())
		info.Details = []ValidationDetail{{Field: "current_state", Message: sc.CurrentState}}
		info.CurrentState = sc.CurrentState
		return http.StatusUnprocessableEntity, info, true
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := NormalizeErrorCode(domainErr.Code)
		return GetHTTPStatus(code), newErrorInfo(code, domainErr.Message), true
	}

	code := upstreamCode(err)
	if code == "" {
		return http.StatusInternalServerError, nil, false
	}
	return GetHTTPStatus(code), newErrorInfo(code, err.Error()), true
}

func upstreamCode(err error) string {
	switch {
	case errors.Is(err, channel.ErrConnectorNotFound):
		return ErrCodeUnsupportedChannel
	case errors.Is(err, channel.ErrUnsupportedOperation):
		return ErrCodeUnsupportedOperation
	case errors.Is(err, channel.ErrRateLimited):
		return ErrCodeChannelRateLimited
	case errors.Is(err, channel.ErrAuthFailed):
		return ErrCodeChannelAuthFailed
	case errors.Is(err, channel.ErrChannelUnavailable),
		errors.Is(err, channel.ErrRequestFailed),
		errors.Is(err, channel.ErrInvalidResponse):
		return ErrCodeChannelUnavailable
	case errors.Is(err, relay.ErrSupplierRejected):
		return ErrCodeSupplierRejected
	case errors.Is(err, relay.ErrSupplierUnavailable):
		return ErrCodeSupplierUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeUpstreamTimeout
	default:
		return ""
	}
}
