package dto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := map[string]int{
		ErrCodeInternal:             http.StatusInternalServerError,
		ErrCodeValidation:           http.StatusBadRequest,
		ErrCodeUnauthorized:         http.StatusUnauthorized,
		ErrCodeForbidden:            http.StatusForbidden,
		ErrCodeNotFound:             http.StatusNotFound,
		ErrCodeConflict:             http.StatusConflict,
		ErrCodeInvalidState:         http.StatusUnprocessableEntity,
		ErrCodeRateLimited:          http.StatusTooManyRequests,
		ErrCodeChannelUnavailable:   http.StatusBadGateway,
		ErrCodeChannelRateLimited:   http.StatusServiceUnavailable,
		ErrCodeUnsupportedOperation: http.StatusUnprocessableEntity,
		ErrCodeUpstreamTimeout:      http.StatusGatewayTimeout,
		"ERR_SOMETHING_NEW":         http.StatusInternalServerError,
		"":                          http.StatusInternalServerError,
		"INVALID_AMOUNT":            http.StatusBadRequest,
		"PRODUCT_NOT_FOUND":         http.StatusNotFound,
		"STATEMENT_NOT_GENERATED":   http.StatusNotFound,
		"HOLD_NOT_EXPIRED":          http.StatusUnprocessableEntity,
		"CURRENCY_MISMATCH":         http.StatusUnprocessableEntity,
	}
	for code, want := range tests {
		assert.Equal(t, want, GetHTTPStatus(code), "code %q", code)
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
	assert.Equal(t, ErrCodeConflict, NormalizeErrorCode("ALREADY_EXISTS"))
	assert.Equal(t, ErrCodeConflict, NormalizeErrorCode("CONCURRENCY_CONFLICT"))
	assert.Equal(t, ErrCodeInvalidState, NormalizeErrorCode("INVALID_STATE"))
	assert.Equal(t, "INVALID_PERIOD", NormalizeErrorCode("INVALID_PERIOD"))
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
}

func TestCodeTables(t *testing.T) {
	for code, status := range codeStatus {
		assert.True(t, strings.HasPrefix(code, "ERR_"), code)
		assert.GreaterOrEqual(t, status, 400, code)
	}
	for generic, mapped := range genericCodes {
		_, ok := codeStatus[mapped]
		assert.True(t, ok, "%s maps to unregistered %s", generic, mapped)
	}
}

func TestErrorResponses(t *testing.T) {
	before := time.Now()
	plain := NewErrorResponse("NOT_FOUND", "Relay not found")
	traced := NewErrorResponseWithRequestID(ErrCodeConflict, "Batch already open", "req-7f3a")
	helped := NewErrorResponseWithHelp(ErrCodeUnauthorized, "Token expired", "req-7f3b", "/docs/auth")
	invalid := NewValidationErrorResponse("Invalid relay", "req-7f3c", []ValidationDetail{
		{Field: "supplier_id", Message: "required"},
		{Field: "lines", Message: "at least one line"},
	})

	for _, resp := range []Response{plain, traced, helped, invalid} {
		require.NotNil(t, resp.Error)
		assert.False(t, resp.Success)
		assert.Nil(t, resp.Data)
		assert.False(t, resp.Error.Timestamp.Before(before))
	}

	assert.Equal(t, ErrCodeNotFound, plain.Error.Code)
	assert.Empty(t, plain.Error.RequestID)
	assert.Equal(t, "req-7f3a", traced.Error.RequestID)
	assert.Equal(t, "/docs/auth", helped.Error.Help)
	assert.Equal(t, ErrCodeValidation, invalid.Error.Code)
	require.Len(t, invalid.Error.Details, 2)
	assert.Equal(t, "lines", invalid.Error.Details[1].Field)

	data, err := json.Marshal(invalid)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, false, wire["success"])
	assert.NotContains(t, wire, "data")
	assert.Equal(t, "req-7f3c", wire["error"].(map[string]any)["request_id"])
}

func TestSuccessResponses(t *testing.T) {
	one := NewSuccessResponse(map[string]string{"relay_no": "RL-1"})
	assert.True(t, one.Success)
	assert.Nil(t, one.Error)
	assert.Nil(t, one.Meta)

	cases := []struct {
		total            int64
		pageSize         int
		wantSize, wantPg int
	}{
		{total: 0, pageSize: 10, wantSize: 10, wantPg: 0},
		{total: 9, pageSize: 10, wantSize: 10, wantPg: 1},
		{total: 40, pageSize: 10, wantSize: 10, wantPg: 4},
		{total: 41, pageSize: 10, wantSize: 10, wantPg: 5},
		{total: 41, pageSize: 0, wantSize: 20, wantPg: 3},
		{total: 41, pageSize: -3, wantSize: 20, wantPg: 3},
	}
	for _, tc := range cases {
		resp := NewSuccessResponseWithMeta([]string{}, tc.total, 2, tc.pageSize)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, tc.total, resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, tc.wantSize, resp.Meta.PageSize, "total=%d size=%d", tc.total, tc.pageSize)
		assert.Equal(t, tc.wantPg, resp.Meta.TotalPages, "total=%d size=%d", tc.total, tc.pageSize)
	}
}

func TestResolveError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"wrapped already exists", fmt.Errorf("save: %w", shared.ErrAlreadyExists), http.StatusConflict, ErrCodeConflict},
		{"validation code", shared.NewDomainError("INVALID_PERIOD", "Period end must be after start"), http.StatusBadRequest, "INVALID_PERIOD"},
		{"business rule", shared.NewDomainError("CURRENCY_MISMATCH", "mismatch"), http.StatusUnprocessableEntity, "CURRENCY_MISMATCH"},
		{"channel unavailable", fmt.Errorf("poll: %w", channel.ErrChannelUnavailable), http.StatusBadGateway, ErrCodeChannelUnavailable},
		{"channel throttled", channel.ErrRateLimited, http.StatusServiceUnavailable, ErrCodeChannelRateLimited},
		{"unknown connector", channel.ErrConnectorNotFound, http.StatusBadRequest, ErrCodeUnsupportedChannel},
		{"supplier rejected", fmt.Errorf("%w: 400", relay.ErrSupplierRejected), http.StatusBadGateway, ErrCodeSupplierRejected},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, info, ok := ResolveError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, info.Code)
		})
	}
}

func TestResolveError_StateConflictCarriesCurrentState(t *testing.T) {
	err := fmt.Errorf("close: %w", shared.NewStateConflictError("SettlementBatch", "close", "PAID"))

	status, info, ok := ResolveError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, ErrCodeInvalidState, info.Code)
	assert.Equal(t, "PAID", info.CurrentState)
	assert.Equal(t, "Cannot close SettlementBatch in PAID status", info.Message)
	require.Len(t, info.Details, 1)
	assert.Equal(t, "current_state", info.Details[0].Field)
}

func TestResolveError_Unclassified(t *testing.T) {
	status, info, ok := ResolveError(errors.New("connection reset"))
	assert.False(t, ok)
	assert.Nil(t, info)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestListRequest_Normalize(t *testing.T) {
	req := ListRequest{}
	req.Normalize()
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 20, req.PageSize)
}
