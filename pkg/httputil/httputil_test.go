package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
	"github.com/utafrali/catalogue-search/pkg/logger"
	"github.com/utafrali/catalogue-search/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, map[string]int{"totalCount": 2})

	var body map[string]map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body["data"]["totalCount"])
}

func TestNewListResponse(t *testing.T) {
	empty := NewListResponse[string](nil)
	assert.NotNil(t, empty.Data)
	assert.Zero(t, empty.Count)

	list := NewListResponse([]string{"a", "b"})
	assert.Equal(t, 2, list.Count)
}

func TestWriteError_AppErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("reindex run", "42"), http.StatusNotFound, "NOT_FOUND"},
		{"invalid", apperrors.InvalidInput("tenant is required"), http.StatusBadRequest, "INVALID_INPUT"},
		{"conflict", apperrors.Conflict("already running"), http.StatusConflict, "CONFLICT"},
		{"unprocessable", apperrors.Unprocessable("bad tree"), http.StatusUnprocessableEntity, "UNPROCESSABLE"},
		{"bad gateway", apperrors.BadGateway("fetch failed"), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{"unavailable", apperrors.Unavailable("engine down"), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"wrapped", fmt.Errorf("handler: %w", apperrors.Conflict("busy")), http.StatusConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/catalogue/reindex", nil)

			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestWriteError_SentinelInvalidInput(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, fmt.Errorf("decode body: %w", apperrors.ErrInvalidInput), testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.Contains(t, resp.Message, "decode body")
}

func TestWriteError_ValidationFields(t *testing.T) {
	type body struct {
		Tenant string `json:"tenant" validate:"required"`
	}
	err := validator.Validate(body{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Fields, "tenant")
}

func TestWriteError_UnknownErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: secret detail"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.NotContains(t, resp.Message, "secret")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.NotFound("reindex run", "x"), testLogger())

	assert.Equal(t, "corr-42", decodeError(t, rec).RequestID)
}

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "6f1c2b9e-3c1a-4b8e-9d6f-2a7c5e4b1d00")
	assert.True(t, ok)
	assert.Equal(t, "6f1c2b9e-3c1a-4b8e-9d6f-2a7c5e4b1d00", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeError(t, rec).Code)
}
