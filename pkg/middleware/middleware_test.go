package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/dedupe"
)

func newEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func TestContext(t *testing.T) {
	e := newEcho()
	e.GET("/whoami", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"request_id":  context.GetRequestID(ctx),
			"operator_id": context.GetOperatorID(ctx),
			"route":       context.GetRoute(ctx),
		})
	})

	t.Run("keeps incoming request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-1")
		req.Header.Set(HeaderOperatorID, "worker-7")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "req-1", body["request_id"])
		assert.Equal(t, "worker-7", body["operator_id"])
		assert.Equal(t, "/whoami", body["route"])
		assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("generates request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		meta    map[string]any
	}{
		{
			name:    "validation with meta",
			err:     dedupe.Validation("invalid resolved fields", map[string]string{"date_of_birth": "must be a date"}),
			status:  http.StatusBadRequest,
			message: "invalid resolved fields",
			meta:    map[string]any{"date_of_birth": "must be a date"},
		},
		{
			name:    "conflict",
			err:     dedupe.Conflict("pair %s is already merged", "a:b"),
			status:  http.StatusConflict,
			message: "pair a:b is already merged",
			meta:    map[string]any{},
		},
		{
			name:    "echo error",
			err:     echo.NewHTTPError(http.StatusNotFound, "route not found"),
			status:  http.StatusNotFound,
			message: "route not found",
			meta:    map[string]any{},
		},
		{
			name:    "server error hides detail",
			err:     httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert duplicate pair"),
			status:  http.StatusInternalServerError,
			message: "Internal Server Error",
			meta:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			e.GET("/fail", func(c echo.Context) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-9")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, "req-9", body.RequestID)
			assert.Equal(t, tt.meta, body.Meta)
		})
	}
}
