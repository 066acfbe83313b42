package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok() Pinger {
	return PingFunc(func(context.Context) error { return nil })
}

func failing(msg string) Pinger {
	return PingFunc(func(context.Context) error { return errors.New(msg) })
}

func get(t *testing.T, e *echo.Echo, path string) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestChecker_Health(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Checker)
		code     int
		expected Status
	}{
		{
			name: "all healthy",
			setup: func(c *Checker) {
				c.AddCheck("database", ok())
				c.AddOptionalCheck("redis", ok())
			},
			code:     http.StatusOK,
			expected: StatusHealthy,
		},
		{
			name: "optional failure degrades",
			setup: func(c *Checker) {
				c.AddCheck("database", ok())
				c.AddOptionalCheck("redis", failing("connection refused"))
			},
			code:     http.StatusOK,
			expected: StatusDegraded,
		},
		{
			name: "required failure is unhealthy",
			setup: func(c *Checker) {
				c.AddCheck("database", failing("connection refused"))
				c.AddOptionalCheck("redis", ok())
			},
			code:     http.StatusServiceUnavailable,
			expected: StatusUnhealthy,
		},
		{
			name: "missing required dependency",
			setup: func(c *Checker) {
				c.AddCheck("database", nil)
			},
			code:     http.StatusServiceUnavailable,
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker("test")
			tt.setup(checker)
			e := echo.New()
			checker.RegisterRoutes(e)

			code, resp := get(t, e, "/api/v1/health")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.expected, resp.Status)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestChecker_Readiness(t *testing.T) {
	checker := NewChecker("test")
	checker.AddCheck("database", ok())
	e := echo.New()
	checker.RegisterRoutes(e)

	code, resp := get(t, e, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks, "startup")

	checker.SetReady(true)
	code, resp = get(t, e, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Checks["database"].Status)

	code, _ = get(t, e, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
}
