package middleware

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderTenantID is the header key for tenant ID
	HeaderTenantID = "X-Tenant-ID"
	// HeaderUserID is the header key for user ID
	HeaderUserID = "X-User-ID"
	// HeaderPlatform marks a platform-level caller
	HeaderPlatform = "X-Platform"
)

// Context attaches request metadata to the request context. Identity headers are only honored
// when trustIdentityHeaders is set, which is the case when token authentication is disabled.
func Context(trustIdentityHeaders bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetUserAgent(ctx, req.UserAgent())

			if trustIdentityHeaders {
				ctx = context.SetTenantID(ctx, req.Header.Get(HeaderTenantID))
				ctx = context.SetUserID(ctx, req.Header.Get(HeaderUserID))
				platform, _ := strconv.ParseBool(req.Header.Get(HeaderPlatform))
				ctx = context.SetPlatform(ctx, platform)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
