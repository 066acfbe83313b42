package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const verifyTimeout = 5 * time.Second

type UserClaims struct {
	Sub         string `json:"sub"`
	Email       string `json:"email"`
	TenantID    string `json:"tenant_id"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*UserClaims, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (*UserClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims UserClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("cannot parse claims: %w", err)
	}
	return &claims, nil
}

// NewOIDCVerifier discovers the issuer and returns a verifier for clientID tokens
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	return &oidcVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Authentication requires a valid bearer token. The token's subject becomes the user, its tenant_id
// claim the active tenant, and holding platformRole makes the caller a platform caller.
func Authentication(logger ectologger.Logger, verifier TokenVerifier, platformRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			raw := strings.TrimPrefix(auth, "Bearer ")
			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			defer cancel()

			claims, err := verifier.Verify(verifyCtx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx = appctx.SetUserID(ctx, claims.Sub)
			ctx = appctx.SetTenantID(ctx, claims.TenantID)
			ctx = appctx.SetPlatform(ctx, platformRole != "" && slices.Contains(claims.RealmAccess.Roles, platformRole))

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
