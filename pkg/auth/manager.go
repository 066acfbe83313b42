package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrMissingRefreshToken is returned when no refresh token is stored for the integration
	ErrMissingRefreshToken = errors.New("no refresh token stored")

	// ErrEmptyAccessToken is returned when the token endpoint answers without an access token
	ErrEmptyAccessToken = errors.New("token endpoint returned an empty access token")
)

const (
	// DefaultTTL is used when the token endpoint does not report an expiry
	DefaultTTL = 30 * time.Minute

	// DefaultSkew refreshes tokens this long before they expire
	DefaultSkew = 60 * time.Second

	// CacheKeyPrefix is the prefix for access token cache keys
	CacheKeyPrefix = "fern:oauth:"
)

// Cache is the subset of the redis client the manager needs
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// OAuthConfig describes the provider's token endpoint
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// CachedToken is the cached form of an access token. It is stored encrypted.
type CachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired checks if the token is expired (with skew)
func (t *CachedToken) IsExpired(skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Add(skew).Before(t.ExpiresAt)
}

// Manager exchanges refresh tokens for access tokens and caches the result
type Manager struct {
	provider   models.Provider
	oauth      *oauth2.Config
	httpClient *http.Client
	cache      Cache
	box        *secrets.Box
	skew       time.Duration
	logger     ectologger.Logger
}

// NewManager creates a new token manager. cache may be nil, in which case every call refreshes.
func NewManager(
	provider models.Provider,
	cfg OAuthConfig,
	httpClient *http.Client,
	cache Cache,
	box *secrets.Box,
	logger ectologger.Logger,
) *Manager {
	return &Manager{
		provider: provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		cache:      cache,
		box:        box,
		skew:       DefaultSkew,
		logger:     logger,
	}
}

// AccessToken returns an access token for the integration's refresh token.
// forceRefresh drops the cached token first, so a revoked grant is always detected
// and a token the provider rejected is never served again.
func (m *Manager) AccessToken(ctx context.Context, integrationID uuid.UUID, refreshToken string, forceRefresh bool) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.AccessToken")
	defer span.End()

	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}

	key := m.cacheKey(integrationID, refreshToken)
	if forceRefresh {
		m.invalidate(ctx, key)
	} else {
		if cached, ok := m.getCachedToken(ctx, key); ok {
			metrics.AuthTokenCacheHits.WithLabelValues(string(m.provider)).Inc()
			m.logger.WithContext(ctx).WithField("integration_id", integrationID).Debug("Using cached access token")
			return cached.AccessToken, nil
		}
	}

	token, err := m.refresh(ctx, refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh(string(m.provider), "failed")
		tracing.RecordError(span, err, "token refresh failed")
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"integration_id": integrationID,
			"provider":       m.provider,
			"invalid_grant":  IsInvalidGrant(err),
		}).Warn("Access token refresh failed")
		if IsInvalidGrant(err) {
			m.invalidate(ctx, key)
		}
		return "", err
	}
	metrics.RecordTokenRefresh(string(m.provider), "success")

	if err := m.cacheToken(ctx, key, token); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Failed to cache access token")
	}

	return token.AccessToken, nil
}

// refresh exchanges the refresh token at the token endpoint
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*CachedToken, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.refresh")
	defer span.End()

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	return &CachedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		ExpiresAt:   token.Expiry,
	}, nil
}

// getCachedToken returns a usable cached token. Any cache or decrypt failure counts as a miss.
func (m *Manager) getCachedToken(ctx context.Context, key string) (*CachedToken, bool) {
	if m.cache == nil || m.box == nil {
		return nil, false
	}

	payload, err := m.cache.Get(ctx, key)
	if err != nil || payload == "" {
		return nil, false
	}

	token, err := secrets.Decrypt[CachedToken](m.box, payload)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Discarding unreadable cached access token")
		m.invalidate(ctx, key)
		return nil, false
	}

	if token.AccessToken == "" || token.IsExpired(m.skew) {
		return nil, false
	}
	return &token, true
}

// cacheToken stores the token encrypted until shortly before it expires
func (m *Manager) cacheToken(ctx context.Context, key string, token *CachedToken) error {
	if m.cache == nil || m.box == nil {
		return nil
	}

	ttl := m.calculateTTL(token)
	if ttl <= 0 {
		return nil
	}

	payload, err := m.box.EncryptJSON(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	return m.cache.Set(ctx, key, payload, ttl)
}

func (m *Manager) invalidate(ctx context.Context, key string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Del(ctx, key); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Failed to remove cached access token")
	}
}

// calculateTTL is the token lifetime minus skew
func (m *Manager) calculateTTL(token *CachedToken) time.Duration {
	if token.ExpiresAt.IsZero() {
		return DefaultTTL
	}
	return time.Until(token.ExpiresAt) - m.skew
}

// cacheKey is scoped to the refresh token so reconnecting an integration never reuses an old grant's token
func (m *Manager) cacheKey(integrationID uuid.UUID, refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return fmt.Sprintf("%s%s:%s:%s", CacheKeyPrefix, m.provider, integrationID, hex.EncodeToString(sum[:8]))
}

// IsInvalidGrant reports an expired or revoked OAuth grant
func IsInvalidGrant(err error) bool {
	if err == nil {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(retrieveErr.Body), "invalid_grant")
	}
	return strings.Contains(err.Error(), "invalid_grant")
}
