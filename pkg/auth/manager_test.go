package auth_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return value, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value.(string)
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
		delete(c.ttls, key)
	}
	return nil
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	box, err := secrets.NewBox(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)
	return box
}

func tokenServer(t *testing.T, calls *int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, tokenURL string, cache auth.Cache) *auth.Manager {
	return auth.NewManager(models.ProviderGoogleAds, auth.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
	}, http.DefaultClient, cache, testBox(t), silentLogger())
}

func TestManager_RefreshAndCache(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, http.StatusOK, `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`)
	cache := newMemoryCache()
	m := newManager(t, srv.URL, cache)
	integrationID := uuid.New()

	token, err := m.AccessToken(context.Background(), integrationID, "1//refresh", false)
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", token)

	token, err = m.AccessToken(context.Background(), integrationID, "1//refresh", false)
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call should be served from cache")

	require.Len(t, cache.data, 1)
	for key, payload := range cache.data {
		assert.NotContains(t, payload, "ya29.fresh", "cached token must be encrypted")
		assert.Greater(t, cache.ttls[key], 50*time.Minute)
		assert.Less(t, cache.ttls[key], time.Hour)
	}
}

func TestManager_ForceRefreshSkipsCache(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, http.StatusOK, `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`)
	m := newManager(t, srv.URL, newMemoryCache())
	integrationID := uuid.New()

	_, err := m.AccessToken(context.Background(), integrationID, "1//refresh", false)
	require.NoError(t, err)
	_, err = m.AccessToken(context.Background(), integrationID, "1//refresh", true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestManager_FailedForceRefreshDropsCachedToken(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"server_error"}`))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	m := newManager(t, srv.URL, cache)
	integrationID := uuid.New()

	_, err := m.AccessToken(context.Background(), integrationID, "1//refresh", false)
	require.NoError(t, err)
	require.Len(t, cache.data, 1)

	status.Store(http.StatusInternalServerError)
	_, err = m.AccessToken(context.Background(), integrationID, "1//refresh", true)
	require.Error(t, err)
	assert.False(t, auth.IsInvalidGrant(err))
	assert.Empty(t, cache.data, "a rejected token must not stay cached")
}

func TestManager_NewRefreshTokenMissesCache(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, http.StatusOK, `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`)
	m := newManager(t, srv.URL, newMemoryCache())
	integrationID := uuid.New()

	_, err := m.AccessToken(context.Background(), integrationID, "1//old", false)
	require.NoError(t, err)
	_, err = m.AccessToken(context.Background(), integrationID, "1//reconnected", false)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestManager_InvalidGrant(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	m := newManager(t, srv.URL, newMemoryCache())

	_, err := m.AccessToken(context.Background(), uuid.New(), "1//revoked", true)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidGrant(err))
}

func TestManager_MissingRefreshToken(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:0/token", nil)

	_, err := m.AccessToken(context.Background(), uuid.New(), "", false)
	assert.ErrorIs(t, err, auth.ErrMissingRefreshToken)
}

func TestManager_WorksWithoutCache(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, http.StatusOK, `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3600}`)
	m := newManager(t, srv.URL, nil)

	for i := 0; i < 2; i++ {
		token, err := m.AccessToken(context.Background(), uuid.New(), "1//refresh", false)
		require.NoError(t, err)
		assert.Equal(t, "ya29.fresh", token)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIsInvalidGrant(t *testing.T) {
	assert.False(t, auth.IsInvalidGrant(nil))
	assert.False(t, auth.IsInvalidGrant(errors.New("connection refused")))
	assert.True(t, auth.IsInvalidGrant(errors.New(`oauth2: "invalid_grant" "Bad Request"`)))
}
