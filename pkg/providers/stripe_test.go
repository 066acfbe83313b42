package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

func stripeServer(t *testing.T, validKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path != "/v1/balance":
			w.WriteHeader(http.StatusNotFound)
		case r.Header.Get("Authorization") != "Bearer "+validKey:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"balance","available":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStripeHandler(t *testing.T) {
	const validKey = "sk_test_valid"
	srv := stripeServer(t, validKey)
	box := testBox(t)

	tests := []struct {
		name     string
		setup    func(t *testing.T, store *fakeSecrets, integration *models.Integration)
		expected providers.Result
	}{
		{
			name:     "no secret",
			setup:    func(*testing.T, *fakeSecrets, *models.Integration) {},
			expected: providers.Result{OK: false, Message: providers.NoCredentialsMessage},
		},
		{
			name: "dangling secret reference",
			setup: func(_ *testing.T, _ *fakeSecrets, integration *models.Integration) {
				id := uuid.New()
				integration.SecretID = &id
			},
			expected: providers.Result{OK: false, Message: providers.NoCredentialsMessage},
		},
		{
			name: "empty key",
			setup: func(t *testing.T, store *fakeSecrets, integration *models.Integration) {
				store.store(t, box, integration, providers.StripeCredentials{})
			},
			expected: providers.Result{OK: false, Message: providers.NoCredentialsMessage},
		},
		{
			name: "valid key",
			setup: func(t *testing.T, store *fakeSecrets, integration *models.Integration) {
				store.store(t, box, integration, providers.StripeCredentials{APIKey: validKey})
			},
			expected: providers.Result{OK: true, Message: "Stripe connection verified"},
		},
		{
			name: "rejected key",
			setup: func(t *testing.T, store *fakeSecrets, integration *models.Integration) {
				store.store(t, box, integration, providers.StripeCredentials{APIKey: "sk_test_revoked"})
			},
			expected: providers.Result{OK: false, Message: "Stripe rejected the API key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeSecrets()
			integration := newIntegration(models.ProviderStripe)
			tt.setup(t, store, integration)

			handler := providers.NewStripeHandler(store, box, testClient("stripe"), srv.URL, silentLogger())
			registry := providers.NewRegistry(silentLogger(), handler)

			for _, jobType := range []models.JobType{models.JobTypeTest, models.JobTypeSync} {
				result := registry.Dispatch(context.Background(), integration, jobType)
				assert.Equal(t, tt.expected, result, jobType)
			}
		})
	}
}

func TestStripeHandler_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	handler := providers.NewStripeHandler(newFakeSecrets(), testBox(t), testClient("stripe"), srv.URL, silentLogger())

	result, err := handler.Ping(context.Background(), "sk_test_any")
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: false, Message: "Stripe returned status 503"}, result)
}

func TestStripeHandler_CorruptSecretNeverLeaksPayload(t *testing.T) {
	store := newFakeSecrets()
	integration := newIntegration(models.ProviderStripe)
	secret := &models.Secret{Ciphertext: "not-a-real-ciphertext"}
	require.NoError(t, store.Create(context.Background(), secret))
	integration.SecretID = &secret.ID

	handler := providers.NewStripeHandler(store, testBox(t), testClient("stripe"), "http://127.0.0.1:0", silentLogger())
	result := providers.NewRegistry(silentLogger(), handler).Dispatch(context.Background(), integration, models.JobTypeTest)

	assert.False(t, result.OK)
	assert.NotContains(t, result.Message, "not-a-real-ciphertext")
	assert.NotContains(t, result.Message, secret.ID.String())
}
