package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

type fakeTokens struct {
	token string
	// fresh is returned by forced refreshes when set
	fresh  string
	err    error
	forced []bool
}

func (f *fakeTokens) AccessToken(_ context.Context, _ uuid.UUID, refreshToken string, forceRefresh bool) (string, error) {
	f.forced = append(f.forced, forceRefresh)
	if f.err != nil {
		return "", f.err
	}
	if forceRefresh && f.fresh != "" {
		return f.fresh, nil
	}
	return f.token, nil
}

const adsToken = "ya29.ads-access"

// adsServer fakes the two Google Ads REST endpoints the handler uses
func adsServer(t *testing.T, campaigns int, searches *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+adsToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v17/customers:listAccessibleCustomers":
			_, _ = w.Write([]byte(`{"resourceNames":["customers/1234567890","customers/2222222222"]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v17/customers/1234567890/googleAds:search":
			atomic.AddInt32(searches, 1)
			var body struct {
				Query string `json:"query"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			if strings.Contains(body.Query, "FROM customer") {
				_, _ = w.Write([]byte(`{"results":[{"customer":{"resourceName":"customers/1234567890","id":"1234567890","descriptiveName":"Acme Ads","currencyCode":"USD","timeZone":"America/New_York"}}]}`))
				return
			}

			assert.Contains(t, body.Query, "LIMIT 50")
			results := make([]map[string]any, 0, campaigns)
			for i := 0; i < campaigns; i++ {
				results = append(results, map[string]any{
					"campaign": map[string]any{
						"resourceName":           "customers/1234567890/campaigns/" + string(rune('1'+i)),
						"id":                     string(rune('1' + i)),
						"name":                   "Campaign " + string(rune('A'+i)),
						"status":                 "ENABLED",
						"advertisingChannelType": "SEARCH",
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAdsHandler(t *testing.T, baseURL string, store *fakeSecrets, tokens providers.TokenSource, ads *fakeAds) *providers.GoogleAdsHandler {
	return providers.NewGoogleAdsHandler(providers.GoogleAdsConfig{
		BaseURL:        baseURL,
		DeveloperToken: "dev-token",
	}, store, testBox(t), tokens, testClient("google_ads"), nil, ads, silentLogger())
}

func adsIntegration(t *testing.T, store *fakeSecrets, externalAccountID string) *models.Integration {
	integration := newIntegration(models.ProviderGoogleAds)
	store.store(t, testBox(t), integration, providers.GoogleAdsCredentials{RefreshToken: "1//refresh"})
	if externalAccountID != "" {
		integration.ExternalAccountID = &externalAccountID
	}
	return integration
}

func TestGoogleAdsHandler_Test(t *testing.T) {
	var searches int32
	srv := adsServer(t, 0, &searches)
	store := newFakeSecrets()
	tokens := &fakeTokens{token: adsToken}
	handler := newAdsHandler(t, srv.URL, store, tokens, newFakeAds())

	result, err := handler.Test(context.Background(), adsIntegration(t, store, ""))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: true, Message: "Connected to Google Ads: 2 accessible account(s)"}, result)
	assert.Equal(t, []bool{true}, tokens.forced, "test must force a token refresh")
}

func TestGoogleAdsHandler_TestWithoutRefreshToken(t *testing.T) {
	store := newFakeSecrets()
	tokens := &fakeTokens{token: adsToken}
	handler := newAdsHandler(t, "http://127.0.0.1:0", store, tokens, newFakeAds())

	result, err := handler.Test(context.Background(), newIntegration(models.ProviderGoogleAds))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: false, Message: providers.NotConnectedMessage}, result)
	assert.Empty(t, tokens.forced)
}

func TestGoogleAdsHandler_Sync(t *testing.T) {
	var searches int32
	srv := adsServer(t, 3, &searches)
	store := newFakeSecrets()
	ads := newFakeAds()
	tokens := &fakeTokens{token: adsToken}
	handler := newAdsHandler(t, srv.URL, store, tokens, ads)
	integration := adsIntegration(t, store, "123-456-7890")

	result, err := handler.Sync(context.Background(), integration)
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: true, Message: "Synced 1 account, 3 campaign(s)"}, result)
	assert.Equal(t, []bool{false}, tokens.forced, "sync may reuse a cached token")

	require.Len(t, ads.accounts, 1)
	require.Len(t, ads.campaigns, 3)
	for _, account := range ads.accounts {
		assert.Equal(t, "1234567890", account.ExternalAccountID)
		assert.Equal(t, "Acme Ads", account.Name)
		require.NotNil(t, account.CurrencyCode)
		assert.Equal(t, "USD", *account.CurrencyCode)
		assert.Equal(t, integration.OwnerID, account.OwnerID)
	}
	for _, campaign := range ads.campaigns {
		assert.Equal(t, "ENABLED", campaign.Status)
		require.NotNil(t, campaign.Channel)
		assert.Equal(t, "SEARCH", *campaign.Channel)
	}

	ids := map[string]uuid.UUID{}
	for key, campaign := range ads.campaigns {
		ids[key] = campaign.ID
	}

	// unchanged remote data upserts onto the same rows
	result, err = handler.Sync(context.Background(), integration)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, ads.accounts, 1)
	assert.Len(t, ads.campaigns, 3)
	for key, campaign := range ads.campaigns {
		assert.Equal(t, ids[key], campaign.ID)
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&searches))
}

func TestGoogleAdsHandler_SyncRequiresAccount(t *testing.T) {
	store := newFakeSecrets()
	tokens := &fakeTokens{token: adsToken}
	handler := newAdsHandler(t, "http://127.0.0.1:0", store, tokens, newFakeAds())

	result, err := handler.Sync(context.Background(), adsIntegration(t, store, ""))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: false, Message: providers.SelectAccountMessage}, result)
	assert.Empty(t, tokens.forced)
}

func TestGoogleAdsHandler_RevokedGrant(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer tokenSrv.Close()

	manager := auth.NewManager(models.ProviderGoogleAds, auth.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
	}, http.DefaultClient, nil, testBox(t), silentLogger())

	store := newFakeSecrets()
	handler := newAdsHandler(t, "http://127.0.0.1:0", store, manager, newFakeAds())
	registry := providers.NewRegistry(silentLogger(), handler)

	result := registry.Dispatch(context.Background(), adsIntegration(t, store, ""), models.JobTypeTest)
	assert.Equal(t, providers.Result{OK: false, Message: providers.ReconnectMessage}, result)
}

func TestGoogleAdsHandler_APIUnauthorized(t *testing.T) {
	var searches int32
	srv := adsServer(t, 0, &searches)
	store := newFakeSecrets()
	handler := newAdsHandler(t, srv.URL, store, &fakeTokens{token: "ya29.stale"}, newFakeAds())

	result, err := handler.Test(context.Background(), adsIntegration(t, store, ""))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: false, Message: providers.ReconnectMessage}, result)
}

func TestGoogleAdsHandler_SyncRefreshesRejectedCachedToken(t *testing.T) {
	var searches int32
	srv := adsServer(t, 2, &searches)
	store := newFakeSecrets()
	ads := newFakeAds()
	tokens := &fakeTokens{token: "ya29.revoked", fresh: adsToken}
	handler := newAdsHandler(t, srv.URL, store, tokens, ads)

	result, err := handler.Sync(context.Background(), adsIntegration(t, store, "1234567890"))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: true, Message: "Synced 1 account, 2 campaign(s)"}, result)
	assert.Equal(t, []bool{false, true}, tokens.forced)
	assert.Len(t, ads.campaigns, 2)
}

func TestGoogleAdsHandler_SyncRejectedAfterRefresh(t *testing.T) {
	var searches int32
	srv := adsServer(t, 0, &searches)
	store := newFakeSecrets()
	ads := newFakeAds()
	tokens := &fakeTokens{token: "ya29.revoked"}
	handler := newAdsHandler(t, srv.URL, store, tokens, ads)

	result, err := handler.Sync(context.Background(), adsIntegration(t, store, "1234567890"))
	require.NoError(t, err)
	assert.Equal(t, providers.Result{OK: false, Message: providers.ReconnectMessage}, result)
	assert.Equal(t, []bool{false, true}, tokens.forced, "only one forced refresh per sync")
	assert.Empty(t, ads.accounts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&searches))
}
