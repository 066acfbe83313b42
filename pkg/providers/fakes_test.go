package providers_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/secrets"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	box, err := secrets.NewBox(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	return box
}

func testClient(name string) *httpclient.Client {
	return httpclient.NewClient(httpclient.DefaultConfig(name), silentLogger())
}

type fakeSecrets struct {
	mu      sync.Mutex
	secrets map[uuid.UUID]*models.Secret
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{secrets: map[uuid.UUID]*models.Secret{}}
}

func (f *fakeSecrets) Create(_ context.Context, secret *models.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}
	copied := *secret
	f.secrets[secret.ID] = &copied
	return nil
}

func (f *fakeSecrets) GetByID(_ context.Context, id uuid.UUID) (*models.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	secret, ok := f.secrets[id]
	if !ok {
		return nil, repositories.NotFound("secret %s not found", id)
	}
	copied := *secret
	return &copied, nil
}

// store encrypts payload and attaches it to the integration
func (f *fakeSecrets) store(t *testing.T, box *secrets.Box, integration *models.Integration, payload any) {
	t.Helper()
	ciphertext, err := box.EncryptJSON(payload)
	require.NoError(t, err)
	secret := &models.Secret{
		OwnerScope: integration.OwnerScope,
		OwnerID:    integration.OwnerID,
		Provider:   integration.Provider,
		Ciphertext: ciphertext,
	}
	require.NoError(t, f.Create(context.Background(), secret))
	integration.SecretID = &secret.ID
}

type fakeAds struct {
	mu        sync.Mutex
	accounts  map[string]*models.AdAccount
	campaigns map[string]*models.AdCampaign
}

func newFakeAds() *fakeAds {
	return &fakeAds{
		accounts:  map[string]*models.AdAccount{},
		campaigns: map[string]*models.AdCampaign{},
	}
}

func accountKey(a *models.AdAccount) string {
	return string(a.OwnerScope) + "|" + a.OwnerID.String() + "|" + string(a.Provider) + "|" + a.ExternalAccountID
}

func campaignKey(c *models.AdCampaign) string {
	return string(c.OwnerScope) + "|" + c.OwnerID.String() + "|" + string(c.Provider) + "|" + c.ExternalAccountID + "|" + c.CampaignID
}

func (f *fakeAds) UpsertAccount(_ context.Context, account *models.AdAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := accountKey(account)
	if existing, ok := f.accounts[key]; ok {
		account.ID = existing.ID
	} else {
		account.ID = uuid.New()
	}
	copied := *account
	f.accounts[key] = &copied
	return nil
}

func (f *fakeAds) UpsertCampaign(_ context.Context, campaign *models.AdCampaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := campaignKey(campaign)
	if existing, ok := f.campaigns[key]; ok {
		campaign.ID = existing.ID
	} else {
		campaign.ID = uuid.New()
	}
	copied := *campaign
	f.campaigns[key] = &copied
	return nil
}

func (f *fakeAds) ListCampaigns(_ context.Context, ownerScope models.OwnerScope, ownerID uuid.UUID, provider models.Provider, externalAccountID string) ([]models.AdCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AdCampaign
	for _, c := range f.campaigns {
		if c.OwnerScope == ownerScope && c.OwnerID == ownerID && c.Provider == provider && c.ExternalAccountID == externalAccountID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func newIntegration(provider models.Provider) *models.Integration {
	return &models.Integration{
		ID:         uuid.New(),
		OwnerScope: models.OwnerScopeAgency,
		OwnerID:    uuid.New(),
		Provider:   provider,
		Status:     models.IntegrationStatusDisconnected,
	}
}
