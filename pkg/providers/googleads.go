package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultGoogleAdsBaseURL  = "https://googleads.googleapis.com"
	DefaultGoogleAdsVersion  = "v17"
	DefaultCampaignPageSize  = 50
	NotConnectedMessage      = "Google Ads is not connected. Reconnect the integration."
	SelectAccountMessage     = "Google Ads: select an account first"
	accountQuery             = "SELECT customer.id, customer.descriptive_name, customer.currency_code, customer.time_zone FROM customer LIMIT 1"
	campaignQueryTemplate    = "SELECT campaign.id, campaign.name, campaign.status, campaign.advertising_channel_type FROM campaign ORDER BY campaign.id LIMIT %d"
	accessibleCustomersField = "resourceNames"
)

// GoogleAdsCredentials is the decrypted secret payload of a Google Ads integration
type GoogleAdsCredentials struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenSource exchanges a refresh token for an access token
type TokenSource interface {
	AccessToken(ctx context.Context, integrationID uuid.UUID, refreshToken string, forceRefresh bool) (string, error)
}

// GoogleAdsConfig holds the API settings shared by all Google Ads integrations
type GoogleAdsConfig struct {
	BaseURL          string
	Version          string
	DeveloperToken   string
	LoginCustomerID  string
	CampaignPageSize int
}

// GoogleAdsHandler tests OAuth access and mirrors the selected account and its campaigns
type GoogleAdsHandler struct {
	cfg       GoogleAdsConfig
	secrets   repositories.SecretRepo
	box       *secrets.Box
	tokens    TokenSource
	client    *httpclient.Client
	evaluator *expressions.Evaluator
	ads       repositories.AdRepo
	logger    ectologger.Logger
}

// NewGoogleAdsHandler creates a new Google Ads handler
func NewGoogleAdsHandler(
	cfg GoogleAdsConfig,
	secretRepo repositories.SecretRepo,
	box *secrets.Box,
	tokens TokenSource,
	client *httpclient.Client,
	evaluator *expressions.Evaluator,
	ads repositories.AdRepo,
	logger ectologger.Logger,
) *GoogleAdsHandler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleAdsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = DefaultGoogleAdsVersion
	}
	if cfg.CampaignPageSize <= 0 {
		cfg.CampaignPageSize = DefaultCampaignPageSize
	}
	if evaluator == nil {
		evaluator = expressions.NewEvaluator()
	}
	return &GoogleAdsHandler{
		cfg:       cfg,
		secrets:   secretRepo,
		box:       box,
		tokens:    tokens,
		client:    client,
		evaluator: evaluator,
		ads:       ads,
		logger:    logger,
	}
}

func (h *GoogleAdsHandler) Provider() models.Provider {
	return models.ProviderGoogleAds
}

// Test forces a token refresh so a revoked grant is always detected, then counts the accessible accounts
func (h *GoogleAdsHandler) Test(ctx context.Context, integration *models.Integration) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "GoogleAdsHandler.Test")
	defer span.End()

	token, result, err := h.accessToken(ctx, integration, true)
	if err != nil || token == "" {
		return result, err
	}

	resp, err := h.client.Get(ctx, h.apiURL("customers:listAccessibleCustomers"), h.headers(token))
	if err != nil {
		return Result{}, err
	}
	if !resp.IsSuccess() {
		return h.failedResponse(ctx, resp), nil
	}

	body, err := resp.JSON()
	if err != nil {
		return Result{}, err
	}
	accounts, err := h.evaluator.EvaluateSlice(accessibleCustomersField, body)
	if err != nil {
		return Result{}, err
	}

	return Success("Connected to Google Ads: %d accessible account(s)", len(accounts)), nil
}

// Sync upserts the selected account and up to one page of its campaigns
func (h *GoogleAdsHandler) Sync(ctx context.Context, integration *models.Integration) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "GoogleAdsHandler.Sync")
	defer span.End()

	if !integration.HasExternalAccount() {
		return Failure(SelectAccountMessage), nil
	}

	token, result, err := h.accessToken(ctx, integration, false)
	if err != nil || token == "" {
		return result, err
	}

	customerID := normalizeCustomerID(*integration.ExternalAccountID)

	accountRows, failed, err := h.search(ctx, token, customerID, accountQuery)
	if err != nil {
		return Result{}, err
	}
	if failed != nil && failed.StatusCode == http.StatusUnauthorized {
		// a cached token can be revoked before it expires
		h.logger.WithContext(ctx).WithField("integration_id", integration.ID).Info("Google Ads rejected the access token, refreshing")
		token, result, err = h.accessToken(ctx, integration, true)
		if err != nil || token == "" {
			return result, err
		}
		accountRows, failed, err = h.search(ctx, token, customerID, accountQuery)
		if err != nil {
			return Result{}, err
		}
	}
	if failed != nil {
		return h.failedResponse(ctx, failed), nil
	}
	customer, err := h.evaluator.EvaluateMap("results[0].customer", accountRows)
	if err != nil {
		return Result{}, err
	}
	if customer == nil {
		return Failure("Google Ads: account %s was not found", customerID), nil
	}

	account, err := h.toAccount(integration, customerID, customer)
	if err != nil {
		return Result{}, err
	}
	if err := h.ads.UpsertAccount(ctx, account); err != nil {
		return Result{}, err
	}

	campaignRows, failed, err := h.search(ctx, token, customerID, fmt.Sprintf(campaignQueryTemplate, h.cfg.CampaignPageSize))
	if err != nil {
		return Result{}, err
	}
	if failed != nil {
		return h.failedResponse(ctx, failed), nil
	}
	campaigns, err := h.evaluator.EvaluateSlice("results[].campaign", campaignRows)
	if err != nil {
		return Result{}, err
	}

	synced := 0
	for _, raw := range campaigns {
		campaign, err := h.toCampaign(integration, customerID, raw)
		if err != nil {
			return Result{}, err
		}
		if campaign == nil {
			continue
		}
		if err := h.ads.UpsertCampaign(ctx, campaign); err != nil {
			return Result{}, err
		}
		synced++
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"customer_id":    customerID,
		"campaigns":      synced,
	}).Info("Google Ads sync completed")

	return Success("Synced 1 account, %d campaign(s)", synced), nil
}

// accessToken returns an empty token together with a failed result when the integration has no refresh token
func (h *GoogleAdsHandler) accessToken(ctx context.Context, integration *models.Integration, forceRefresh bool) (string, Result, error) {
	creds, found, err := loadCredentials[GoogleAdsCredentials](ctx, h.secrets, h.box, integration)
	if err != nil {
		return "", Result{}, err
	}
	if !found || strings.TrimSpace(creds.RefreshToken) == "" {
		return "", Failure(NotConnectedMessage), nil
	}

	token, err := h.tokens.AccessToken(ctx, integration.ID, creds.RefreshToken, forceRefresh)
	if err != nil {
		return "", Result{}, err
	}
	return token, Result{}, nil
}

// search runs a GAQL query. A non-2xx response is returned as failed with a nil body.
func (h *GoogleAdsHandler) search(ctx context.Context, token, customerID, query string) (any, *httpclient.Response, error) {
	resp, err := h.client.PostJSON(ctx, h.apiURL("customers/"+customerID+"/googleAds:search"), h.headers(token), map[string]any{
		"query": query,
	})
	if err != nil {
		return nil, nil, err
	}
	if !resp.IsSuccess() {
		return nil, resp, nil
	}

	body, err := resp.JSON()
	if err != nil {
		return nil, nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil, nil
}

func (h *GoogleAdsHandler) toAccount(integration *models.Integration, customerID string, customer map[string]any) (*models.AdAccount, error) {
	name, err := h.evaluator.EvaluateString("descriptiveName", customer)
	if err != nil {
		return nil, err
	}
	currency, err := h.evaluator.EvaluateString("currencyCode", customer)
	if err != nil {
		return nil, err
	}
	timeZone, err := h.evaluator.EvaluateString("timeZone", customer)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = customerID
	}

	return &models.AdAccount{
		OwnerScope:        integration.OwnerScope,
		OwnerID:           integration.OwnerID,
		Provider:          models.ProviderGoogleAds,
		ExternalAccountID: customerID,
		Name:              name,
		CurrencyCode:      optional(currency),
		TimeZone:          optional(timeZone),
	}, nil
}

// toCampaign returns nil for rows without an id
func (h *GoogleAdsHandler) toCampaign(integration *models.Integration, customerID string, raw any) (*models.AdCampaign, error) {
	id, err := h.evaluator.EvaluateString("id", raw)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	name, err := h.evaluator.EvaluateString("name", raw)
	if err != nil {
		return nil, err
	}
	status, err := h.evaluator.EvaluateString("status", raw)
	if err != nil {
		return nil, err
	}
	channel, err := h.evaluator.EvaluateString("advertisingChannelType", raw)
	if err != nil {
		return nil, err
	}

	return &models.AdCampaign{
		OwnerScope:        integration.OwnerScope,
		OwnerID:           integration.OwnerID,
		Provider:          models.ProviderGoogleAds,
		ExternalAccountID: customerID,
		CampaignID:        id,
		Name:              name,
		Status:            status,
		Channel:           optional(channel),
	}, nil
}

func (h *GoogleAdsHandler) failedResponse(ctx context.Context, resp *httpclient.Response) Result {
	h.logger.WithContext(ctx).WithField("status_code", resp.StatusCode).Warn("Google Ads API request failed")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return Failure(ReconnectMessage)
	case http.StatusForbidden:
		return Failure("Google Ads denied access to this account")
	default:
		return Failure("Google Ads returned status %d", resp.StatusCode)
	}
}

func (h *GoogleAdsHandler) apiURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", h.cfg.BaseURL, h.cfg.Version, path)
}

func (h *GoogleAdsHandler) headers(token string) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	if h.cfg.DeveloperToken != "" {
		headers["developer-token"] = h.cfg.DeveloperToken
	}
	if h.cfg.LoginCustomerID != "" {
		headers["login-customer-id"] = normalizeCustomerID(h.cfg.LoginCustomerID)
	}
	return headers
}

// normalizeCustomerID strips the dashes of the 123-456-7890 display form
func normalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
