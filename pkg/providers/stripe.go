package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultStripeBaseURL is the Stripe REST API root
	DefaultStripeBaseURL = "https://api.stripe.com"

	// NoCredentialsMessage is returned when an integration has no usable secret
	NoCredentialsMessage = "no credentials configured"
)

// StripeCredentials is the decrypted secret payload of a Stripe integration
type StripeCredentials struct {
	APIKey string `json:"api_key"`
}

// StripeHandler checks a Stripe API key against the balance endpoint.
// Stripe has nothing to mirror, so sync runs the same probe as test.
type StripeHandler struct {
	secrets repositories.SecretRepo
	box     *secrets.Box
	client  *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

// NewStripeHandler creates a new Stripe handler
func NewStripeHandler(secretRepo repositories.SecretRepo, box *secrets.Box, client *httpclient.Client, baseURL string, logger ectologger.Logger) *StripeHandler {
	if baseURL == "" {
		baseURL = DefaultStripeBaseURL
	}
	return &StripeHandler{
		secrets: secretRepo,
		box:     box,
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (h *StripeHandler) Provider() models.Provider {
	return models.ProviderStripe
}

func (h *StripeHandler) Test(ctx context.Context, integration *models.Integration) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "StripeHandler.Test")
	defer span.End()

	return h.probe(ctx, integration)
}

func (h *StripeHandler) Sync(ctx context.Context, integration *models.Integration) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "StripeHandler.Sync")
	defer span.End()

	return h.probe(ctx, integration)
}

func (h *StripeHandler) probe(ctx context.Context, integration *models.Integration) (Result, error) {
	creds, found, err := loadCredentials[StripeCredentials](ctx, h.secrets, h.box, integration)
	if err != nil {
		return Result{}, err
	}
	if !found || strings.TrimSpace(creds.APIKey) == "" {
		return Failure(NoCredentialsMessage), nil
	}

	return h.Ping(ctx, creds.APIKey)
}

// Ping calls the balance endpoint, the cheapest authenticated Stripe request
func (h *StripeHandler) Ping(ctx context.Context, apiKey string) (Result, error) {
	resp, err := h.client.Get(ctx, h.baseURL+"/v1/balance", map[string]string{
		"Authorization": "Bearer " + apiKey,
	})
	if err != nil {
		return Result{}, err
	}

	switch {
	case resp.IsSuccess():
		return Success("Stripe connection verified"), nil
	case resp.StatusCode == http.StatusUnauthorized:
		return Failure("Stripe rejected the API key"), nil
	default:
		h.logger.WithContext(ctx).WithField("status_code", resp.StatusCode).Warn("Unexpected Stripe probe status")
		return Failure("Stripe returned status %d", resp.StatusCode), nil
	}
}
