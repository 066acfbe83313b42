package providers

import (
	"context"
	"net/http"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/secrets"
)

// loadCredentials decrypts the integration's secret into T. found is false when the integration
// has no secret or the referenced secret no longer exists. The plaintext lives only in the returned value.
func loadCredentials[T any](ctx context.Context, store repositories.SecretRepo, box *secrets.Box, integration *models.Integration) (creds T, found bool, err error) {
	if integration.SecretID == nil {
		return creds, false, nil
	}

	secret, err := store.GetByID(ctx, *integration.SecretID)
	if err != nil {
		if repositories.IsStatus(err, http.StatusNotFound) {
			return creds, false, nil
		}
		return creds, false, err
	}

	creds, err = secrets.Decrypt[T](box, secret.Ciphertext)
	if err != nil {
		return creds, false, err
	}
	return creds, true, nil
}
