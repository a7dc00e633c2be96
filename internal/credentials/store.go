// Package credentials stores API client secrets outside the configuration file.
package credentials

import (
	"errors"
	"fmt"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// Store is a secure key-value store for secrets, addressed by service and account.
// Get returns an empty string and no error when nothing is stored.
type Store interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
}

// ErrPassphraseRequired is returned when an encrypted store has no passphrase
var ErrPassphraseRequired = errors.New("credential store passphrase is required")

// Resolve completes creds from store. A blank client secret is filled from the
// entry for the client ID. When save is true the secret is written back; when it
// is false an empty secret is written so a previously saved one is forgotten.
func Resolve(store Store, service string, creds models.Credentials, save bool) (models.Credentials, error) {
	creds = creds.Normalize()
	if store == nil || creds.ClientID == "" {
		return creds, nil
	}
	if service == "" {
		service = models.DefaultCredentialService
	}

	if creds.ClientSecret == "" {
		secret, err := store.Get(service, creds.ClientID)
		if err != nil {
			return creds, fmt.Errorf("failed to read stored secret: %w", err)
		}
		creds.ClientSecret = secret
		return creds, nil
	}

	toSave := ""
	if save {
		toSave = creds.ClientSecret
	}
	if err := store.Set(service, creds.ClientID, toSave); err != nil {
		return creds, fmt.Errorf("failed to save secret: %w", err)
	}
	return creds, nil
}
