package credentials

import (
	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// Source assembles Jamf credentials from configuration, per-call overrides and a secret store
type Source struct {
	Jamf config.JamfConfig
	// Store, when set, supplies a secret that neither the override nor the configuration carries
	Store   Store
	Service string
}

// Credentials returns validated credentials. A non-empty override URL replaces the
// configured one; an override client ID replaces the configured client ID and secret.
// Nothing is written to the store.
func (s Source) Credentials(override models.Credentials) (models.Credentials, error) {
	creds := models.Credentials{
		BaseURL:      s.Jamf.URL,
		ClientID:     s.Jamf.ClientID,
		ClientSecret: s.Jamf.ClientSecret,
	}
	override = override.Normalize()
	if override.BaseURL != "" {
		creds.BaseURL = override.BaseURL
	}
	if override.ClientID != "" {
		creds.ClientID = override.ClientID
		creds.ClientSecret = override.ClientSecret
	}
	creds = creds.Normalize()

	if creds.ClientSecret == "" && s.Store != nil {
		resolved, err := Resolve(s.Store, s.Service, creds, false)
		if err != nil {
			return creds, err
		}
		creds = resolved
	}

	if err := creds.Validate(); err != nil {
		return creds, err
	}
	return creds, nil
}
