package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/credentials"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

func newRedeployCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redeploy <serial-number>",
		Short: "Redeploy the management framework to one computer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.resolveCredentials(cmd)
			if err != nil {
				return err
			}
			mgr, err := a.newManager(nil, 0)
			if err != nil {
				return err
			}

			result, err := mgr.RedeployOne(cmd.Context(), creds, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Redeploy command sent to %s (computer ID %s)\n", result.SerialNumber, result.ComputerID)
			return nil
		},
	}
}

// resolveCredentials assembles credentials from configuration, the credential
// store and, when stdin is a terminal, a prompt for the client secret.
func (a *app) resolveCredentials(cmd *cobra.Command) (models.Credentials, error) {
	creds := models.Credentials{
		BaseURL:      a.cfg.Jamf.URL,
		ClientID:     a.cfg.Jamf.ClientID,
		ClientSecret: a.cfg.Jamf.ClientSecret,
	}.Normalize()

	store, err := a.credentialStore()
	if err != nil {
		return creds, err
	}
	service := a.cfg.Credentials.Service

	if creds.ClientSecret == "" && store != nil {
		if creds, err = credentials.Resolve(store, service, creds, false); err != nil {
			return creds, err
		}
	}

	if creds.ClientSecret == "" && creds.ClientID != "" && interactive(a.in) {
		secret, err := readSecret(a.in, cmd.ErrOrStderr(), "Client secret")
		if err != nil {
			return creds, err
		}
		creds.ClientSecret = secret
		if store != nil {
			if creds, err = credentials.Resolve(store, service, creds, a.cfg.Credentials.SaveSecret); err != nil {
				return creds, err
			}
		}
	}

	if err := creds.Validate(); err != nil {
		return creds, fmt.Errorf("%w (set jamf.url and jamf.client_id, and store or enter the client secret)", err)
	}
	return creds, nil
}
