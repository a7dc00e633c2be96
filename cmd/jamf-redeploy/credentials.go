package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/credentials"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

func newCredentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage API client secrets in the encrypted credential store",
	}
	cmd.AddCommand(newCredentialsSetCmd(a), newCredentialsShowCmd(a))
	return cmd
}

func newCredentialsSetCmd(a *app) *cobra.Command {
	var secretStdin bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the client secret for the configured API client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := a.cfg.Jamf.ClientID
			if clientID == "" {
				return errors.New("client ID is required (use --client-id or jamf.client_id)")
			}
			if !secretStdin && !interactive(a.in) {
				return errors.New("stdin is not a terminal; use --secret-stdin to read the secret from stdin")
			}

			store, err := a.credentialStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("%w: set %s", credentials.ErrPassphraseRequired, a.cfg.Credentials.PassphraseEnv)
			}

			secret, err := readSecret(a.in, cmd.ErrOrStderr(), "Client secret")
			if err != nil {
				return err
			}
			if secret == "" {
				return errors.New("client secret is empty")
			}

			if _, err := credentials.Resolve(store, a.cfg.Credentials.Service, models.Credentials{
				BaseURL:      a.cfg.Jamf.URL,
				ClientID:     clientID,
				ClientSecret: secret,
			}, true); err != nil {
				return err
			}

			a.logger.Info("Stored client secret", "client_id", clientID, "path", store.Path())
			fmt.Fprintf(a.out, "Stored secret for client %s in %s\n", clientID, store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&secretStdin, "secret-stdin", false, "read the client secret from stdin")
	return cmd
}

func newCredentialsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the API clients that have a stored secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.credentialStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("%w: set %s", credentials.ErrPassphraseRequired, a.cfg.Credentials.PassphraseEnv)
			}

			service := a.cfg.Credentials.Service
			if service == "" {
				service = models.DefaultCredentialService
			}
			accounts, err := store.Accounts(service)
			if err != nil {
				return err
			}
			sort.Strings(accounts)

			fmt.Fprintf(a.out, "Store: %s\n", store.Path())
			if len(accounts) == 0 {
				fmt.Fprintln(a.out, "No stored secrets")
				return nil
			}
			for _, account := range accounts {
				fmt.Fprintf(a.out, "  %s\n", account)
			}
			return nil
		},
	}
}
