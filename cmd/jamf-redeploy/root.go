package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
	"github.com/kuhlman-labs/jamf-redeploy/internal/credentials"
	"github.com/kuhlman-labs/jamf-redeploy/internal/jamf"
	"github.com/kuhlman-labs/jamf-redeploy/internal/logging"
	"github.com/kuhlman-labs/jamf-redeploy/internal/storage"
)

// app carries the state shared by every command
type app struct {
	configFile string
	debug      bool
	url        string
	clientID   string

	cfg    *config.Config
	logger *slog.Logger
	levels *logging.LevelManager

	in  io.Reader
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "jamf-redeploy",
		Short: "Redeploy the Jamf management framework to managed computers",
		Long: `jamf-redeploy sends the "redeploy Jamf management framework" command to one
computer by serial number, or to every computer listed in a CSV file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default is jamf-redeploy.yaml in ./configs, . or ~/.config/jamf-redeploy)")
	flags.BoolVar(&a.debug, "debug", false, "enable debug logging")
	flags.StringVar(&a.url, "url", "", "Jamf Pro URL, e.g. https://example.jamfcloud.com")
	flags.StringVar(&a.clientID, "client-id", "", "Jamf Pro API client ID")

	cmd.AddCommand(
		newRedeployCmd(a),
		newBulkCmd(a),
		newCredentialsCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
	)

	return cmd
}

// init loads configuration, applies flag overrides and sets up logging
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.Jamf.URL = a.url
	}
	if a.clientID != "" && a.clientID != cfg.Jamf.ClientID {
		// A different API client never reuses the configured secret
		cfg.Jamf.ClientID = a.clientID
		cfg.Jamf.ClientSecret = ""
	}
	a.cfg = cfg

	a.logger, a.levels = logging.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	a.levels.SetDebugEnabled(a.debug)
	slog.SetDefault(a.logger)

	a.in = cmd.InOrStdin()
	a.out = cmd.OutOrStdout()

	if used := config.ConfigFileUsed(); used != "" {
		a.logger.Debug("Loaded configuration", "file", used)
	}
	return nil
}

// credentialStore opens the encrypted secret store. It returns nil when no
// passphrase is available, in which case secrets are never persisted.
func (a *app) credentialStore() (*credentials.FileStore, error) {
	passphrase := a.cfg.Credentials.Passphrase()
	if passphrase == "" {
		a.logger.Debug("Credential store disabled, no passphrase set",
			"passphrase_env", a.cfg.Credentials.PassphraseEnv)
		return nil, nil
	}
	store, err := credentials.NewFileStore(credentials.FileStoreConfig{
		Path:       a.cfg.Credentials.StorePath,
		Passphrase: passphrase,
		WorkFactor: a.cfg.Credentials.WorkFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return store, nil
}

// openDatabase opens and migrates the run history database, or returns nil when disabled
func (a *app) openDatabase() (*storage.Database, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil
	}
	db, err := storage.NewDatabase(a.cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newManager wires the Jamf client, orchestrator and batch manager. Run history
// is recorded when db is not nil.
func (a *app) newManager(db *storage.Database, delay time.Duration, observers ...batch.Observer) (*batch.Manager, error) {
	client, err := jamf.NewClient(jamf.ClientConfig{
		Timeout:   a.cfg.Jamf.Timeout,
		UserAgent: a.cfg.Jamf.UserAgent,
		RetryConfig: jamf.RetryConfig{
			MaxAttempts:     a.cfg.Jamf.Retry.MaxAttempts,
			InitialBackoff:  a.cfg.Jamf.Retry.InitialBackoff,
			MaxBackoff:      a.cfg.Jamf.Retry.MaxBackoff,
			BackoffMultiple: a.cfg.Jamf.Retry.BackoffMultiple,
		},
		Logger: a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Jamf client: %w", err)
	}

	if db != nil {
		observers = append(observers, batch.NewHistoryRecorder(db, a.logger))
	}

	orch, err := batch.NewOrchestrator(batch.OrchestratorConfig{
		API:      client,
		Observer: batch.MultiObserver(observers),
		Delay:    delay,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	return batch.NewManager(batch.ManagerConfig{Orchestrator: orch, Logger: a.logger})
}

// credentialSource returns the source used by the long-running servers
func (a *app) credentialSource() (credentials.Source, error) {
	src := credentials.Source{
		Jamf:    a.cfg.Jamf,
		Service: a.cfg.Credentials.Service,
	}
	store, err := a.credentialStore()
	if err != nil {
		return src, err
	}
	if store != nil {
		src.Store = store
	}
	return src, nil
}
