package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		sse     bool
		address string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the redeploy tools over the Model Context Protocol",
		Long: `mcp serves the redeploy tools to MCP clients over stdio, or over SSE with --sse.
Logs are written to stderr so stdout carries only protocol messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			cfg := mcp.Config{Address: a.cfg.MCP.Address, Logger: a.logger, RunContext: ctx}
			if address != "" {
				cfg.Address = address
			}
			if db != nil {
				defer func() { _ = db.Close() }()
				cfg.History = db
			}

			if cfg.Manager, err = a.newManager(db, a.cfg.Bulk.Delay); err != nil {
				return err
			}
			if cfg.Credentials, err = a.credentialSource(); err != nil {
				return err
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return err
			}
			defer cfg.Manager.Cancel()

			if !sse {
				return server.ServeStdio(ctx, a.in, a.out)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&sse, "sse", false, "serve over SSE instead of stdio")
	cmd.Flags().StringVar(&address, "address", "", "SSE listen address (default from mcp.address)")
	return cmd
}
