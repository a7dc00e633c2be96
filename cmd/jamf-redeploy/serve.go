package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/api"
	"github.com/kuhlman-labs/jamf-redeploy/internal/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port    int
		withMCP bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for loading and running batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx := cmd.Context()

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			serverCfg := api.ServerConfig{Logger: a.logger, RunContext: ctx}
			mcpCfg := mcp.Config{Address: a.cfg.MCP.Address, Logger: a.logger, RunContext: ctx}
			if db != nil {
				defer func() { _ = db.Close() }()
				serverCfg.History = db
				mcpCfg.History = db
			}

			mgr, err := a.newManager(db, a.cfg.Bulk.Delay)
			if err != nil {
				return err
			}
			src, err := a.credentialSource()
			if err != nil {
				return err
			}
			serverCfg.Manager, serverCfg.Credentials = mgr, src
			mcpCfg.Manager, mcpCfg.Credentials = mgr, src

			server, err := api.NewServer(serverCfg)
			if err != nil {
				return err
			}

			var mcpServer *mcp.Server
			if withMCP {
				if mcpServer, err = mcp.NewServer(mcpCfg); err != nil {
					return err
				}
				go func() {
					if err := mcpServer.Start(); err != nil {
						a.logger.Error("MCP server failed", "error", err)
					}
				}()
			}

			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:      server.Router(),
				ReadTimeout:  120 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Starting server", "port", a.cfg.Server.Port)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("Received interrupt signal")
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			a.logger.Info("Shutting down server...")
			mgr.Cancel()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if mcpServer != nil {
				if err := mcpServer.Stop(shutdownCtx); err != nil {
					a.logger.Error("Failed to stop MCP server", "error", err)
				}
			}
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Server forced to shutdown", "error", err)
			}

			a.logger.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from server.port)")
	cmd.Flags().BoolVar(&withMCP, "with-mcp", false, "also serve MCP over SSE on mcp.address")
	return cmd
}
