// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dilag-app/dilag/internal/agent"
	"github.com/dilag-app/dilag/internal/api"
	"github.com/dilag-app/dilag/internal/buildinfo"
	"github.com/dilag-app/dilag/internal/config"
	"github.com/dilag-app/dilag/internal/licensing"
	"github.com/dilag-app/dilag/internal/metrics"
	"github.com/dilag-app/dilag/internal/polar"
	"github.com/dilag-app/dilag/internal/sessions"
)

// RunServeCommand starts the local API server and supervises the agent
// toolchain until interrupted.
func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return err
			}

			return runServer(cmd.Context(), appConfig)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory holding config.toml")

	return cmd
}

func runServer(ctx context.Context, appConfig *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := appConfig.Config.DataDir

	metricsManager := metrics.NewManager()

	clientOpts := []polar.OptFunc{
		polar.WithUserAgent(buildinfo.UserAgent),
	}
	if appConfig.Config.Licensing.OrganizationID != "" {
		clientOpts = append(clientOpts, polar.WithOrganizationID(appConfig.Config.Licensing.OrganizationID))
	}
	if appConfig.Config.Licensing.Environment != "" {
		clientOpts = append(clientOpts, polar.WithEnvironment(appConfig.Config.Licensing.Environment))
	}

	serviceOpts := []licensing.ServiceOptFunc{
		licensing.WithMetrics(metricsManager),
	}
	if appConfig.Config.Licensing.PurchaseURL != "" {
		serviceOpts = append(serviceOpts, licensing.WithPurchaseURL(appConfig.Config.Licensing.PurchaseURL))
	}

	licenseService := licensing.NewService(
		licensing.NewStore(dataDir),
		polar.NewClient(clientOpts...),
		licensing.NewTimeSource(),
		serviceOpts...,
	)

	supervisor := agent.NewSupervisor(dataDir)
	devServer := agent.NewDevServer()

	server := api.NewServer(api.Dependencies{
		Config:          appConfig,
		LicenseService:  licenseService,
		SessionStore:    sessions.NewStore(dataDir),
		TemplateDir:     filepath.Join(dataDir, "web-template"),
		AgentSupervisor: supervisor,
		DevServer:       devServer,
		Metrics:         metricsManager,
	})

	log.Info().
		Str("version", buildinfo.Version).
		Str("dataDir", dataDir).
		Msg("Starting dilag")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		supervisor.Stop()
		devServer.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
