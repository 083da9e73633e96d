package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/server"
)

// pagePurgeInterval is how often expired cached pages are deleted.
const pagePurgeInterval = time.Hour

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  `Start an HTTP server exposing sessions, processing runs, row overrides and ODT export.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			go a.purgePages(ctx, pagePurgeInterval)

			srv := server.New(server.Config{
				Addr:            cfg.Server.Addr(),
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				RateLimit:       cfg.RateLimit,
			}, server.Deps{
				Store:          a.store,
				Processor:      a.processor,
				Exporter:       a.exporter,
				Merger:         a.merger,
				History:        a.history(),
				CarryOverrides: cfg.Reconcile.CarryOverrides,
				NullMarkers:    cfg.Reconcile.NullMarkers,
				Logger:         logging.FromContext(ctx),
				OnShutdown: func() {
					cancel()
					a.Close()
				},
			})
			return srv.Start(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (overrides server.port)")
	return cmd
}
