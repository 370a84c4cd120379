package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"market-sync/internal/api"
	"market-sync/internal/series"
	"market-sync/internal/syncer"
)

type ServeOptions struct {
	*RootOptions
	Port     int
	Interval time.Duration
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled passes",
		Long: `Serve exposes pass triggers, stored rows and sync events over HTTP. When an
interval is set, a walk of sync.count days ending today plus all single-pass
sources runs on that schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (default server.port)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "scheduled pass interval (default sync.interval_sec, 0 disables)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	app, err := NewApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return setupError(err)
	}
	defer app.Close()

	port := app.Cfg.Server.Port
	if opts.Port > 0 {
		port = opts.Port
	}
	interval := time.Duration(app.Cfg.Sync.IntervalSec) * time.Second
	if cmd.Flags().Changed("interval") {
		interval = opts.Interval
	}

	h := server.Default(server.WithHostPorts(fmt.Sprintf(":%d", port)))
	deps := api.Deps{
		Runner:       app.Runner,
		Store:        app.Store,
		DefaultCount: app.Cfg.Sync.Count,
		Log:          app.Log,
	}
	if app.Cfg.Metrics.Enabled {
		deps.Metrics = promhttp.HandlerFor(app.Metrics, promhttp.HandlerOpts{})
	}
	api.RegisterRoutes(h, deps)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if interval > 0 {
		count := app.Cfg.Sync.Count
		go app.Runner.Loop(ctx, interval, func() syncer.PassRequest {
			return syncer.PassRequest{
				Walk:    &syncer.WalkRequest{Start: series.Today(), Count: count},
				Sources: true,
			}
		})
	}

	app.Log.Info("server starting",
		zap.Int("port", port),
		zap.String("store", app.Store.Driver()),
		zap.Duration("interval", interval),
	)
	h.Spin()
	return nil
}
