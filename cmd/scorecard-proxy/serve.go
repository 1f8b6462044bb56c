package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scorecard-proxy/internal/app"
	"github.com/MrWong99/scorecard-proxy/internal/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the proxy as a long-running HTTP server with health and metrics endpoints.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.Server.ListenAddr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()

		slog.Info("scorecard-proxy starting",
			"version", version,
			"listen_addr", cfg.Server.ListenAddr,
			"function_path", cfg.Server.FunctionPath,
			"upstream", cfg.Upstream.BaseURL,
			"default_model", cfg.Upstream.DefaultModel,
			"extractor", cfg.Fetcher.Extractor,
			"credential", cfg.HasCredential(),
		)

		application, err := app.New(cfg,
			app.WithMetrics(tel.Metrics),
			app.WithGatherer(tel.Registry),
		)
		if err != nil {
			return err
		}
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		slog.Info("goodbye")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "override server.listen_addr")
}
