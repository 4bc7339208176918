package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/config"
	"github.com/jackzampolin/talespin/internal/server"
	"github.com/jackzampolin/talespin/internal/server/endpoints"
)

var (
	serveHost  string
	servePort  string
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Talespin server",
	Long: `Start the Talespin HTTP server.

The server opens the story store (file or MySQL), the asset store
(local directory or MinIO/S3), and the TTS queue. Config file changes
are picked up without a restart.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes storage and LLM status)
  - /api/*  - Story, narration, illustration, and prompt APIs
  - /       - Web UI

Examples:
  talespin serve                    # Start on default port 8080
  talespin serve --port 3000        # Start on custom port
  talespin serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := slog.LevelInfo
		if serveDebug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))

		h, err := getHome()
		if err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(configPath(h))
		if err != nil {
			return err
		}
		if err := cfgMgr.Get().Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfgMgr.WatchConfig()

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			Home:            h,
			ConfigManager:   cfgMgr,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}
