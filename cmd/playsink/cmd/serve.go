package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/playsink/playsink/internal/http"
	"github.com/playsink/playsink/internal/http/handlers"
	"github.com/playsink/playsink/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playsink server",
	Long: `Start the playsink HTTP server and control API.

The server provides:
- REST API for starting, inspecting, and stopping playback sessions
- Resume history endpoints
- Stream probing and classification
- Health check endpoints and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg)

	overrideString(cmd.Flags(), "host", &cfg.Server.Host)
	overrideInt(cmd.Flags(), "port", &cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer rt.close()

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Short())

	handlers.NewHealthHandler(version.Short()).WithDB(rt.db.DB).Register(server.API())
	handlers.NewPlaybackHandler(rt.manager, rt.store, logger).Register(server.API())
	handlers.NewHistoryHandler(rt.store).Register(server.API())
	handlers.NewProbeHandler(rt.pipeline, logger).Register(server.API())

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
