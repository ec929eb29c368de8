package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/app"
	"github.com/pventura/tidepool/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tidepool server",
	Long: `Start the tidepool server with the specified configuration.

Startup is fail-fast: missing configuration, an unreachable database, a
failed migration run, or (by default) an unreachable cache abort the process
with a non-zero exit code before the listener is started.

Examples:
  # Start with environment configuration
  DATABASE_URL=postgres://... REDIS_URL=redis://... tidepool start

  # Start with a config file
  tidepool start --config /etc/tidepool/config.yaml`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		"log_level", cfg.Logging.Level,
		"pool_size", cfg.Database.MaxConns,
		"listen", cfg.Server.Addr(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application := app.New()
	if err := application.Configure(cfg); err != nil {
		return err
	}
	if err := application.Bootstrap(ctx); err != nil {
		return err
	}

	// Shutdown signal cancels the serve context, which drains the
	// listener and releases the resource handles.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	return application.Serve(ctx)
}
