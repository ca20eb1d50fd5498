package commands

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/conversion"
	"github.com/cyderes/lakehouse-pipeline/internal/notify"
	"github.com/cyderes/lakehouse-pipeline/internal/scheduler"
	"github.com/cyderes/lakehouse-pipeline/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP endpoints and the scheduled conversion sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if port != 0 {
				cfg.Server.Port = port
			}

			converter := conversion.NewService(cfg.ObjectStore, cfg.Catalog, nil, nil, logger)

			executions, err := scheduler.OpenExecutionStore(cfg.Scheduler.DBPath, cfg.Scheduler.ExecutionTTL)
			if err != nil {
				return err
			}
			defer executions.Close()

			var notifier scheduler.Notifier
			if cfg.Notify.SlackWebhookURL != "" {
				notifier = notify.NewSlack(cfg.Notify, logger)
			}
			sweeper := scheduler.NewSweeper(cfg.Scheduler.Tables, converter.Convert, executions, notifier, logger)

			httpServer := server.NewServer(cfg, converter, logger, server.WithSweeper(sweeper))

			if cfg.Scheduler.Enabled {
				sch, err := scheduler.New(cfg.Scheduler.Cron, sweeper, logger)
				if err != nil {
					return err
				}
				sch.Start()
				defer sch.Stop()
			}

			// Handle graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				logger.Info("starting HTTP server", zap.Int("port", cfg.Server.Port))
				if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- err
				}
			}()

			select {
			case sig := <-sigChan:
				logger.Info("shutdown signal received, gracefully shutting down", zap.String("signal", sig.String()))
			case err := <-errChan:
				return errors.Wrap(err, "HTTP server")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on, overriding SERVER_PORT.")
	return cmd
}
