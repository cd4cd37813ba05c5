package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/api"
	"github.com/JakeFAU/product-image-crawler/internal/scheduler"
)

const serverShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs harvests on a schedule and serves the control API",
		Long: `Starts the cron scheduler configured by schedule.cron and an HTTP server
exposing health checks, Prometheus metrics and on-demand runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "trigger a harvest immediately")
	return cmd
}

func runServeCommand(cmd *cobra.Command, runOnStart bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(appInstance.Harvester(), cfg.Schedule.Cron, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	if runOnStart {
		if err := sched.Trigger(); err != nil {
			logger.Warn("initial harvest not started", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(sched, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port), zap.String("schedule", cfg.Schedule.Cron))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
