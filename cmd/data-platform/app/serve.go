package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	platform "github.com/smill0791/data-integration-platform/internal/app"
	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/logger"
)

// defaultGracefulTimeout is Kubernetes-friendly shutdown time.
const defaultGracefulTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the data integration platform server",
	Long: `Start the platform server: the HTTP API for sync triggers and job
queries, and the queue consumer workers when a queue is configured.

The configuration file (--config) specifies the database, queue, source
APIs, dispatch mode, and telemetry settings. Without a database block
the server runs against an in-memory store.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		logger.Errorf("Failed to bind address flag: %v", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Errorf("Failed to bind config flag: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	var opts []config.Option
	if configPath := viper.GetString("config"); configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if address := viper.GetString("address"); address != "" {
		cfg.Server.Address = address
	}
	logger.Infof("Starting platform server (dispatch=%s, address=%s)",
		cfg.DispatchMode, cfg.Server.Address)

	application, err := platform.NewApp(ctx, platform.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Infof("Received signal %s", sig)
		return application.Stop(defaultGracefulTimeout)
	}
}
