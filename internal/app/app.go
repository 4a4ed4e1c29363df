// Package app provides application lifecycle management for the data
// integration platform.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/queue"
	"github.com/smill0791/data-integration-platform/internal/status"
)

// App encapsulates all components needed to run the platform service.
// It provides lifecycle management and graceful shutdown.
type App struct {
	config     *config.Config
	httpServer *http.Server
	consumer   *queue.Consumer
	publisher  *status.Publisher
	cleanup    func()

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the application components (HTTP server and, when
// configured, the queue consumer workers). It blocks until the HTTP
// server stops or encounters an error.
func (app *App) Start() error {
	if app.consumer != nil {
		go func() {
			if err := app.consumer.Run(app.ctx); err != nil {
				logger.Errorf("Queue consumer failed: %v", err)
			}
		}()
	}

	logger.Infof("Server listening on %s", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application with the given timeout: the
// consumer workers first, then the HTTP server, then storage.
func (app *App) Stop(timeout time.Duration) error {
	logger.Info("Shutting down server...")

	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.publisher.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)
	if app.cleanup != nil {
		app.cleanup()
	}
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *App) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing)
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}
