package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. It is safe to call on an
// application that was never started.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	// Shutdown components in dependency order
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Stop feeding the cache
	if a.stream != nil {
		err = a.stream.Close()
		if err != nil {
			a.logger.Error("depth-stream-close-error", zap.Error(err))
		}
	}

	if a.poller != nil {
		err = a.poller.Close()
		if err != nil {
			a.logger.Error("connector-close-error", zap.Error(err))
		}
	}

	// Wait for the pipeline loops before the trader so nothing enqueues late
	a.wg.Wait()

	// Close paper trader
	err = a.trader.Close()
	if err != nil {
		a.logger.Error("paper-trader-close-error", zap.Error(err))
	}

	// Final snapshot, then close storage
	a.storeSnapshot(shutdownCtx)
	err = a.sink.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.cooldownCache.Close()

	a.logger.Info("application-shutdown-complete")

	return nil
}
