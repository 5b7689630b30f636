package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("connector-mode", a.cfg.ConnectorMode),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Strings("symbols", a.cfg.Symbols),
		zap.Strings("exchanges", a.cfg.Exchanges),
		zap.String("min-profit-threshold-percent", a.cfg.MinProfitThresholdPercent.String()),
		zap.String("log-level", a.cfg.LogLevel))

	// Start all components
	err := a.Start()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Duration("scan-interval", a.cfg.ScanInterval))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

// Start starts every component and the pipeline loops without blocking.
func (a *App) Start() error {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Start depth stream
	if a.stream != nil {
		err := a.stream.Start(a.ctx)
		if err != nil {
			a.stream = nil
			return fmt.Errorf("start depth stream: %w", err)
		}
	}

	// Start circuit breaker before anything can be queued
	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	// Start paper trader
	err := a.trader.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start paper trader: %w", err)
	}

	// Start pipeline loops
	a.wg.Add(2)
	go a.scanLoop()
	go a.snapshotLoop()

	if a.cfg.ExposureResetInterval > 0 {
		a.wg.Add(1)
		go a.exposureResetLoop()
	}

	return nil
}

// ScanOnce runs a single pass without executing anything.
func (a *App) ScanOnce(ctx context.Context) (PassReport, error) {
	report, err := a.Pass(ctx)
	if err != nil {
		return report, fmt.Errorf("scan once: %w", err)
	}
	a.healthChecker.MarkScan(a.now())
	return report, nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
