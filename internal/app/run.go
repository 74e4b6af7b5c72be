package app

import (
	"errors"
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
		zap.Float64("arb-threshold", a.cfg.ArbThreshold),
		zap.Bool("auto-execute", a.cfg.AutoExecute()),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("venue-a-ws-url", a.cfg.VenueA.WSURL),
		zap.String("venue-b-ws-url", a.cfg.VenueB.WSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Publish persisted mappings so the detector resolves books immediately.
	err := a.resolver.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}

	err = a.venueClientA.Start()
	if err != nil {
		return fmt.Errorf("start venue A client: %w", err)
	}
	a.healthChecker.SetReady(compVenueAStream, true)

	err = a.venueClientB.Start()
	if err != nil {
		return fmt.Errorf("start venue B client: %w", err)
	}
	a.healthChecker.SetReady(compVenueBStream, true)

	err = a.bookStore.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start order book store: %w", err)
	}

	err = a.detector.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start arbitrage detector: %w", err)
	}

	err = a.detector.Bootstrap(a.ctx, a.venueClientA, a.venueClientB)
	if err != nil {
		return fmt.Errorf("bootstrap subscriptions: %w", err)
	}

	err = a.coordinator.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start execution coordinator: %w", err)
	}

	a.wg.Add(2)
	go a.runMarketSync()
	go a.refreshSubscriptions()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runMarketSync() {
	defer a.wg.Done()
	err := a.resolver.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("market-sync-loop-error", zap.Error(err))
	}
}

// refreshSubscriptions re-issues the mapped market subscriptions after every
// sync interval so pairs discovered at runtime start streaming. Subscribe is
// idempotent, so re-sending known ids is harmless.
func (a *App) refreshSubscriptions() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			err := a.detector.Bootstrap(a.ctx, a.venueClientA, a.venueClientB)
			if err != nil {
				a.logger.Error("subscription-refresh-failed", zap.Error(err))
			}
		}
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
