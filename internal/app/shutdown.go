package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops the application in dependency order: the HTTP surface
// first, then execution, detection, the book store, and finally the venue
// streams and storage.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(compVenueAStream, false)
	a.healthChecker.SetReady(compVenueBStream, false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	err = a.coordinator.Close()
	if err != nil {
		a.logger.Error("coordinator-close-error", zap.Error(err))
	}

	err = a.detector.Close()
	if err != nil {
		a.logger.Error("detector-close-error", zap.Error(err))
	}

	err = a.bookStore.Close()
	if err != nil {
		a.logger.Error("book-store-close-error", zap.Error(err))
	}

	err = a.venueClientA.Close()
	if err != nil {
		a.logger.Error("venue-a-client-close-error", zap.Error(err))
	}

	err = a.venueClientB.Close()
	if err != nil {
		a.logger.Error("venue-b-client-close-error", zap.Error(err))
	}

	err = a.bus.Close()
	if err != nil {
		a.logger.Error("event-bus-close-error", zap.Error(err))
	}

	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.marketCache.Close()

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
