package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/internal/execution"
	"github.com/mselser95/crossvenue-arb/internal/orderbook"
	"github.com/mselser95/crossvenue-arb/internal/resolver"
	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/pkg/cache"
	"github.com/mselser95/crossvenue-arb/pkg/config"
	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
	"github.com/mselser95/crossvenue-arb/pkg/healthprobe"
	"github.com/mselser95/crossvenue-arb/pkg/httpserver"
	"github.com/mselser95/crossvenue-arb/pkg/venue"
)

// Readiness component keys reported to the health checker.
const (
	compStorage      = "storage"
	compVenueAStream = "venue-a-stream"
	compVenueBStream = "venue-b-stream"
)

// App wires the engine together and owns component lifecycles.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.Checker
	httpServer    *httpserver.Server
	venueClientA  *venue.Client
	venueClientB  *venue.Client
	bookStore     *orderbook.Store
	resolver      *resolver.Resolver
	detector      *arbitrage.Detector
	coordinator   *execution.Coordinator
	bus           *eventbus.Bus
	storage       storage.Storage
	marketCache   *cache.ListingCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
