package app

import (
	"context"
	"sync"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/circuitbreaker"
	"github.com/digitalrebelz/arbitrage-app/internal/connector"
	"github.com/digitalrebelz/arbitrage-app/internal/execution"
	"github.com/digitalrebelz/arbitrage-app/internal/marketdata"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"github.com/digitalrebelz/arbitrage-app/internal/storage"
	"github.com/digitalrebelz/arbitrage-app/pkg/cache"
	"github.com/digitalrebelz/arbitrage-app/pkg/config"
	"github.com/digitalrebelz/arbitrage-app/pkg/healthprobe"
	"github.com/digitalrebelz/arbitrage-app/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	now           func() time.Time
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	marketData    *marketdata.Cache
	connectors    []connector.Connector
	poller        *connector.Poller
	stream        *connector.Stream
	cooldownCache *cache.RistrettoCache
	detector      *arbitrage.Detector
	riskManager   *risk.Manager
	portfolio     *portfolio.Portfolio
	trader        *execution.PaperTrader
	breaker       *circuitbreaker.BalanceCircuitBreaker
	inflight      *inflightExposure
	opportunities chan *arbitrage.Opportunity
	sink          storage.Sink
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// Connectors replaces the connectors CONNECTOR_MODE would build.
	Connectors []connector.Connector
	// Sink replaces the sink STORAGE_MODE would build.
	Sink storage.Sink
	// QueueSize bounds the admitted-opportunity queue. Default 256.
	QueueSize int
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}
