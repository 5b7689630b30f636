package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/circuitbreaker"
	"github.com/digitalrebelz/arbitrage-app/internal/connector"
	"github.com/digitalrebelz/arbitrage-app/internal/execution"
	"github.com/digitalrebelz/arbitrage-app/internal/marketdata"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/internal/risk"
	"github.com/digitalrebelz/arbitrage-app/internal/storage"
	"github.com/digitalrebelz/arbitrage-app/internal/validation"
	"github.com/digitalrebelz/arbitrage-app/pkg/cache"
	"github.com/digitalrebelz/arbitrage-app/pkg/config"
	"github.com/digitalrebelz/arbitrage-app/pkg/healthprobe"
	"github.com/digitalrebelz/arbitrage-app/pkg/httpserver"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	connectTimeout   = 10 * time.Second
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Initialize components
	healthChecker := setupHealthChecker(cfg)
	marketData := marketdata.New(&marketdata.Config{Logger: logger, Clock: now})

	// Setup storage
	sink := opts.Sink
	if sink == nil {
		var err error
		sink, err = setupStorage(ctx, cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup storage: %w", err)
		}
	}

	// Setup cooldown cache
	cooldownCache, err := setupCooldownCache(logger)
	if err != nil {
		cancel()
		_ = sink.Close()
		return nil, fmt.Errorf("setup cooldown cache: %w", err)
	}

	fees := arbitrage.FeeSchedule{Rates: cfg.FeeRates, Default: cfg.DefaultFeeRate}
	detector := setupDetector(cfg, logger, marketData, sink, cache.NewCooldown(cooldownCache, cfg.CooldownWindow), fees)

	// Setup connectors
	connectors := opts.Connectors
	if connectors == nil {
		connectors, err = setupConnectors(cfg, logger, now)
		if err != nil {
			cancel()
			cooldownCache.Close()
			_ = sink.Close()
			return nil, fmt.Errorf("setup connectors: %w", err)
		}
	}

	var stream *connector.Stream
	if cfg.ConnectorMode == config.ConnectorStream && opts.Connectors == nil {
		stream = setupStream(cfg, logger, marketData, now)
	}

	var poller *connector.Poller
	if len(connectors) > 0 {
		poller = setupPoller(cfg, logger, connectors, marketData, detector)
	}

	// Setup risk, portfolio and paper trading
	riskManager := setupRiskManager(cfg, logger)

	pf, err := portfolio.New(&portfolio.Config{
		InitialBalance: cfg.InitialBalance,
		Logger:         logger,
		Clock:          now,
	})
	if err != nil {
		cancel()
		cooldownCache.Close()
		_ = sink.Close()
		return nil, fmt.Errorf("setup portfolio: %w", err)
	}

	var breaker *circuitbreaker.BalanceCircuitBreaker
	var onExecuted func(trade *types.Trade)
	if cfg.BreakerEnabled {
		breaker, err = setupCircuitBreaker(cfg, logger, pf, now)
		if err != nil {
			cancel()
			cooldownCache.Close()
			_ = sink.Close()
			return nil, fmt.Errorf("setup circuit breaker: %w", err)
		}
		onExecuted = func(trade *types.Trade) {
			breaker.RecordTrade(trade.Notional)
		}
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	opportunities := make(chan *arbitrage.Opportunity, queueSize)
	inflight := &inflightExposure{}
	onSettled := func(opp *arbitrage.Opportunity) {
		inflight.release(opp.Notional)
	}

	trader := execution.New(&execution.Config{
		Validator:          setupValidator(cfg, logger, marketData, fees),
		Portfolio:          pf,
		Storage:            sink,
		OpportunityChannel: opportunities,
		OnExecuted:         onExecuted,
		OnSettled:          onSettled,
		Gate:               riskManager,
		Logger:             logger,
		Clock:              now,
	})

	// Setup HTTP server
	var breakerSource httpserver.BreakerSource
	if breaker != nil {
		breakerSource = breaker
	}
	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Opportunities: detector,
		Trades:        trader,
		Portfolio:     pf,
		Risk:          riskManager,
		Books:         marketData,
		Breaker:       breakerSource,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		now:           now,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		marketData:    marketData,
		connectors:    connectors,
		poller:        poller,
		stream:        stream,
		cooldownCache: cooldownCache,
		detector:      detector,
		riskManager:   riskManager,
		portfolio:     pf,
		trader:        trader,
		breaker:       breaker,
		inflight:      inflight,
		opportunities: opportunities,
		sink:          sink,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// setupHealthChecker fails readiness when no scan completed in ten intervals.
func setupHealthChecker(cfg *config.Config) *healthprobe.HealthChecker {
	maxAge := 10 * cfg.ScanInterval
	if maxAge < 5*time.Second {
		maxAge = 5 * time.Second
	}
	return healthprobe.New(healthprobe.WithMaxScanAge(maxAge))
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Sink, error) {
	console := storage.NewConsoleSink(logger)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StorageMode {
	case config.StoragePostgres:
		pgSink, err := storage.NewPostgresSink(connectCtx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return storage.NewMultiSink(console, pgSink), nil

	case config.StorageRedis:
		redisSink, err := storage.NewRedisSink(connectCtx, &storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			MaxLen:   cfg.RedisStreamLen,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis storage: %w", err)
		}
		return storage.NewMultiSink(console, redisSink), nil
	}

	return console, nil
}

func setupCooldownCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "cooldown",
		NumCounters: 100000, // 10x expected max routes
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupDetector(
	cfg *config.Config,
	logger *zap.Logger,
	marketData *marketdata.Cache,
	sink storage.Sink,
	cooldown *cache.Cooldown,
	fees arbitrage.FeeSchedule,
) *arbitrage.Detector {
	return arbitrage.New(
		arbitrage.Config{
			MinProfitThresholdPercent: cfg.MinProfitThresholdPercent,
			CandidateNotional:         cfg.CandidateNotional,
			Staleness:                 cfg.OrderbookStaleness,
			FundingStaleness:          cfg.FundingStaleness,
			MinFundingRatePercent:     cfg.MinFundingRatePercent,
			FundingVenues:             cfg.FundingVenues,
			MaxConcurrency:            cfg.MaxConcurrentRequests,
			OpportunityWindow:         cfg.OpportunityWindow,
			TickerPrefilter:           cfg.TickerPrefilter,
			Fees:                      fees,
			Logger:                    logger,
		},
		marketData,
		sink,
		cooldown,
	)
}

// venues returns the spot exchanges followed by the perpetual venues of
// cfg.FundingVenues, without duplicates.
func venues(cfg *config.Config) (names []string, perps map[string]bool) {
	seen := make(map[string]bool)
	perps = make(map[string]bool)
	for _, ex := range cfg.Exchanges {
		if !seen[ex] {
			seen[ex] = true
			names = append(names, ex)
		}
	}
	for _, spot := range cfg.Exchanges {
		perp, ok := cfg.FundingVenues[spot]
		if !ok {
			continue
		}
		perps[perp] = true
		if !seen[perp] {
			seen[perp] = true
			names = append(names, perp)
		}
	}
	return names, perps
}

func setupConnectors(cfg *config.Config, logger *zap.Logger, now func() time.Time) ([]connector.Connector, error) {
	names, perps := venues(cfg)

	switch cfg.ConnectorMode {
	case config.ConnectorSimulated:
		market := connector.NewSimulatedMarket(cfg.SimSeed, nil, cfg.SimVolatility)
		connectors := make([]connector.Connector, 0, len(names))
		for i, name := range names {
			connectors = append(connectors, connector.NewSimulated(&connector.SimulatedConfig{
				Name:   name,
				Market: market,
				Seed:   cfg.SimSeed + int64(i) + 1,
				Clock:  now,
			}))
		}
		logger.Info("simulated-connectors-created", zap.Strings("exchanges", names))
		return connectors, nil

	case config.ConnectorREST, config.ConnectorStream:
		connectors := make([]connector.Connector, 0, len(names))
		var errs []error
		for _, name := range names {
			if cfg.ConnectorMode == config.ConnectorStream && name == cfg.StreamExchange {
				continue
			}
			baseURL := cfg.RESTBaseURLs[name]
			if baseURL == "" {
				if cfg.ConnectorMode == config.ConnectorStream {
					logger.Warn("exchange-without-rest-url-skipped", zap.String("exchange", name))
					continue
				}
				errs = append(errs, fmt.Errorf("no REST base URL for %q", name))
				continue
			}
			connectors = append(connectors, connector.NewREST(&connector.RESTConfig{
				Name:           name,
				BaseURL:        baseURL,
				Futures:        perps[name],
				FuturesBaseURL: baseURL,
				Timeout:        connector.FetchTimeout(0, cfg.OrderbookStaleness),
				Logger:         logger,
				Clock:          now,
			}))
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return connectors, nil
	}

	return nil, fmt.Errorf("unknown connector mode %q", cfg.ConnectorMode)
}

func setupStream(cfg *config.Config, logger *zap.Logger, sink connector.BookSink, now func() time.Time) *connector.Stream {
	return connector.NewStream(&connector.StreamConfig{
		Exchange:              cfg.StreamExchange,
		URL:                   cfg.StreamURL,
		Symbols:               cfg.Symbols,
		Depth:                 cfg.OrderbookDepth,
		DialTimeout:           cfg.WSDialTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		Logger:                logger,
		Clock:                 now,
	}, sink)
}

func setupPoller(
	cfg *config.Config,
	logger *zap.Logger,
	connectors []connector.Connector,
	marketData *marketdata.Cache,
	detector *arbitrage.Detector,
) *connector.Poller {
	_, perps := venues(cfg)
	funding := make([]string, 0, len(perps))
	for perp := range perps {
		funding = append(funding, perp)
	}

	return connector.NewPoller(&connector.PollerConfig{
		Connectors:            connectors,
		Depth:                 cfg.OrderbookDepth,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		Staleness:             cfg.OrderbookStaleness,
		FetchTickers:          cfg.FetchTickers || cfg.TickerPrefilter,
		FundingExchanges:      funding,
		OnUnsupported:         detector.Exclude,
		Logger:                logger,
	}, marketData)
}

func setupRiskManager(cfg *config.Config, logger *zap.Logger) *risk.Manager {
	return risk.New(&risk.Config{
		Limits: risk.Limits{
			MaxPositionSize:           cfg.MaxPositionSize,
			MaxTotalExposure:          cfg.MaxTotalExposure,
			MaxDrawdownPercent:        cfg.MaxDrawdownPercent,
			MinProfitThresholdPercent: cfg.MinProfitThresholdPercent,
			MaxLossPercent:            cfg.MaxLossPercent,
			MaxRiskScore:              cfg.MaxRiskScore,
		},
		StalenessBound: cfg.OrderbookStaleness,
		Logger:         logger,
	})
}

// setupCircuitBreaker guards execution on free capital: cash not tied up in
// open exposure.
func setupCircuitBreaker(
	cfg *config.Config,
	logger *zap.Logger,
	pf *portfolio.Portfolio,
	now func() time.Time,
) (*circuitbreaker.BalanceCircuitBreaker, error) {
	return circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.BreakerCheckInterval,
		TradeMultiplier: cfg.BreakerTradeMultiplier,
		MinAbsolute:     cfg.BreakerMinBalance,
		HysteresisRatio: cfg.BreakerHysteresisRatio,
		Balances: circuitbreaker.BalanceFunc(func(context.Context) (decimal.Decimal, error) {
			snap := pf.Snapshot()
			return snap.Cash.Sub(snap.TotalExposure), nil
		}),
		Logger: logger,
		Clock:  now,
	})
}

func setupValidator(
	cfg *config.Config,
	logger *zap.Logger,
	marketData *marketdata.Cache,
	fees arbitrage.FeeSchedule,
) *validation.Validator {
	return validation.New(&validation.Config{
		Staleness:                 cfg.OrderbookStaleness,
		FundingStaleness:          cfg.FundingStaleness,
		MaxPriceDeviationPercent:  cfg.MaxPriceDeviationPercent,
		MinProfitThresholdPercent: cfg.MinProfitThresholdPercent,
		Logger:                    logger,
	}, marketData, fees)
}

// BuildConnectors returns the connectors CONNECTOR_MODE selects, for
// commands that read market data without running the pipeline.
func BuildConnectors(cfg *config.Config, logger *zap.Logger) ([]connector.Connector, error) {
	return setupConnectors(cfg, logger, time.Now)
}
