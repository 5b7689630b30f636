package storage

import (
	"context"
	"fmt"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
	"github.com/digitalrebelz/arbitrage-app/internal/portfolio"
	"github.com/digitalrebelz/arbitrage-app/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream names records are appended to.
const (
	StreamOpportunities = "arb:opportunities"
	StreamTrades        = "arb:trades"
	StreamSnapshots     = "arb:snapshots"
)

const defaultStreamMaxLen int64 = 10000

// RedisConfig holds Redis sink configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxLen caps each stream approximately (XADD MAXLEN ~).
	MaxLen int64
	Logger *zap.Logger
}

// RedisSink implements Sink by appending JSON records to Redis streams.
type RedisSink struct {
	rdb    redis.UniversalClient
	maxLen int64
	logger *zap.Logger
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg *RedisConfig) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	s := NewRedisSinkFromClient(rdb, cfg.MaxLen, cfg.Logger)
	s.logger.Info("redis-storage-connected", zap.String("addr", cfg.Addr))
	return s, nil
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(rdb redis.UniversalClient, maxLen int64, logger *zap.Logger) *RedisSink {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{rdb: rdb, maxLen: maxLen, logger: logger}
}

// StoreOpportunity appends opp to the opportunities stream.
func (r *RedisSink) StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	return r.append(ctx, StreamOpportunities, opp.ID, opp)
}

// StoreTrade appends trade to the trades stream.
func (r *RedisSink) StoreTrade(ctx context.Context, trade *types.Trade) error {
	return r.append(ctx, StreamTrades, trade.ID, trade)
}

// StoreSnapshot appends snap to the snapshots stream.
func (r *RedisSink) StoreSnapshot(ctx context.Context, snap *portfolio.Snapshot) error {
	return r.append(ctx, StreamSnapshots, "", snap)
}

func (r *RedisSink) append(ctx context.Context, stream, id string, record any) error {
	args, err := r.entry(stream, id, record)
	if err != nil {
		return err
	}

	err = r.rdb.XAdd(ctx, args).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// entry builds the XADD arguments for record.
func (r *RedisSink) entry(stream, id string, record any) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", stream, err)
	}

	values := map[string]interface{}{"payload": payload}
	if id != "" {
		values["id"] = id
	}

	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}, nil
}

// Close closes the Redis client.
func (r *RedisSink) Close() error {
	r.logger.Info("closing-redis-storage")
	return r.rdb.Close()
}
