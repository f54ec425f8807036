package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricecomparator/internal/logger"

	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateKeyPrefix = "comparator:target:"

var (
	rateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_rate_limit_decisions_total",
			Help: "Total number of rate limit decisions for target updates",
		},
		[]string{"decision", "instance"},
	)
	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_publish_total",
			Help: "Total number of snapshots published to Redis by outcome",
		},
		[]string{"outcome", "instance"},
	)
)

func init() {
	prometheus.MustRegister(rateDecisionsTotal)
	prometheus.MustRegister(publishTotal)
}

// Client wraps the Redis connection used for snapshot fan-out and for rate
// limiting target updates across instances.
type Client struct {
	rdb      *redis.Client
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	channel  string
	instance string

	// queue feeds the publisher goroutine; PublishSnapshot drops when it is full.
	queue     chan publishJob
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewClient connects to Redis at addr and verifies the connection.
func NewClient(ctx context.Context, addr, instance string, targetPerMinute int) (*Client, error) {
	rdb := newRedis(addr)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logger.Log.Info("Redis connection established", zap.String("addr", addr))

	return newClient(rdb, instance, targetPerMinute), nil
}

func newRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		// Per-call context deadlines bound every command, not only the
		// default read timeout.
		ContextTimeoutEnabled: true,
	})
}

func newClient(rdb *redis.Client, instance string, targetPerMinute int) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		rdb:      rdb,
		limiter:  redis_rate.NewLimiter(rdb),
		limit:    redis_rate.PerMinute(targetPerMinute),
		channel:  SnapshotChannel,
		instance: instance,
		queue:    make(chan publishJob, publishQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.wg.Add(1)
	go c.runPublisher()
	return c
}

// Allow reports whether key may update the target now.
func (c *Client) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := c.limiter.Allow(ctx, rateKeyPrefix+key, c.limit)
	if err != nil {
		return false, 0, err
	}
	if res.Allowed == 0 {
		rateDecisionsTotal.WithLabelValues("denied", c.instance).Inc()
		logger.Log.Info("Target update rate limited",
			zap.String("key", key),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return false, res.RetryAfter, nil
	}
	rateDecisionsTotal.WithLabelValues("allowed", c.instance).Inc()
	return true, 0, nil
}

// Close stops the publisher, dropping anything still queued, and closes the
// connection pool. Commands in flight fail as their connections close.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.rdb.Close()
		c.wg.Wait()
	})
	return c.closeErr
}
