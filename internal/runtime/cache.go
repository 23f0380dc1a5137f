package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"virtual-exchange/internal/domain"
)

var ErrNoCachedData = errors.New("runtime: no cached candles")

// CacheConfig configures the derived-interval candle cache.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// DefaultCacheConfig returns sensible defaults for the derived-interval
// cache: a short TTL since every cached entry is reproducible from the
// one-minute source and exists purely to avoid re-resampling on every
// read.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{RedisURL: "localhost:6379", TTL: 5 * time.Minute}
}

// Cache provides Redis-backed caching of resampled 15m/4h/1d candles, so
// a run that repeatedly reads the same derived interval does not
// re-resample from the one-minute source on every call.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and verifies reachability with a bounded
// ping before returning.
func NewCache(config CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: config.RedisURL,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("runtime: connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: config.TTL}, nil
}

func cacheKey(symbol string, interval domain.Interval, windowEnd time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, interval, windowEnd.Unix())
}

// GetCandles returns a previously cached resampled window, if present.
func (c *Cache) GetCandles(ctx context.Context, symbol string, interval domain.Interval, windowEnd time.Time) ([]domain.Candle, error) {
	key := cacheKey(symbol, interval, windowEnd)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoCachedData
		}
		return nil, fmt.Errorf("runtime: cache get: %w", err)
	}

	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("runtime: cache unmarshal: %w", err)
	}
	return candles, nil
}

// SetCandles stores a resampled window. 1-day bars are cached longer
// than intraday ones since they change only once a day.
func (c *Cache) SetCandles(ctx context.Context, symbol string, interval domain.Interval, windowEnd time.Time, candles []domain.Candle) error {
	key := cacheKey(symbol, interval, windowEnd)
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("runtime: cache marshal: %w", err)
	}

	ttl := c.ttl
	if interval == domain.Interval1d {
		ttl = 24 * time.Hour
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("runtime: cache set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
