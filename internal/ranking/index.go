package ranking

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Weights for the daily ranking score.
type Weights struct {
	Like  float64
	View  float64
	Order float64
}

// DefaultWeights are the consumer-side weights of the daily ranking index;
// the batch ranker scores with its own weights.
var DefaultWeights = Weights{Like: 0.2, View: 0.1, Order: 0.6}

// Index maintains the per-day ranking ZSET: key ranking:all:YYYYMMDD,
// member productId, score accumulated weighted activity.
type Index struct {
	client  *redis.Client
	weights Weights
	keyTTL  time.Duration
	logger  zerolog.Logger
}

// NewIndex creates a ranking index with a 2-day key TTL.
func NewIndex(client *redis.Client, weights Weights, keyTTL time.Duration, logger zerolog.Logger) *Index {
	if keyTTL <= 0 {
		keyTTL = 2 * 24 * time.Hour
	}
	return &Index{
		client:  client,
		weights: weights,
		keyTTL:  keyTTL,
		logger:  logger.With().Str("component", "ranking_index").Logger(),
	}
}

// Key builds the daily ZSET key.
func Key(day time.Time) string {
	return "ranking:all:" + day.Format("20060102")
}

// IncrementBy adds delta to a product's score for the day and arms the key
// TTL on first write.
func (i *Index) IncrementBy(ctx context.Context, day time.Time, productID int64, delta float64) error {
	key := Key(day)
	member := strconv.FormatInt(productID, 10)

	if err := i.client.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return fmt.Errorf("zincrby %s: %w", key, err)
	}

	// EXPIRE only when no TTL is set yet, so the window counts from the
	// first write of the day.
	ttl, err := i.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl < 0 {
		if err := i.client.Expire(ctx, key, i.keyTTL).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return nil
}

// LikeDelta is the score change for one like added (positive) or removed
// (negative).
func (i *Index) LikeDelta(added bool) float64 {
	if added {
		return i.weights.Like
	}
	return -i.weights.Like
}

// ViewDelta is the score change for one product view.
func (i *Index) ViewDelta() float64 {
	return i.weights.View
}

// OrderDelta is the score change for one ordered line: log1p of the line
// amount, weighted.
func (i *Index) OrderDelta(amount float64) float64 {
	if amount < 0 {
		amount = 0
	}
	return math.Log1p(amount) * i.weights.Order
}

// CarryOver seeds tomorrow's key with today's scores decayed by weight w,
// via ZUNIONSTORE with a single weighted source.
func (i *Index) CarryOver(ctx context.Context, today, tomorrow time.Time, w float64) error {
	src := Key(today)
	dst := Key(tomorrow)

	err := i.client.ZUnionStore(ctx, dst, &redis.ZStore{
		Keys:    []string{src},
		Weights: []float64{w},
	}).Err()
	if err != nil {
		return fmt.Errorf("zunionstore %s -> %s: %w", src, dst, err)
	}

	if err := i.client.Expire(ctx, dst, i.keyTTL).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", dst, err)
	}

	i.logger.Info().Str("from", src).Str("to", dst).Float64("weight", w).Msg("ranking carry-over complete")
	return nil
}

// Top returns the highest-scored product ids for the day.
func (i *Index) Top(ctx context.Context, day time.Time, n int64) ([]redis.Z, error) {
	entries, err := i.client.ZRevRangeWithScores(ctx, Key(day), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", Key(day), err)
	}
	return entries, nil
}
