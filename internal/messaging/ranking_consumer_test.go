package messaging

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/ranking"
)

type rankingTestSetup struct {
	handler  *RankingHandler
	redis    *miniredis.Miniredis
	client   *redis.Client
	mockPool pgxmock.PgxPoolIface
	day      time.Time
}

func setupRankingHandler(t *testing.T) *rankingTestSetup {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	index := ranking.NewIndex(client, ranking.DefaultWeights, 2*24*time.Hour, zerolog.Nop())
	handler := NewRankingHandler(mockPool, index, newFakeHandledRepo(), "ranking-consumer", zerolog.Nop())

	day := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return day }

	return &rankingTestSetup{
		handler:  handler,
		redis:    server,
		client:   client,
		mockPool: mockPool,
		day:      day,
	}
}

func (s *rankingTestSetup) expectTx() {
	s.mockPool.ExpectBegin()
	s.mockPool.ExpectCommit()
}

func (s *rankingTestSetup) score(t *testing.T, productID string) float64 {
	t.Helper()
	score, err := s.client.ZScore(context.Background(), ranking.Key(s.day), productID).Result()
	require.NoError(t, err)
	return score
}

func orderRecord(items []models.OrderItemPayload, subtotal int64) *Record {
	payload, _ := json.Marshal(models.OrderCreatedPayload{OrderID: 1, UserID: 7, Subtotal: subtotal, Items: items})
	return &Record{
		Topic:     models.TopicOrderEvents,
		EventID:   uuid.New(),
		EventType: models.EventTypeOrderCreated,
		Version:   1,
		Payload:   payload,
	}
}

func TestRankingHandler_LikeWeight(t *testing.T) {
	setup := setupRankingHandler(t)

	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(), likeRecord(models.EventTypeLikeAdded, 42, 1)))
	assert.InDelta(t, 0.2, setup.score(t, "42"), 1e-9)

	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(), likeRecord(models.EventTypeLikeRemoved, 42, 2)))
	assert.InDelta(t, 0.0, setup.score(t, "42"), 1e-9)

	// The key carries the 2-day TTL from the first write.
	ttl := setup.redis.TTL(ranking.Key(setup.day))
	assert.Equal(t, 2*24*time.Hour, ttl)
}

func TestRankingHandler_RedeliveryIsIdempotent(t *testing.T) {
	setup := setupRankingHandler(t)
	record := likeRecord(models.EventTypeLikeAdded, 42, 1)

	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(), record))
	require.NoError(t, setup.handler.Handle(context.Background(), record))

	assert.InDelta(t, 0.2, setup.score(t, "42"), 1e-9, "redelivered record must not re-increment")
}

func TestRankingHandler_OrderAmountDominatesActivity(t *testing.T) {
	setup := setupRankingHandler(t)

	// Product A: 100 views, 5 likes, one order of amount 1_000.
	viewPayload, _ := json.Marshal(models.ProductViewedPayload{ProductID: 100})
	for i := 0; i < 100; i++ {
		setup.expectTx()
		record := &Record{
			Topic:     models.TopicProductEvents,
			EventID:   uuid.New(),
			EventType: models.EventTypeProductViewed,
			Version:   int64(i + 1),
			Payload:   viewPayload,
		}
		require.NoError(t, setup.handler.Handle(context.Background(), record))
	}
	for i := 0; i < 5; i++ {
		setup.expectTx()
		require.NoError(t, setup.handler.Handle(context.Background(), likeRecord(models.EventTypeLikeAdded, 100, int64(i+1))))
	}
	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(),
		orderRecord([]models.OrderItemPayload{{ProductID: 100, Quantity: 1, Price: 1_000}}, 1_000)))

	// Product B: a single order of amount 100_000.
	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(),
		orderRecord([]models.OrderItemPayload{{ProductID: 200, Quantity: 1, Price: 100_000}}, 100_000)))

	scoreA := setup.score(t, "100")
	scoreB := setup.score(t, "200")
	assert.Greater(t, scoreB, scoreA, "the large order outranks accumulated small activity")

	top, err := setup.client.ZRevRange(context.Background(), ranking.Key(setup.day), 0, 0).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, top)
}

func TestRankingHandler_OrderUsesAverageUnitPrice(t *testing.T) {
	setup := setupRankingHandler(t)

	// Subtotal 30_000 over 3 units: average unit price 10_000.
	setup.expectTx()
	require.NoError(t, setup.handler.Handle(context.Background(), orderRecord([]models.OrderItemPayload{
		{ProductID: 1, Quantity: 2, Price: 12_000},
		{ProductID: 2, Quantity: 1, Price: 6_000},
	}, 30_000)))

	// Per item: log1p(averageUnitPrice * quantity) * 0.6.
	expected1 := 0.6 * math.Log1p(20_000)
	expected2 := 0.6 * math.Log1p(10_000)
	assert.InDelta(t, expected1, setup.score(t, "1"), 1e-9)
	assert.InDelta(t, expected2, setup.score(t, "2"), 1e-9)
}
