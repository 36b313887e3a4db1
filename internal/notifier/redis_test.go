package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testChannel = "ledger.events"

func runBridge(t *testing.T, ctx context.Context, client *redis.Client, bridge *RedisBridge, subscribers int64) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)

	go func() {
		errCh <- bridge.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return client.PubSubNumSub(ctx, testChannel).Val()[testChannel] == subscribers
	}, time.Second, 10*time.Millisecond)

	return errCh
}

func requireNothing(t *testing.T, s *Subscription) {
	t.Helper()

	select {
	case n := <-s.C():
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisBridge(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	hubA, hubB := NewHub(4), NewHub(4)
	bridgeA := NewRedisBridge(client, testChannel, hubA)
	bridgeB := NewRedisBridge(client, testChannel, hubB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errA := runBridge(t, ctx, client, bridgeA, 1)
	errB := runBridge(t, ctx, client, bridgeB, 2)

	subA := hubA.Subscribe("bob")
	defer subA.Close()

	subB := hubB.Subscribe("bob")
	defer subB.Close()

	event := transferEvent("alice", "bob")
	require.NoError(t, bridgeA.Publish(ctx, event))

	for _, sub := range []*Subscription{subA, subB} {
		got := receive(t, sub)
		require.Equal(t, domain.NotificationTransferReceived, got.Type)
		require.Equal(t, event.RecordID, got.RecordID)
		require.True(t, got.Amount.Equal(event.Amount))
		require.True(t, got.Balance.Equal(event.ToBalance))
	}

	// The publishing instance does not get its own event back from Redis.
	requireNothing(t, subA)
	requireNothing(t, subB)

	// Garbage on the channel is skipped.
	require.NoError(t, client.Publish(ctx, testChannel, "{not json").Err())
	require.NoError(t, bridgeB.Publish(ctx, transferEvent("alice", "bob")))
	receive(t, subA)
	receive(t, subB)

	cancel()

	for _, errCh := range []<-chan error{errA, errB} {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("bridge did not stop")
		}
	}
}

func TestRedisBridgeDeliversLocallyWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	hub := NewHub(1)
	sub := hub.Subscribe("bob")
	defer sub.Close()

	bridge := NewRedisBridge(client, testChannel, hub)

	event := transferEvent("alice", "bob")
	require.Error(t, bridge.Publish(context.Background(), event))
	require.Equal(t, event.RecordID, receive(t, sub).RecordID)
}
