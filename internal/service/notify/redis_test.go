package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pointledger/internal/testutil"
)

func TestRedisSink(t *testing.T) {
	rc := testutil.StartRedisContainer(t)
	t.Cleanup(rc.Terminate)

	sink := NewRedisSink(rc.Addr, "test.balances")
	t.Cleanup(func() { _ = sink.Close() })
	require.NoError(t, sink.Ping(t.Context()))

	client := redis.NewClient(&redis.Options{Addr: rc.Addr})
	t.Cleanup(func() { _ = client.Close() })

	pubsub := client.Subscribe(t.Context(), "test.balances")
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(t.Context())
	require.NoError(t, err, "subscription must be confirmed")

	key := newKey()
	ev := newEvent(key, 50, 750)

	err = sink.Send(t.Context(), ev)
	require.NoError(t, err)

	select {
	case msg := <-pubsub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, ev.Transaction.ID, got.TransactionID)
		require.Equal(t, key.CustomerID, got.CustomerID)
		require.Equal(t, int64(750), got.Balance)
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}
