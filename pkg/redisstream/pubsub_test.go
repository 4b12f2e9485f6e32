package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

func TestBuildPubSubInProcess(t *testing.T) {
	bus, err := BuildPubSub(Settings{})
	require.NoError(t, err)
	defer func() { require.NoError(t, bus.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := bus.Subscriber.Subscribe(ctx, "exchanges")
	require.NoError(t, err)

	require.NoError(t, bus.Publisher.Publish("exchanges", message.NewMessage(watermill.NewUUID(), []byte(`{"thread_id":"t1"}`))))

	select {
	case m := <-msgs:
		require.JSONEq(t, `{"thread_id":"t1"}`, string(m.Payload))
		m.Ack()
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{Enabled: true}.withDefaults()
	require.Equal(t, "localhost:6379", s.Addr)
	require.Equal(t, "chat-widget", s.Group)
	require.Equal(t, "backend-1", s.Consumer)

	s = Settings{Addr: "redis:6380", Group: "g", Consumer: "c"}.withDefaults()
	require.Equal(t, "redis:6380", s.Addr)
	require.Equal(t, "g", s.Group)
}

func TestBusCloseNil(t *testing.T) {
	var b *Bus
	require.NoError(t, b.Close())
}
