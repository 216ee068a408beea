package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mysterria/silkroad/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestTell_PublishesToActorChannel(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	n := NewPubSubNotifier(ps, nop())

	ch, cancel, err := ps.Subscribe(context.Background(), Channel("alice"))
	require.NoError(t, err)
	defer cancel()

	n.Tell("alice", "Your transfer has arrived")

	select {
	case msg := <-ch:
		assert.Equal(t, "notify:alice", msg.Channel)
		var m Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &m))
		assert.Equal(t, "alice", m.ActorID)
		assert.Equal(t, "Your transfer has arrived", m.Text)
		assert.False(t, m.SentAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}
}

func TestTell_NoSubscriberDoesNotBlock(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	n := NewPubSubNotifier(ps, nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Tell("nobody", "hello")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tell blocked")
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notify:bob", Channel("bob"))
}
