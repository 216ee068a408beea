package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mysterria/silkroad/cache"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Message is the JSON payload published for every notification.
type Message struct {
	ActorID string    `json:"actor_id"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// Channel returns the pub/sub channel an actor's notifications go to.
func Channel(actorID string) string { return "notify:" + actorID }

// PubSubNotifier publishes notifications to per-actor pub/sub channels.
// Whoever fronts the actor subscribes to Channel(actorID); with nobody
// listening the message is dropped.
type PubSubNotifier struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPubSubNotifier creates a notifier publishing through ps.
func NewPubSubNotifier(ps cache.PubSub, logger *zap.Logger) *PubSubNotifier {
	return &PubSubNotifier{ps: ps, logger: logger}
}

// Tell publishes asynchronously and never blocks the caller.
func (n *PubSubNotifier) Tell(actorID, text string) {
	payload, err := json.Marshal(Message{ActorID: actorID, Text: text, SentAt: time.Now()})
	if err != nil {
		n.logger.Warn("notify encode failed", zap.String("actor", actorID), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.ps.Publish(ctx, Channel(actorID), string(payload)); err != nil {
			n.logger.Warn("notify publish failed", zap.String("actor", actorID), zap.Error(err))
		}
	}()
}
