package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"workspace-backbone/backend/internal/realtime/gateway"
)

const channel = "realtime:rooms"

// Redis replicates gateway room broadcasts across instances over a
// pub/sub channel. Every instance publishes with its origin id; the
// hub drops frames it published itself.
type Redis struct {
	client *redis.Client
}

func New(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (b *Redis) Publish(ctx context.Context, ev gateway.RemoteEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal remote event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish remote event: %w", err)
	}
	return nil
}

// Listen subscribes and feeds remote frames into the hub until the
// context is cancelled.
func (b *Redis) Listen(ctx context.Context, hub *gateway.Hub) error {
	sub := b.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev gateway.RemoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[backplane] drop malformed frame: %v", err)
				continue
			}
			hub.DeliverRemote(ev)
		}
	}
}
