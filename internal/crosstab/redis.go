package crosstab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "storefront:storage"

// RedisRelay relays messages between instances over Redis pub/sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisRelay builds a relay on channel.
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

// Publish implements Relay.
func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	if r == nil || r.client == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("crosstab: encode message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("crosstab: publish: %w", err)
	}
	return nil
}

// Subscribe implements Relay. The returned channel closes when ctx is done or the
// subscription ends.
func (r *RedisRelay) Subscribe(ctx context.Context) (<-chan Message, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("crosstab: redis relay has no client")
	}
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("crosstab: subscribe %s: %w", r.channel, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		incoming := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-incoming:
				if !ok {
					return
				}
				msg, err := decodeMessage(m.Payload)
				if err != nil {
					r.logger.Warn("crosstab: dropping malformed relay message", zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeMessage(payload string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Message{}, err
	}
	if msg.Visitor == "" || msg.Key == "" {
		return Message{}, errors.New("message missing visitor or key")
	}
	return msg, nil
}
