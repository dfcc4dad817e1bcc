package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to the receiver id to form the channel name.
const DefaultChannelPrefix = "notifications:"

// Publisher is the subset of the Redis client used for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notifications on a per-receiver Redis channel.
type RedisNotifier struct {
	client Publisher
	prefix string
	logger *slog.Logger
}

// NewRedisNotifier creates a RedisNotifier.
func NewRedisNotifier(client Publisher, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		client: client,
		prefix: DefaultChannelPrefix,
		logger: logger,
	}
}

// Channel returns the channel a receiver subscribes to.
func (n *RedisNotifier) Channel(receiverID string) string {
	return n.prefix + receiverID
}

// Dispatch publishes the notification as JSON.
func (n *RedisNotifier) Dispatch(ctx context.Context, notification Notification) error {
	if err := notification.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	receivers, err := n.client.Publish(ctx, n.Channel(notification.ReceiverID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.DebugContext(ctx, "notification published",
		slog.String("type", notification.Type),
		slog.String("receiver_id", notification.ReceiverID),
		slog.Int64("subscribers", receivers))
	return nil
}

// Subscriber is the subset of the Redis client used for subscribing.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisStream delivers the payloads published by RedisNotifier to a
// connected receiver.
type RedisStream struct {
	client Subscriber
	prefix string
}

// NewRedisStream creates a RedisStream.
func NewRedisStream(client Subscriber) *RedisStream {
	return &RedisStream{client: client, prefix: DefaultChannelPrefix}
}

// Subscribe returns the raw JSON notifications for receiverID. The channel
// is closed when ctx is done or the subscription fails.
func (s *RedisStream) Subscribe(ctx context.Context, receiverID string) (<-chan []byte, error) {
	ps := s.client.Subscribe(ctx, s.prefix+receiverID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
