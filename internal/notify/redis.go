package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campus-canteen/api/internal/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRedisTopic is the pub/sub topic shared by all API instances.
	DefaultRedisTopic = "canteen:events"

	redisPublishTimeout = 2 * time.Second
	redisQueueSize      = 256
)

// envelope is the wire form of an event on the shared topic.
type envelope struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// RedisBridge shares rooms between API instances. Publish only enqueues;
// Run writes queued events to a Redis topic and relays everything received
// on that topic, including this instance's own publishes, into the local
// notifier. When Redis is unreachable or the queue is full the event goes
// straight to the local notifier so clients connected here still see it.
type RedisBridge struct {
	client *redis.Client
	topic  string
	local  Notifier
	queue  chan envelope
}

func NewRedisBridge(client *redis.Client, topic string, local Notifier) *RedisBridge {
	if topic == "" {
		topic = DefaultRedisTopic
	}
	return &RedisBridge{
		client: client,
		topic:  topic,
		local:  local,
		queue:  make(chan envelope, redisQueueSize),
	}
}

func (b *RedisBridge) Publish(channel string, event Event) {
	select {
	case b.queue <- envelope{Channel: channel, Event: event}:
	default:
		logger.Log.Warn("redis publish queue full, delivering locally",
			zap.String("channel", channel),
			zap.String("type", event.Type),
		)
		b.local.Publish(channel, event)
	}
}

// Run drains the publish queue and relays the subscribed topic until ctx is
// done or the subscription fails.
func (b *RedisBridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.drain(gctx)
		return nil
	})
	g.Go(func() error { return b.relay(gctx) })
	return g.Wait()
}

func (b *RedisBridge) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.queue:
			b.send(ctx, env)
		}
	}
}

func (b *RedisBridge) send(ctx context.Context, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Log.Error("encode redis event", zap.String("channel", env.Channel), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisPublishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.topic, data).Err(); err != nil {
		logger.Log.Warn("redis publish failed, delivering locally",
			zap.String("channel", env.Channel),
			zap.String("type", env.Event.Type),
			zap.Error(err),
		)
		b.local.Publish(env.Channel, env.Event)
	}
}

func (b *RedisBridge) relay(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	logger.Log.Info("redis bridge subscribed", zap.String("topic", b.topic))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			channel, event, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				logger.Log.Warn("drop malformed redis event", zap.Error(err))
				continue
			}
			b.local.Publish(channel, event)
		}
	}
}

func decodeEnvelope(data []byte) (string, Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", Event{}, err
	}
	if env.Channel == "" || env.Event.Type == "" {
		return "", Event{}, fmt.Errorf("envelope missing channel or type")
	}
	return env.Channel, env.Event, nil
}
