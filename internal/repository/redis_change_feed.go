package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const changeChannelPrefix = "changes:"

// RedisChangeFeed implements domain.ChangeFeed with Redis pub/sub.
// Delivery is best effort: subscribers that fall behind drop events.
type RedisChangeFeed struct {
	client *redis.Client
}

func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, changeChannelPrefix+ev.Table, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a feed for table. The subscription ends when ctx is done or Close is called.
func (f *RedisChangeFeed) Subscribe(ctx context.Context, table string) (domain.ChangeSubscription, error) {
	pubsub := f.client.Subscribe(ctx, changeChannelPrefix+table)
	// Wait for the subscription confirmation so no event published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan domain.ChangeEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx)
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan domain.ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.events)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev domain.ChangeEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change event")
				continue
			}
			select {
			case s.events <- ev:
			default:
				// slow consumer
			}
		}
	}
}
