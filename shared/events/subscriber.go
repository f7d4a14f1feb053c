package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	minIdle       time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// MinIdle is how long a delivered but unacknowledged message waits
	// before this consumer claims it again.
	MinIdle time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.MinIdle == 0 {
		config.MinIdle = time.Minute
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		minIdle:       config.MinIdle,
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().Str("stream", s.stream).Str("group", s.group).Str("consumer", s.consumer).Msg("subscriber started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("stream", s.stream).Msg("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.reclaimPending(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("stream", s.stream).Msg("reclaiming pending messages failed")
			}
			if err := s.readMessages(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("stream", s.stream).Msg("reading messages failed")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleBatch(ctx, stream.Messages)
	}
	return nil
}

// reclaimPending retries messages whose handler failed earlier. Failed
// messages stay unacknowledged in the pending list until they succeed.
func (s *Subscriber) reclaimPending(ctx context.Context) error {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.minIdle,
		Start:    "0-0",
		Count:    s.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	s.handleBatch(ctx, messages)
	return nil
}

func (s *Subscriber) handleBatch(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		if err := s.processMessage(ctx, message); err != nil {
			log.Error().Err(err).Str("message_id", message.ID).Msg("failed to process message")
			continue
		}

		if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
			log.Warn().Err(err).Str("message_id", message.ID).Msg("failed to ack message")
		}
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("invalid message format")
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return s.handler(ctx, event)
}
