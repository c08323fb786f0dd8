/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/events"
)

const redisChannelPrefix = "saga.events."

// RedisBus bridges the in-process bus over Redis pub/sub. It mirrors
// the NATS bridge for deployments that already run Redis for leader
// election and caching and do not want a second broker.
type RedisBus struct {
	client   *redis.Client
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[events.EventType]*redis.PubSub
}

// RedisBusConfig contains Redis pub/sub bridge configuration.
type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
}

// DefaultRedisBusConfig returns default Redis bridge configuration.
func DefaultRedisBusConfig() RedisBusConfig {
	return RedisBusConfig{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
	}
}

// NewRedisBus connects to Redis and wraps the given local bus. A failed
// connection is not fatal: the bridge logs the failure and every
// operation falls through to the local bus.
func NewRedisBus(cfg RedisBusConfig, local *events.Bus, logger zerolog.Logger) (*RedisBus, error) {
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		logger:   logger.With().Str("component", "eventbus_redis").Logger(),
		fallback: local,
		nodeID:   generateNodeID(),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[events.EventType]*redis.PubSub),
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, events stay in-process")
		_ = client.Close()
		return rb, nil
	}

	rb.client = client
	rb.logger.Info().Str("addr", cfg.Addr).Str("node_id", rb.nodeID).Msg("Redis event bridge connected")
	return rb, nil
}

// Subscribe registers a local subscriber and, when connected, mirrors
// the matching Redis channel into the local bus so remote events reach
// it too.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.fallback.Subscribe(eventType)

	if rb.client == nil {
		return sub
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if _, exists := rb.subs[eventType]; exists {
		return sub
	}

	channel := redisChannelPrefix + string(eventType)
	pubsub := rb.client.Subscribe(rb.ctx, channel)
	rb.subs[eventType] = pubsub

	rb.wg.Add(1)
	go rb.receive(eventType, pubsub)
	return sub
}

func (rb *RedisBus) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			remote, err := unmarshalBridgeMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal Redis message")
				continue
			}
			// Skip our own publications echoed back by the server.
			if remote.NodeID == rb.nodeID {
				continue
			}
			rb.fallback.Publish(eventType, remote.Payload)
		}
	}
}

// Publish sends an event payload to local subscribers and the Redis
// channel.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.fallback.Publish(eventType, payload)

	if rb.client == nil {
		return
	}

	data, err := marshalBridgeMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, redisChannelPrefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
	}
}

// Unsubscribe removes a subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.fallback.Unsubscribe(eventType, sub)
}

// Close stops the receivers and closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	for eventType, pubsub := range rb.subs {
		if err := pubsub.Close(); err != nil {
			rb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("failed to close Redis subscription")
		}
	}
	rb.subs = make(map[events.EventType]*redis.PubSub)
	rb.mu.Unlock()

	rb.wg.Wait()

	if rb.client == nil {
		return nil
	}
	if err := rb.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// bridgeMessage is the wire envelope shared by the Redis and NATS
// bridges.
type bridgeMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalBridgeMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(bridgeMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
	})
}

func unmarshalBridgeMessage(data []byte) (*bridgeMessage, error) {
	var msg bridgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bridge message: %w", err)
	}
	return &msg, nil
}
