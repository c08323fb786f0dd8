/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects the single horizon orchestrator among
// scheduler instances sharing a database, using a Redis lease. The
// leader renews its lease, followers campaign until the key expires.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/telemetry"
)

const (
	defaultElectionKey     = "saga:leader:horizon"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// releaseScript deletes the lease only while this instance still owns
// it, so a stale holder cannot evict a newer leader.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ElectionConfig tunes the lease timings. LeaseDuration must exceed
// RenewalInterval or the leadership flaps on every tick.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the current leader's ID.
	ElectionKey string

	LeaseDuration   time.Duration
	RenewalInterval time.Duration
	RetryInterval   time.Duration

	// InstanceID identifies this scheduler instance in the lease and in
	// the leadership metrics.
	InstanceID string
}

// DefaultConfig returns production lease timings against a local Redis.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.New().String(),
	}
}

// Election campaigns for the horizon-orchestrator lease.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     ElectionConfig
	instanceID string

	mu       sync.Mutex
	isLeader bool

	cancel   context.CancelFunc
	leaderCh chan bool
}

// NewElection connects to Redis and prepares a campaign. Zero config
// fields fall back to the defaults.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration == 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval == 0 {
		config.RenewalInterval = defaultRenewalInterval
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	return &Election{
		client:     client,
		logger:     logger.With().Str("component", "leadership").Str("instance_id", config.InstanceID).Logger(),
		config:     config,
		instanceID: config.InstanceID,
		leaderCh:   make(chan bool, 1),
	}, nil
}

// Start launches the campaign loop. The first attempt runs immediately
// so a lone instance leads without waiting out a retry interval.
func (e *Election) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info().
		Dur("lease_duration", e.config.LeaseDuration).
		Str("election_key", e.config.ElectionKey).
		Msg("campaigning for horizon leadership")

	go e.run(ctx)
	return nil
}

// Stop ends the campaign and releases the lease when held, so a standby
// instance takes over without waiting for expiry.
func (e *Election) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}

	if e.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.releaseLease(ctx); err != nil {
			e.logger.Error().Err(err).Msg("release leadership lease")
		}
	}

	return e.client.Close()
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// LeaderCh delivers leadership transitions. The channel holds one
// pending transition; a stalled reader only misses intermediate flips.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the instance ID holding the lease, or "" when the
// seat is vacant.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	leaderID, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return leaderID, nil
}

// run campaigns until the context ends, renewing at RenewalInterval
// while leading and retrying at RetryInterval while following.
func (e *Election) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.campaign(ctx)
			if e.IsLeader() {
				timer.Reset(e.config.RenewalInterval)
			} else {
				timer.Reset(e.config.RetryInterval)
			}
		}
	}
}

func (e *Election) campaign(ctx context.Context) {
	held, err := e.acquireLease(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("leadership campaign failed")
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquireLease takes the lease when vacant and renews it when this
// instance already owns it.
func (e *Election) acquireLease(ctx context.Context) (bool, error) {
	acquired, err := e.client.SetNX(ctx, e.config.ElectionKey, e.instanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if acquired {
		return true, nil
	}

	holder, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		// Expired between SetNX and Get; the next tick takes it.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease holder: %w", err)
	}
	if holder != e.instanceID {
		return false, nil
	}

	if err := e.client.Expire(ctx, e.config.ElectionKey, e.config.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

func (e *Election) releaseLease(ctx context.Context) error {
	if err := e.client.Eval(ctx, releaseScript, []string{e.config.ElectionKey}, e.instanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released horizon leadership")
	return nil
}

func (e *Election) setLeader(isLeader bool) {
	e.mu.Lock()
	changed := e.isLeader != isLeader
	e.isLeader = isLeader
	e.mu.Unlock()
	if !changed {
		return
	}

	if isLeader {
		e.logger.Info().Msg("acquired horizon leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Msg("lost horizon leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "lost").Inc()
	}

	select {
	case e.leaderCh <- isLeader:
	default:
	}
}
