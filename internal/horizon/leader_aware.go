/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package horizon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/leadership"
)

// LeaderAware wraps the orchestrator so the extension loop runs only on
// the instance holding the redis lease. Read paths are unaffected;
// only horizon writes are single-homed.
type LeaderAware struct {
	orchestrator *Orchestrator
	election     *leadership.Election
	logger       zerolog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	running    bool
}

// NewLeaderAware creates a leader-aware orchestrator wrapper.
func NewLeaderAware(orchestrator *Orchestrator, election *leadership.Election, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		orchestrator: orchestrator,
		election:     election,
		logger:       logger.With().Str("component", "leader_aware_horizon").Logger(),
	}
}

// Start begins leader election and manages the orchestrator lifecycle.
func (la *LeaderAware) Start(ctx context.Context) error {
	la.ctx = ctx

	la.logger.Info().Msg("starting leader-aware horizon")

	if err := la.election.Start(ctx); err != nil {
		return err
	}

	go la.monitorLeadership()

	return nil
}

// Stop stops the orchestrator and releases leadership.
func (la *LeaderAware) Stop() error {
	la.logger.Info().Msg("stopping leader-aware horizon")

	if la.running && la.cancelFunc != nil {
		la.cancelFunc()
		la.running = false
	}

	return la.election.Stop()
}

// IsLeader returns whether this instance holds the lease.
func (la *LeaderAware) IsLeader() bool {
	return la.election.IsLeader()
}

func (la *LeaderAware) monitorLeadership() {
	leaderCh := la.election.LeaderCh()

	if la.election.IsLeader() {
		la.startLoop()
	}

	for {
		select {
		case <-la.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				la.logger.Info().Msg("became leader, starting horizon loop")
				la.startLoop()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping horizon loop")
				la.stopLoop()
			}
		}
	}
}

func (la *LeaderAware) startLoop() {
	if la.running {
		la.logger.Warn().Msg("horizon loop already running")
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	la.cancelFunc = cancel
	la.running = true

	go func() {
		if err := la.orchestrator.Run(ctx); err != nil && err != context.Canceled {
			la.logger.Error().Err(err).Msg("horizon loop error")
		}
		la.running = false
	}()
}

func (la *LeaderAware) stopLoop() {
	if !la.running {
		return
	}

	if la.cancelFunc != nil {
		la.cancelFunc()
		la.cancelFunc = nil
	}

	// Give the loop a beat to wind down before a possible restart.
	time.Sleep(100 * time.Millisecond)
	la.running = false
}
