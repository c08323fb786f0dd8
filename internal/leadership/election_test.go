/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func testConfig(addr, instanceID string) ElectionConfig {
	return ElectionConfig{
		RedisAddr:       addr,
		ElectionKey:     "saga:test:leader",
		LeaseDuration:   500 * time.Millisecond,
		RenewalInterval: 100 * time.Millisecond,
		RetryInterval:   50 * time.Millisecond,
		InstanceID:      instanceID,
	}
}

func waitLeader(t *testing.T, e *Election, want bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.IsLeader() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("IsLeader() never became %v", want)
}

func TestElection_SingleInstanceBecomesLeader(t *testing.T) {
	mr := miniredis.RunT(t)

	e, err := NewElection(testConfig(mr.Addr(), "node-a"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	waitLeader(t, e, true)

	leader, err := e.GetLeader(ctx)
	if err != nil {
		t.Fatalf("get leader: %v", err)
	}
	if leader != "node-a" {
		t.Fatalf("leader = %q, want node-a", leader)
	}
}

func TestElection_OnlyOneLeaderAtATime(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := NewElection(testConfig(mr.Addr(), "node-a"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election a: %v", err)
	}
	b, err := NewElection(testConfig(mr.Addr(), "node-b"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election b: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	defer a.Stop()
	waitLeader(t, a, true)

	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	defer b.Stop()

	// b must not steal a held lease.
	time.Sleep(300 * time.Millisecond)
	if b.IsLeader() {
		t.Fatalf("second instance became leader while the lease is held")
	}
	if !a.IsLeader() {
		t.Fatalf("first instance lost leadership without stopping")
	}
}

func TestElection_FailoverAfterLeaderStops(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := NewElection(testConfig(mr.Addr(), "node-a"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election a: %v", err)
	}
	b, err := NewElection(testConfig(mr.Addr(), "node-b"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election b: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	waitLeader(t, a, true)

	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	defer b.Stop()

	// Stopping the leader releases the lock; the standby takes over.
	if err := a.Stop(); err != nil {
		t.Fatalf("stop a: %v", err)
	}
	waitLeader(t, b, true)
}

func TestElection_LeaderChSignalsTransitions(t *testing.T) {
	mr := miniredis.RunT(t)

	e, err := NewElection(testConfig(mr.Addr(), "node-a"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new election: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	select {
	case isLeader := <-e.LeaderCh():
		if !isLeader {
			t.Fatalf("first transition = %v, want leadership gained", isLeader)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no leadership transition observed")
	}
}
