/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/events"
)

func waitPayload(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case payload := <-sub:
		return payload
	case <-time.After(3 * time.Second):
		t.Fatalf("no event delivered")
		return nil
	}
}

func TestNATSBus_FallsBackToLocalWhenUnreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxReconnects = 0

	nb, err := NewNATSBus(cfg, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new nats bus: %v", err)
	}
	defer nb.Close()

	sub := nb.Subscribe(events.EventDayResolved)
	nb.Publish(events.EventDayResolved, events.Payload{"channel_id": "ch1"})

	payload := waitPayload(t, sub)
	if payload["channel_id"] != "ch1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRedisBus_FallsBackToLocalWhenUnreachable(t *testing.T) {
	cfg := DefaultRedisBusConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	rb, err := NewRedisBus(cfg, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new redis bus: %v", err)
	}
	defer rb.Close()

	sub := rb.Subscribe(events.EventChannelUpdated)
	rb.Publish(events.EventChannelUpdated, events.Payload{"channel_id": "ch1"})

	payload := waitPayload(t, sub)
	if payload["channel_id"] != "ch1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRedisBus_DeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisBusConfig()
	cfg.Addr = mr.Addr()

	sender, err := NewRedisBus(cfg, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer sender.Close()

	receiver, err := NewRedisBus(cfg, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer receiver.Close()

	sub := receiver.Subscribe(events.EventChannelUpdated)

	// Pub/sub subscriptions only see messages published after they are
	// established; give the receiver a moment to register.
	deadline := time.Now().Add(3 * time.Second)
	var payload events.Payload
	for payload == nil && time.Now().Before(deadline) {
		sender.Publish(events.EventChannelUpdated, events.Payload{"channel_id": "ch1"})
		select {
		case payload = <-sub:
		case <-time.After(100 * time.Millisecond):
		}
	}
	if payload == nil {
		t.Fatalf("remote event never delivered")
	}
	if payload["channel_id"] != "ch1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRedisBus_SkipsOwnEcho(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisBusConfig()
	cfg.Addr = mr.Addr()

	rb, err := NewRedisBus(cfg, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new redis bus: %v", err)
	}
	defer rb.Close()

	sub := rb.Subscribe(events.EventChannelDeleted)
	rb.Publish(events.EventChannelDeleted, events.Payload{"channel_id": "ch1"})

	// Local delivery happens exactly once; the echo coming back over
	// Redis carries our node id and is dropped.
	waitPayload(t, sub)
	select {
	case payload := <-sub:
		t.Fatalf("unexpected duplicate delivery: %v", payload)
	case <-time.After(300 * time.Millisecond):
	}
}
