/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus across instances.
// Two transports are available: NATS and Redis pub/sub. Both degrade to
// local-only delivery when the broker is unreachable.
package eventbus

import "github.com/friendsincode/saga_tv/internal/events"

// Bridge is the remote leg of the event bus. Implementations wrap a
// local *events.Bus: local delivery always works, the bridge only adds
// fan-out to other instances.
type Bridge interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

var (
	_ Bridge = (*NATSBus)(nil)
	_ Bridge = (*RedisBus)(nil)
)
