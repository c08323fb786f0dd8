/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventOnAir          EventType = "on_air"
	EventHealth         EventType = "health"
	EventScheduleUpdate EventType = "schedule_update"

	// Programming lifecycle events
	EventPlanCreated    EventType = "plan.created"
	EventPlanUpdated    EventType = "plan.updated"
	EventPlanActivated  EventType = "plan.activated"
	EventPlanArchived   EventType = "plan.archived"
	EventZoneUpdated    EventType = "zone.updated"
	EventPatternUpdated EventType = "pattern.updated"

	// Resolution events
	EventDayResolved     EventType = "day.resolved"
	EventDayFailed       EventType = "day.failed"
	EventDaySuperseded   EventType = "day.superseded"
	EventDayOverridden   EventType = "day.overridden"
	EventPlaylogExtended EventType = "playlog.extended"
	EventGuidePublished  EventType = "guide.published"

	// Cache invalidation events
	EventChannelCreated EventType = "cache.channel_created"
	EventChannelUpdated EventType = "cache.channel_updated"
	EventChannelDeleted EventType = "cache.channel_deleted"
	EventCatalogUpdated EventType = "cache.catalog_updated"
	EventSeriesUpdated  EventType = "cache.series_updated"

	// Audit events (for operations that need explicit audit logging)
	EventAuditAPIKeyCreate  EventType = "audit.apikey.create"
	EventAuditAPIKeyRevoke  EventType = "audit.apikey.revoke"
	EventAuditChannelCreate EventType = "audit.channel.create"
	EventAuditDayOverride   EventType = "audit.day.override"
	EventAuditImport        EventType = "audit.import"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
