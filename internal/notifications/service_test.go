/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/config"
	"github.com/friendsincode/saga_tv/internal/events"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMailer) Send(to []string, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, subject)
	return nil
}

func (f *fakeMailer) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestService(t *testing.T) (*Service, *events.Bus, *fakeMailer, context.CancelFunc) {
	t.Helper()
	bus := events.NewBus()
	cfg := config.Config{
		SMTPEnabled: true,
		SMTPAddr:    "localhost:25",
		SMTPFrom:    "alerts@example.com",
		SMTPTo:      []string{"ops@example.com"},
	}
	svc := NewService(bus, cfg, zerolog.Nop())
	mailer := &fakeMailer{}
	svc.SetMailer(mailer)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	return svc, bus, mailer, cancel
}

func waitForMail(t *testing.T, mailer *fakeMailer, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if subjects := mailer.subjects(); len(subjects) >= want {
			return subjects
		}
		time.Sleep(10 * time.Millisecond)
	}
	return mailer.subjects()
}

func TestService_MailsOnDayFailed(t *testing.T) {
	_, bus, mailer, cancel := newTestService(t)
	defer cancel()

	bus.Publish(events.EventDayFailed, events.Payload{
		"channel_id": "ch1",
		"date":       "2026-08-25",
		"code":       "coverage_gap",
	})

	subjects := waitForMail(t, mailer, 1)
	if len(subjects) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(subjects))
	}
	if !strings.Contains(subjects[0], "day resolution failed") {
		t.Fatalf("unexpected subject: %s", subjects[0])
	}
}

func TestService_DedupesRepeatFailures(t *testing.T) {
	_, bus, mailer, cancel := newTestService(t)
	defer cancel()

	for i := 0; i < 3; i++ {
		bus.Publish(events.EventDayFailed, events.Payload{
			"channel_id": "ch1",
			"date":       "2026-08-25",
			"code":       "coverage_gap",
		})
	}

	subjects := waitForMail(t, mailer, 1)
	time.Sleep(100 * time.Millisecond)
	subjects = mailer.subjects()
	if len(subjects) != 1 {
		t.Fatalf("expected repeat failures deduped to 1 mail, got %d", len(subjects))
	}
}

func TestService_MailsOnHorizonShortfall(t *testing.T) {
	_, bus, mailer, cancel := newTestService(t)
	defer cancel()

	bus.Publish(events.EventHealth, events.Payload{
		"kind":       "horizon_shortfall",
		"channel_id": "ch1",
		"stage":      "playlog",
		"detail":     "no slate item",
	})
	// Unrelated health payloads must be ignored.
	bus.Publish(events.EventHealth, events.Payload{"kind": "heartbeat"})

	subjects := waitForMail(t, mailer, 1)
	if len(subjects) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(subjects))
	}
	if !strings.Contains(subjects[0], "horizon shortfall") {
		t.Fatalf("unexpected subject: %s", subjects[0])
	}
}
