/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
)

func setupWebhooks(t *testing.T) (*Service, *gorm.DB, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := events.NewBus()
	return NewService(db, bus, zerolog.Nop()), db, bus
}

type capturedRequest struct {
	body      []byte
	event     string
	signature string
}

func captureServer(t *testing.T, out chan<- capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		out <- capturedRequest{
			body:      body,
			event:     r.Header.Get("X-SagaTV-Event"),
			signature: r.Header.Get("X-SagaTV-Signature"),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch_DeliversSignedPayload(t *testing.T) {
	svc, db, _ := setupWebhooks(t)
	received := make(chan capturedRequest, 1)
	srv := captureServer(t, received)

	channelID := uuid.NewString()
	target := models.NewWebhookTarget(channelID, srv.URL, "")
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("create target: %v", err)
	}

	svc.dispatch(context.Background(), events.EventDayResolved, events.Payload{
		"channel_id":     channelID,
		"broadcast_date": "2026-08-24",
		"revision":       float64(1),
	})

	var req capturedRequest
	select {
	case req = <-received:
	case <-time.After(3 * time.Second):
		t.Fatalf("webhook never delivered")
	}

	if req.event != "day.resolved" {
		t.Fatalf("event header = %q", req.event)
	}

	var payload Payload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ChannelID != channelID || payload.Data["broadcast_date"] != "2026-08-24" {
		t.Fatalf("payload = %+v", payload)
	}

	mac := hmac.New(sha256.New, []byte(target.Secret))
	mac.Write(req.body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if req.signature != want {
		t.Fatalf("signature = %q, want %q", req.signature, want)
	}

	// Delivery attempts are logged.
	deadline := time.Now().Add(3 * time.Second)
	for {
		var logs []models.WebhookLog
		if err := db.Find(&logs).Error; err != nil {
			t.Fatalf("read logs: %v", err)
		}
		if len(logs) == 1 {
			if logs[0].TargetID != target.ID || logs[0].StatusCode != http.StatusNoContent {
				t.Fatalf("log = %+v", logs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivery log never written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatch_HonorsEventSubset(t *testing.T) {
	svc, db, _ := setupWebhooks(t)
	received := make(chan capturedRequest, 2)
	srv := captureServer(t, received)

	channelID := uuid.NewString()
	target := models.NewWebhookTarget(channelID, srv.URL, "day.failed")
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("create target: %v", err)
	}

	svc.dispatch(context.Background(), events.EventDayResolved, events.Payload{"channel_id": channelID})
	svc.dispatch(context.Background(), events.EventDayFailed, events.Payload{"channel_id": channelID})

	select {
	case req := <-received:
		if req.event != "day.failed" {
			t.Fatalf("delivered event = %q, want day.failed only", req.event)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("subscribed event never delivered")
	}
	select {
	case req := <-received:
		t.Fatalf("unexpected delivery of %q", req.event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDispatch_SkipsInactiveAndOtherChannels(t *testing.T) {
	svc, db, _ := setupWebhooks(t)
	received := make(chan capturedRequest, 2)
	srv := captureServer(t, received)

	channelID := uuid.NewString()
	inactive := models.NewWebhookTarget(channelID, srv.URL, "")
	inactive.Active = false
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("create inactive target: %v", err)
	}
	other := models.NewWebhookTarget(uuid.NewString(), srv.URL, "")
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("create other target: %v", err)
	}

	svc.dispatch(context.Background(), events.EventDayResolved, events.Payload{"channel_id": channelID})

	select {
	case req := <-received:
		t.Fatalf("unexpected delivery of %q", req.event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStart_ForwardsBusEvents(t *testing.T) {
	svc, db, bus := setupWebhooks(t)
	received := make(chan capturedRequest, 1)
	srv := captureServer(t, received)

	channelID := uuid.NewString()
	target := models.NewWebhookTarget(channelID, srv.URL, "")
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("create target: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// The subscriber registers asynchronously; republish until it lands.
	deadline := time.Now().Add(3 * time.Second)
	for {
		bus.Publish(events.EventGuidePublished, events.Payload{"channel_id": channelID})
		select {
		case req := <-received:
			if req.event != "guide.published" {
				t.Fatalf("event = %q", req.event)
			}
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("bus event never forwarded")
		}
	}
}

func TestService_TestProbe(t *testing.T) {
	svc, _, _ := setupWebhooks(t)
	received := make(chan capturedRequest, 1)
	srv := captureServer(t, received)

	target := models.NewWebhookTarget(uuid.NewString(), srv.URL, "")
	if err := svc.Test(context.Background(), target); err != nil {
		t.Fatalf("test probe: %v", err)
	}
	req := <-received
	if req.event != "test" {
		t.Fatalf("event = %q", req.event)
	}

	bad := models.NewWebhookTarget(uuid.NewString(), "http://127.0.0.1:1", "")
	if err := svc.Test(context.Background(), bad); err == nil {
		t.Fatalf("expected error for unreachable target")
	}
}
