/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers scheduling events to per-channel HTTP
// endpoints. Payloads are HMAC-signed when the target has a secret, and
// every delivery attempt is logged.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
)

// forwardedEvents lists the bus events that can reach webhook targets.
var forwardedEvents = []events.EventType{
	events.EventDayResolved,
	events.EventDayFailed,
	events.EventDayOverridden,
	events.EventGuidePublished,
	events.EventPlaylogExtended,
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	ChannelID string         `json:"channel_id"`
	Data      events.Payload `json:"data,omitempty"`
}

// Service forwards bus events to registered webhook targets.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a webhook delivery service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start subscribes to the forwarded event types and delivers them until
// the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	subs := make(map[events.EventType]events.Subscriber, len(forwardedEvents))
	for _, eventType := range forwardedEvents {
		subs[eventType] = s.bus.Subscribe(eventType)
	}
	defer func() {
		for eventType, sub := range subs {
			s.bus.Unsubscribe(eventType, sub)
		}
	}()

	s.logger.Info().Msg("webhook service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case payload := <-subs[events.EventDayResolved]:
			s.dispatch(ctx, events.EventDayResolved, payload)
		case payload := <-subs[events.EventDayFailed]:
			s.dispatch(ctx, events.EventDayFailed, payload)
		case payload := <-subs[events.EventDayOverridden]:
			s.dispatch(ctx, events.EventDayOverridden, payload)
		case payload := <-subs[events.EventGuidePublished]:
			s.dispatch(ctx, events.EventGuidePublished, payload)
		case payload := <-subs[events.EventPlaylogExtended]:
			s.dispatch(ctx, events.EventPlaylogExtended, payload)
		}
	}
}

// dispatch fans one event out to the channel's active targets.
func (s *Service) dispatch(ctx context.Context, eventType events.EventType, payload events.Payload) {
	channelID, ok := payload["channel_id"].(string)
	if !ok || channelID == "" {
		return
	}

	var targets []models.WebhookTarget
	if err := s.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Str("channel_id", channelID).Msg("failed to fetch webhook targets")
		return
	}

	for i := range targets {
		target := targets[i]
		if !targetHandlesEvent(&target, eventType) {
			continue
		}
		go s.deliver(ctx, target, eventType, payload)
	}
}

// targetHandlesEvent reports whether the target subscribes to the event
// type. An empty Events list means all forwarded events.
func targetHandlesEvent(target *models.WebhookTarget, eventType events.EventType) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == string(eventType) {
			return true
		}
	}
	return false
}

// deliver posts one event to one target and logs the attempt.
func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, eventType events.EventType, data events.Payload) {
	body := Payload{
		Event:     string(eventType),
		Timestamp: time.Now().UTC(),
		ChannelID: target.ChannelID,
		Data:      data,
	}

	started := time.Now()
	status, err := s.post(ctx, &target, string(eventType), body)
	duration := int(time.Since(started).Milliseconds())

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		s.logger.Warn().Err(err).Str("target", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
	} else if status < 200 || status >= 300 {
		s.logger.Warn().Str("target", target.ID).Str("event", string(eventType)).Int("status", status).Msg("webhook returned error status")
	} else {
		s.logger.Debug().Str("target", target.ID).Str("event", string(eventType)).Int("status", status).Msg("webhook delivered")
	}

	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      string(eventType),
		StatusCode: status,
		Error:      errMsg,
		Duration:   duration,
	}
	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

func (s *Service) post(ctx context.Context, target *models.WebhookTarget, eventType string, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SagaTV-Webhook/1.0")
	req.Header.Set("X-SagaTV-Event", eventType)
	req.Header.Set("X-SagaTV-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if target.Secret != "" {
		req.Header.Set("X-SagaTV-Signature", signPayload(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// signPayload creates an HMAC-SHA256 signature over the request body.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Test sends a probe payload to the target and reports delivery errors.
func (s *Service) Test(ctx context.Context, target *models.WebhookTarget) error {
	status, err := s.post(ctx, target, "test", Payload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		ChannelID: target.ChannelID,
		Data:      events.Payload{"probe": true},
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}
