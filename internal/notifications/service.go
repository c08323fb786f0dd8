/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/config"
	"github.com/friendsincode/saga_tv/internal/events"
)

// dedupeWindow suppresses repeat alerts for the same channel/date pair.
const dedupeWindow = 30 * time.Minute

// Mailer sends a single message. Implemented by smtpMailer in production
// and replaced in tests.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// Service watches the event bus for day-resolution failures and horizon
// shortfalls and mails the operator list.
type Service struct {
	bus    *events.Bus
	cfg    config.Config
	mailer Mailer
	logger zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService creates a notification service using SMTP settings from cfg.
func NewService(bus *events.Bus, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		bus:    bus,
		cfg:    cfg,
		mailer: &smtpMailer{addr: cfg.SMTPAddr, from: cfg.SMTPFrom},
		logger: logger.With().Str("component", "notifications").Logger(),

		lastSent: make(map[string]time.Time),
	}
}

// SetMailer replaces the mail transport. Used by tests.
func (s *Service) SetMailer(m Mailer) {
	s.mailer = m
}

// Start subscribes to failure events and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.SMTPEnabled {
		s.logger.Info().Msg("SMTP disabled, notification service idle")
		<-ctx.Done()
		return
	}

	dayFailed := s.bus.Subscribe(events.EventDayFailed)
	health := s.bus.Subscribe(events.EventHealth)

	defer func() {
		s.bus.Unsubscribe(events.EventDayFailed, dayFailed)
		s.bus.Unsubscribe(events.EventHealth, health)
	}()

	s.logger.Info().
		Str("smtp_addr", s.cfg.SMTPAddr).
		Int("recipients", len(s.cfg.SMTPTo)).
		Msg("notification service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("notification service stopping")
			return

		case payload := <-dayFailed:
			s.handleDayFailed(payload)

		case payload := <-health:
			s.handleHealth(payload)
		}
	}
}

// handleDayFailed mails the operator list when a broadcast day cannot be
// resolved.
func (s *Service) handleDayFailed(payload events.Payload) {
	channelID, _ := payload["channel_id"].(string)
	date, _ := payload["date"].(string)
	code, _ := payload["code"].(string)

	key := "day_failed:" + channelID + ":" + date
	if !s.shouldSend(key) {
		return
	}

	subject := fmt.Sprintf("[saga-tv] day resolution failed: %s %s", channelID, date)
	body := fmt.Sprintf(
		"Day resolution failed.\n\nChannel: %s\nBroadcast date: %s\nFailure code: %s\n\nThe horizon worker will keep retrying; the day stays unplayable until the plan is fixed or an override is recorded.\n",
		channelID, date, code)

	s.deliver(subject, body)
}

// handleHealth mails on horizon shortfall reports. Other health payloads
// are ignored.
func (s *Service) handleHealth(payload events.Payload) {
	kind, _ := payload["kind"].(string)
	if kind != "horizon_shortfall" {
		return
	}

	channelID, _ := payload["channel_id"].(string)
	stage, _ := payload["stage"].(string)
	detail, _ := payload["detail"].(string)

	key := "horizon_shortfall:" + channelID + ":" + stage
	if !s.shouldSend(key) {
		return
	}

	subject := fmt.Sprintf("[saga-tv] horizon shortfall: %s", channelID)
	body := fmt.Sprintf(
		"The scheduling horizon is behind target.\n\nChannel: %s\nStage: %s\nDetail: %s\n",
		channelID, stage, detail)

	s.deliver(subject, body)
}

// shouldSend applies the dedupe window per alert key.
func (s *Service) shouldSend(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < dedupeWindow {
		return false
	}
	s.lastSent[key] = now

	// Drop stale entries so the map does not grow unbounded.
	for k, t := range s.lastSent {
		if now.Sub(t) > 24*time.Hour {
			delete(s.lastSent, k)
		}
	}
	return true
}

func (s *Service) deliver(subject, body string) {
	if len(s.cfg.SMTPTo) == 0 {
		s.logger.Warn().Str("subject", subject).Msg("no recipients configured, dropping alert")
		return
	}

	if err := s.mailer.Send(s.cfg.SMTPTo, subject, body); err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("failed to send alert mail")
		return
	}

	s.logger.Info().
		Str("subject", subject).
		Int("recipients", len(s.cfg.SMTPTo)).
		Msg("alert mail sent")
}

// smtpMailer sends plain-text mail over unauthenticated SMTP. Relay
// auth, when needed, belongs on a local forwarder.
type smtpMailer struct {
	addr string
	from string
}

func (m *smtpMailer) Send(to []string, subject, body string) error {
	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, nil, m.from, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
