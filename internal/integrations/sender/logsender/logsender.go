// Package logsender печатает уведомления в лог вместо отправки (dev-режим без SMTP/Twilio).
package logsender

import (
	"context"
	"log/slog"

	"github.com/BearBump/ShipTrack/internal/integrations/sender"
)

type Sender struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, msg sender.Message) error {
	s.log.InfoContext(ctx, "dev notification",
		"channel", msg.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
