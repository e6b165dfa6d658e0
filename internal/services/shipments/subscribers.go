package shipments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
)

// NormalizeContact определяет канал по контакту: email (есть "@") или телефон в E.164.
// Email приводится к нижнему регистру, из телефона убираются пробелы, дефисы и скобки.
func (s *Service) NormalizeContact(contact string) (channel, normalized string, err error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "", "", apperrors.ValidationFields("validation failed", map[string]string{"contact": "contact is required"})
	}

	if strings.Contains(contact, "@") {
		email := strings.ToLower(contact)
		if err := s.validate.Var(email, "required,max=254,email"); err != nil {
			return "", "", apperrors.ValidationFields("validation failed", map[string]string{"contact": "contact must be a valid email address"})
		}
		return models.ChannelEmail, email, nil
	}

	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(contact)
	if err := s.validate.Var(phone, "required,e164"); err != nil {
		return "", "", apperrors.ValidationFields("validation failed", map[string]string{"contact": "contact must be an email or a phone number in E.164 format"})
	}
	return models.ChannelSMS, phone, nil
}

// Subscribe идемпотентен: повторная подписка реактивирует существующую запись.
func (s *Service) Subscribe(ctx context.Context, tracking, contact string) (*models.Subscriber, error) {
	channel, normalized, err := s.NormalizeContact(contact)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.UpsertSubscriber(ctx, strings.TrimSpace(tracking), channel, normalized)
	if err != nil {
		return nil, err
	}
	slog.Info("subscribed", "tracking", tracking, "channel", channel, "subscriber_id", sub.ID)
	return sub, nil
}

// Unsubscribe: NotFound только если нет самого отправления. Отсутствующая или уже
// неактивная подписка: успешный no-op.
func (s *Service) Unsubscribe(ctx context.Context, tracking, contact string) error {
	channel, normalized, err := s.NormalizeContact(contact)
	if err != nil {
		return err
	}
	changed, err := s.repo.DeactivateSubscriber(ctx, strings.TrimSpace(tracking), channel, normalized)
	if err != nil {
		return err
	}
	slog.Info("unsubscribed", "tracking", tracking, "channel", channel, "changed", changed)
	return nil
}

func (s *Service) ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error) {
	return s.repo.ListSubscribers(ctx, strings.TrimSpace(tracking), activeOnly)
}
