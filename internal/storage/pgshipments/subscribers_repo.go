package pgshipments

import (
	"context"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/pkg/errors"
)

// UpsertSubscriber создаёт подписку или реактивирует существующую для той же пары (канал, контакт).
func (s *Storage) UpsertSubscriber(ctx context.Context, tracking, channel, contact string) (*models.Subscriber, error) {
	shipmentID, err := s.shipmentID(ctx, s.db, tracking)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var sub models.Subscriber
	err = s.db.QueryRow(ctx, `
INSERT INTO subscribers (shipment_id, channel, contact, is_active, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, $4, $4)
ON CONFLICT (shipment_id, channel, contact)
DO UPDATE SET is_active = TRUE, updated_at = EXCLUDED.updated_at
RETURNING id, shipment_id, channel, contact, is_active, created_at, updated_at
`, shipmentID, channel, contact, now).Scan(
		&sub.ID, &sub.ShipmentID, &sub.Channel, &sub.Contact, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "upsert subscriber"), "subscribe")
	}
	return &sub, nil
}

// DeactivateSubscriber возвращает false, если активной подписки не было.
func (s *Storage) DeactivateSubscriber(ctx context.Context, tracking, channel, contact string) (bool, error) {
	shipmentID, err := s.shipmentID(ctx, s.db, tracking)
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, `
UPDATE subscribers
SET is_active = FALSE, updated_at = $4
WHERE shipment_id = $1 AND channel = $2 AND contact = $3 AND is_active
`, shipmentID, channel, contact, time.Now().UTC())
	if err != nil {
		return false, apperrors.Storage(errors.Wrap(err, "deactivate subscriber"), "unsubscribe")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error) {
	shipmentID, err := s.shipmentID(ctx, s.db, tracking)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, channel, contact, is_active, created_at, updated_at
FROM subscribers
WHERE shipment_id = $1 AND (is_active OR NOT $2)
ORDER BY id ASC
`, shipmentID, activeOnly)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select subscribers"), "list subscribers")
	}
	defer rows.Close()

	var out []*models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		if err := rows.Scan(&sub.ID, &sub.ShipmentID, &sub.Channel, &sub.Contact, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, apperrors.Storage(errors.Wrap(err, "scan subscriber"), "list subscribers")
		}
		out = append(out, &sub)
	}
	if rows.Err() != nil {
		return nil, apperrors.Storage(errors.Wrap(rows.Err(), "rows"), "list subscribers")
	}
	return out, nil
}
