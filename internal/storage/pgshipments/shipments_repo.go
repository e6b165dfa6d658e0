package pgshipments

import (
	"context"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, tracking_number, title,
  origin_lat, origin_lng, dest_lat, dest_lng,
  origin_address, dest_address,
  status, distance_km, eta,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.Title,
		&sh.Origin.Lat, &sh.Origin.Lng, &sh.Destination.Lat, &sh.Destination.Lng,
		&sh.OriginAddress, &sh.DestinationAddress,
		&sh.Status, &sh.DistanceKM, &sh.ETA,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

// CreateShipment вставляет отправление и первую запись истории статусов одной транзакцией.
func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "begin tx"), "create shipment")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := scanShipment(tx.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_number, title,
  origin_lat, origin_lng, dest_lat, dest_lng,
  origin_address, dest_address,
  status, distance_km, eta, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
RETURNING`+shipmentColumns,
		in.TrackingNumber, in.Title,
		in.Origin.Lat, in.Origin.Lng, in.Destination.Lat, in.Destination.Lng,
		in.OriginAddress, in.DestinationAddress,
		in.Status, in.DistanceKM, in.ETA, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.DuplicateTracking(in.TrackingNumber)
		}
		return nil, apperrors.Storage(errors.Wrap(err, "insert shipment"), "create shipment")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO status_history (shipment_id, status, note, changed_at)
VALUES ($1, $2, NULL, $3)
`, sh.ID, sh.Status, now); err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "insert status history"), "create shipment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "commit tx"), "create shipment")
	}
	return sh, nil
}

func (s *Storage) GetShipment(ctx context.Context, tracking string) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE tracking_number = $1`, tracking))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("shipment %q not found", tracking)
	}
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select shipment"), "get shipment")
	}
	return sh, nil
}

func (s *Storage) ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `SELECT`+shipmentColumns+`
FROM shipments
ORDER BY updated_at DESC, id DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select shipments"), "list shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, limit)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, apperrors.Storage(errors.Wrap(err, "scan shipment"), "list shipments")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, apperrors.Storage(errors.Wrap(rows.Err(), "rows"), "list shipments")
	}
	return out, nil
}

// DeleteShipment: явное админское удаление; чекпоинты, подписчики и симуляция уходят каскадом.
func (s *Storage) DeleteShipment(ctx context.Context, tracking string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE tracking_number = $1`, tracking)
	if err != nil {
		return apperrors.Storage(errors.Wrap(err, "delete shipment"), "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("shipment %q not found", tracking)
	}
	return nil
}

func (s *Storage) ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error) {
	shipmentID, err := s.shipmentID(ctx, s.db, tracking)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, status, note, changed_at
FROM status_history
WHERE shipment_id = $1
ORDER BY changed_at ASC, id ASC
`, shipmentID)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select status history"), "list status history")
	}
	defer rows.Close()

	var out []*models.StatusHistory
	for rows.Next() {
		var h models.StatusHistory
		if err := rows.Scan(&h.ID, &h.ShipmentID, &h.Status, &h.Note, &h.ChangedAt); err != nil {
			return nil, apperrors.Storage(errors.Wrap(err, "scan status history"), "list status history")
		}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, apperrors.Storage(errors.Wrap(rows.Err(), "rows"), "list status history")
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Storage) shipmentID(ctx context.Context, q querier, tracking string) (uint64, error) {
	var id uint64
	err := q.QueryRow(ctx, `SELECT id FROM shipments WHERE tracking_number = $1`, tracking).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.NotFound("shipment %q not found", tracking)
	}
	if err != nil {
		return 0, apperrors.Storage(errors.Wrap(err, "select shipment id"), "lookup shipment")
	}
	return id, nil
}
