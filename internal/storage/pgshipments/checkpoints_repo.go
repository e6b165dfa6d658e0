package pgshipments

import (
	"context"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AppendCheckpoint добавляет чекпоинт в конец таймлайна отправления.
// Строка shipments берётся FOR UPDATE, поэтому чтение max(position) и вставка
// сериализованы для одного отправления даже при конкурентных вызовах.
func (s *Storage) AppendCheckpoint(ctx context.Context, tracking string, in models.CheckpointCreateInput) (*models.Shipment, *models.Checkpoint, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "begin tx"), "append checkpoint")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := scanShipment(tx.QueryRow(ctx, `SELECT`+shipmentColumns+`
FROM shipments
WHERE tracking_number = $1
FOR UPDATE
`, tracking))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperrors.NotFound("shipment %q not found", tracking)
	}
	if err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "lock shipment"), "append checkpoint")
	}

	if in.SourceRef != nil {
		// строка отправления заблокирована: проверка и вставка не разойдутся
		var seen bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM checkpoints WHERE shipment_id = $1 AND source_ref = $2)`, sh.ID, *in.SourceRef).Scan(&seen); err != nil {
			return nil, nil, apperrors.Storage(errors.Wrap(err, "check source ref"), "append checkpoint")
		}
		if seen {
			return nil, nil, apperrors.DuplicateEvent(tracking, *in.SourceRef)
		}
	}

	var next int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM checkpoints WHERE shipment_id = $1`, sh.ID).Scan(&next); err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "next position"), "append checkpoint")
	}

	cp := &models.Checkpoint{
		ShipmentID: sh.ID,
		Position:   next,
		Location:   in.Location,
		Label:      in.Label,
		Note:       in.Note,
		Status:     in.Status,
		ProofRef:   in.ProofRef,
		Timestamp:  in.Timestamp.UTC(),
	}
	if err := tx.QueryRow(ctx, `
INSERT INTO checkpoints (shipment_id, position, lat, lng, label, note, status, proof_ref, ts, source_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id
`, cp.ShipmentID, cp.Position, cp.Location.Lat, cp.Location.Lng, cp.Label, cp.Note, cp.Status, cp.ProofRef, cp.Timestamp, in.SourceRef).Scan(&cp.ID); err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "insert checkpoint"), "append checkpoint")
	}

	if sh.ApplyCheckpoint(cp) {
		if _, err := tx.Exec(ctx, `
INSERT INTO status_history (shipment_id, status, note, changed_at)
VALUES ($1, $2, $3, $4)
`, sh.ID, sh.Status, cp.Label, cp.Timestamp); err != nil {
			return nil, nil, apperrors.Storage(errors.Wrap(err, "insert status history"), "append checkpoint")
		}
	}

	sh.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `
UPDATE shipments
SET status = $2, eta = $3, updated_at = $4
WHERE id = $1
`, sh.ID, sh.Status, sh.ETA, sh.UpdatedAt); err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "update shipment"), "append checkpoint")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, apperrors.Storage(errors.Wrap(err, "commit tx"), "append checkpoint")
	}
	return sh, cp, nil
}

func (s *Storage) ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error) {
	shipmentID, err := s.shipmentID(ctx, s.db, tracking)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, position, lat, lng, label, note, status, proof_ref, ts
FROM checkpoints
WHERE shipment_id = $1
ORDER BY position ASC
`, shipmentID)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select checkpoints"), "list checkpoints")
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(
			&cp.ID, &cp.ShipmentID, &cp.Position, &cp.Location.Lat, &cp.Location.Lng,
			&cp.Label, &cp.Note, &cp.Status, &cp.ProofRef, &cp.Timestamp,
		); err != nil {
			return nil, apperrors.Storage(errors.Wrap(err, "scan checkpoint"), "list checkpoints")
		}
		out = append(out, &cp)
	}
	if rows.Err() != nil {
		return nil, apperrors.Storage(errors.Wrap(rows.Err(), "rows"), "list checkpoints")
	}
	return out, nil
}
