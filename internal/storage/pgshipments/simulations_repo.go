package pgshipments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const simulationColumns = `
  st.shipment_id, sh.tracking_number, st.run_id::text, st.status,
  st.current_index, st.waypoints, st.total_points, st.step_seconds,
  st.virtual_clock, st.created_at, st.updated_at`

func scanSimulation(row pgx.Row) (*models.SimulationState, error) {
	var st models.SimulationState
	var waypoints []byte
	var stepSeconds int64
	if err := row.Scan(
		&st.ShipmentID, &st.TrackingNumber, &st.RunID, &st.Status,
		&st.CurrentIndex, &waypoints, &st.TotalPoints, &stepSeconds,
		&st.VirtualClock, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(waypoints, &st.Waypoints); err != nil {
		return nil, errors.Wrap(err, "decode waypoints")
	}
	st.StepDuration = time.Duration(stepSeconds) * time.Second
	return &st, nil
}

// CreateSimulation сохраняет состояние симуляции один раз на отправление.
// Повторный старт (в любом статусе) даёт InvalidState.
func (s *Storage) CreateSimulation(ctx context.Context, st *models.SimulationState) error {
	shipmentID, err := s.shipmentID(ctx, s.db, st.TrackingNumber)
	if err != nil {
		return err
	}
	waypoints, err := json.Marshal(st.Waypoints)
	if err != nil {
		return errors.Wrap(err, "encode waypoints")
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
INSERT INTO simulation_states (
  shipment_id, run_id, status, current_index, waypoints,
  total_points, step_seconds, virtual_clock, created_at, updated_at
)
VALUES ($1,$2::text::uuid,$3,$4,$5,$6,$7,$8,$9,$9)
`, shipmentID, st.RunID, st.Status, st.CurrentIndex, waypoints,
		st.TotalPoints, int64(st.StepDuration/time.Second), st.VirtualClock.UTC(), now)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.InvalidState("simulation for %q already exists", st.TrackingNumber)
		}
		return apperrors.Storage(errors.Wrap(err, "insert simulation"), "start simulation")
	}
	st.ShipmentID = shipmentID
	st.CreatedAt, st.UpdatedAt = now, now
	return nil
}

func (s *Storage) GetSimulation(ctx context.Context, tracking string) (*models.SimulationState, error) {
	st, err := scanSimulation(s.db.QueryRow(ctx, `SELECT`+simulationColumns+`
FROM simulation_states st
JOIN shipments sh ON sh.id = st.shipment_id
WHERE sh.tracking_number = $1
`, tracking))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("simulation for %q not found", tracking)
	}
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select simulation"), "get simulation")
	}
	return st, nil
}

func (s *Storage) ListSimulationsByStatus(ctx context.Context, status string) ([]*models.SimulationState, error) {
	rows, err := s.db.Query(ctx, `SELECT`+simulationColumns+`
FROM simulation_states st
JOIN shipments sh ON sh.id = st.shipment_id
WHERE st.status = $1
ORDER BY st.updated_at ASC
`, status)
	if err != nil {
		return nil, apperrors.Storage(errors.Wrap(err, "select simulations"), "list simulations")
	}
	defer rows.Close()

	var out []*models.SimulationState
	for rows.Next() {
		st, err := scanSimulation(rows)
		if err != nil {
			return nil, apperrors.Storage(errors.Wrap(err, "scan simulation"), "list simulations")
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, apperrors.Storage(errors.Wrap(rows.Err(), "rows"), "list simulations")
	}
	return out, nil
}

// SetSimulationStatus: compare-and-set статуса. Возвращает false, если текущий статус не from.
func (s *Storage) SetSimulationStatus(ctx context.Context, tracking, from, to string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE simulation_states st
SET status = $3, updated_at = now()
FROM shipments sh
WHERE sh.id = st.shipment_id AND sh.tracking_number = $1 AND st.status = $2
`, tracking, from, to)
	if err != nil {
		return false, apperrors.Storage(errors.Wrap(err, "update simulation status"), "set simulation status")
	}
	return tag.RowsAffected() > 0, nil
}

// SaveSimulationProgress сдвигает позицию только с ожидаемого индекса.
// Статус completed выставляется лишь если симуляция всё ещё running: пауза, поставленная
// между шагами, не перетирается.
func (s *Storage) SaveSimulationProgress(ctx context.Context, tracking string, p models.SimulationProgress) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE simulation_states st
SET current_index = $3,
    virtual_clock = $4,
    status = CASE WHEN $5 AND st.status = 'running' THEN 'completed' ELSE st.status END,
    updated_at = now()
FROM shipments sh
WHERE sh.id = st.shipment_id AND sh.tracking_number = $1 AND st.current_index = $2
`, tracking, p.FromIndex, p.ToIndex, p.VirtualClock.UTC(), p.Completed)
	if err != nil {
		return false, apperrors.Storage(errors.Wrap(err, "update simulation progress"), "save simulation progress")
	}
	return tag.RowsAffected() > 0, nil
}
