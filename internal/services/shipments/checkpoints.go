package shipments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/pkg/errors"
)

// Источники чекпоинтов (метка в метриках и логах).
const (
	SourceAPI       = "api"
	SourceSimulator = "simulator"
	SourceIngest    = "ingest"
)

type AppendCheckpointInput struct {
	Tracking string        `json:"tracking_number" validate:"required,max=50"`
	Location LocationInput `json:"location"`
	Label    string        `json:"label" validate:"required,max=120"`
	Note     *string       `json:"note,omitempty" validate:"omitempty,max=1000"`
	Status   *string       `json:"status,omitempty" validate:"omitempty,max=32"`
	ProofRef *string       `json:"proof_ref,omitempty" validate:"omitempty,max=255"`
	// At: время чекпоинта; нулевое значение означает "сейчас".
	At        time.Time `json:"-"`
	Source    string    `json:"-"`
	SourceRef *string   `json:"-"`
}

func (s *Service) AppendCheckpoint(ctx context.Context, in AppendCheckpointInput) (*models.Checkpoint, error) {
	in.Tracking = strings.TrimSpace(in.Tracking)
	in.Label = strings.TrimSpace(in.Label)
	in.Location.Address = strings.TrimSpace(in.Location.Address)
	in.Note = trimmedOrNil(in.Note)
	in.Status = trimmedOrNil(in.Status)
	in.ProofRef = trimmedOrNil(in.ProofRef)

	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	checkExactlyOne("location", in.Location, fields)
	if len(fields) > 0 {
		return nil, apperrors.ValidationFields("validation failed", fields)
	}

	if in.Location.Coordinates == nil {
		// не тратим запрос к геокодеру на несуществующее отправление
		if _, err := s.repo.GetShipment(ctx, in.Tracking); err != nil {
			return nil, err
		}
	}
	loc, err := s.resolve(ctx, in.Location)
	if err != nil {
		return nil, err
	}

	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	source := in.Source
	if source == "" {
		source = SourceAPI
	}

	sh, cp, err := s.repo.AppendCheckpoint(ctx, in.Tracking, models.CheckpointCreateInput{
		Location:  loc,
		Label:     in.Label,
		Note:      in.Note,
		Status:    in.Status,
		ProofRef:  in.ProofRef,
		Timestamp: at,
		SourceRef: in.SourceRef,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CheckpointAppended(source)
	// конкурентные append'ы могут записать снимки в обратном порядке: сбрасываем,
	// следующий GetShipment перечитает из БД
	s.dropCurrent(ctx, sh.TrackingNumber)
	slog.Info("checkpoint appended",
		"tracking", sh.TrackingNumber,
		"position", cp.Position,
		"status", sh.Status,
		"source", source,
	)

	// Уведомления отвязаны от контекста запроса: транзакция уже закоммичена.
	s.notifySubscribers(context.WithoutCancel(ctx), sh, cp)
	return cp, nil
}

// ApplyCheckpointReport: ingest из Kafka: внешние сканеры сообщают о чекпоинтах.
func (s *Service) ApplyCheckpointReport(ctx context.Context, msg messages.CheckpointReported) error {
	in := AppendCheckpointInput{
		Tracking: msg.TrackingNumber,
		Label:    msg.Label,
		Note:     msg.Note,
		Status:   msg.Status,
		ProofRef: msg.ProofRef,
		Source:   SourceIngest,
	}
	switch {
	case msg.Lat != nil && msg.Lng != nil:
		in.Location.Coordinates = &models.Coordinates{Lat: *msg.Lat, Lng: *msg.Lng}
	case msg.Lat != nil || msg.Lng != nil:
		return apperrors.ValidationFields("validation failed", map[string]string{"location": "lat and lng must be given together"})
	}
	in.Location.Address = msg.Address
	if msg.ReportedAt != nil {
		in.At = msg.ReportedAt.UTC()
	}
	if msg.ID != "" {
		ref := msg.Source + "/" + msg.ID
		in.SourceRef = &ref
	}

	_, err := s.AppendCheckpoint(ctx, in)
	if errors.Is(err, apperrors.ErrDuplicateEvent) {
		slog.Info("checkpoint report already applied", "tracking", msg.TrackingNumber, "id", msg.ID, "source", msg.Source)
		return nil
	}
	return err
}

func (s *Service) notifySubscribers(ctx context.Context, sh *models.Shipment, cp *models.Checkpoint) {
	if s.notifier == nil {
		return
	}
	subs, err := s.repo.ListSubscribers(ctx, sh.TrackingNumber, true)
	if err != nil {
		slog.Error("list subscribers for notification", "tracking", sh.TrackingNumber, "error", err.Error())
		return
	}
	for _, sub := range subs {
		s.notifier.Notify(ctx, sh, cp, sub)
	}
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
