package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/cache"
	"github.com/BearBump/ShipTrack/internal/integrations/geocoder"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/go-playground/validator/v10"
)

const DefaultAverageSpeedKMH = 50.0

type Repository interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetShipment(ctx context.Context, tracking string) (*models.Shipment, error)
	ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error)
	DeleteShipment(ctx context.Context, tracking string) error
	AppendCheckpoint(ctx context.Context, tracking string, in models.CheckpointCreateInput) (*models.Shipment, *models.Checkpoint, error)
	ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error)
	ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error)
	UpsertSubscriber(ctx context.Context, tracking, channel, contact string) (*models.Subscriber, error)
	DeactivateSubscriber(ctx context.Context, tracking, channel, contact string) (bool, error)
	ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error)
}

// Notifier доставляет обновление одному подписчику. Не блокирует и не возвращает ошибок:
// повторы и логирование на нём.
type Notifier interface {
	Notify(ctx context.Context, shp *models.Shipment, cp *models.Checkpoint, sub *models.Subscriber)
}

type Service struct {
	repo     Repository
	geo      geocoder.Geocoder
	notifier Notifier
	cache    cache.BytesCache
	metrics  *metrics.Metrics

	currentTTL  time.Duration
	avgSpeedKMH float64
	now         func() time.Time

	validate *validator.Validate
}

func New(repo Repository, geo geocoder.Geocoder, notifier Notifier, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		geo:         geo,
		notifier:    notifier,
		cache:       c,
		currentTTL:  currentTTL,
		avgSpeedKMH: DefaultAverageSpeedKMH,
		now:         func() time.Time { return time.Now().UTC() },
		validate:    newValidator(),
	}
}

func (s *Service) WithAverageSpeed(kmh float64) *Service {
	if kmh > 0 {
		s.avgSpeedKMH = kmh
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

type LocationInput struct {
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Address     string              `json:"address,omitempty" validate:"omitempty,max=255"`
}

type CreateShipmentInput struct {
	TrackingNumber string        `json:"tracking_number" validate:"required,max=50"`
	Title          string        `json:"title" validate:"omitempty,max=200"`
	Origin         LocationInput `json:"origin"`
	Destination    LocationInput `json:"destination"`
	InitialStatus  string        `json:"status" validate:"omitempty,max=32"`
}

func (s *Service) CreateShipment(ctx context.Context, in CreateShipmentInput) (*models.Shipment, error) {
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.Title = strings.TrimSpace(in.Title)
	in.InitialStatus = strings.TrimSpace(in.InitialStatus)
	in.Origin.Address = strings.TrimSpace(in.Origin.Address)
	in.Destination.Address = strings.TrimSpace(in.Destination.Address)

	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	checkExactlyOne("origin", in.Origin, fields)
	checkExactlyOne("destination", in.Destination, fields)
	if strings.EqualFold(in.InitialStatus, models.ShipmentStatusDelivered) {
		// Delivered ставится только чекпоинтом: он фиксирует ETA
		fields["status"] = "initial status cannot be Delivered"
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationFields("validation failed", fields)
	}

	origin, err := s.resolve(ctx, in.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := s.resolve(ctx, in.Destination)
	if err != nil {
		return nil, err
	}

	if in.Title == "" {
		in.Title = models.DefaultShipmentTitle
	}
	if in.InitialStatus == "" {
		in.InitialStatus = models.ShipmentStatusCreated
	}

	distance := Haversine(origin, destination)
	eta := EstimateArrival(s.now(), distance, s.avgSpeedKMH)

	sh, err := s.repo.CreateShipment(ctx, models.ShipmentCreateInput{
		TrackingNumber:     in.TrackingNumber,
		Title:              in.Title,
		Origin:             origin,
		Destination:        destination,
		OriginAddress:      optional(in.Origin.Address),
		DestinationAddress: optional(in.Destination.Address),
		Status:             in.InitialStatus,
		DistanceKM:         distance,
		ETA:                &eta,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ShipmentCreated()
	s.putCurrent(ctx, sh)
	slog.Info("shipment created", "tracking", sh.TrackingNumber, "distance_km", sh.DistanceKM)
	return sh, nil
}

// GetShipment читает текущее состояние через кэш. Кэш best effort.
func (s *Service) GetShipment(ctx context.Context, tracking string) (*models.Shipment, error) {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return nil, apperrors.ValidationFields("validation failed", map[string]string{"tracking_number": "tracking_number is required"})
	}

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, cache.ShipmentKey(tracking)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipment(ctx, tracking)
	if err != nil {
		return nil, err
	}
	s.putCurrent(ctx, sh)
	return sh, nil
}

func (s *Service) ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error) {
	return s.repo.ListShipments(ctx, limit, offset)
}

func (s *Service) ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error) {
	return s.repo.ListCheckpoints(ctx, strings.TrimSpace(tracking))
}

func (s *Service) ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error) {
	return s.repo.ListStatusHistory(ctx, strings.TrimSpace(tracking))
}

// DeleteShipment: админское удаление вместе со всеми дочерними записями.
func (s *Service) DeleteShipment(ctx context.Context, tracking string) error {
	tracking = strings.TrimSpace(tracking)
	if err := s.repo.DeleteShipment(ctx, tracking); err != nil {
		return err
	}
	if s.cacheEnabled() {
		if err := s.cache.Delete(ctx, cache.ShipmentKey(tracking)); err != nil {
			slog.Warn("cache delete failed", "tracking", tracking, "error", err.Error())
		}
	}
	slog.Info("shipment deleted", "tracking", tracking)
	return nil
}

func (s *Service) resolve(ctx context.Context, loc LocationInput) (models.Coordinates, error) {
	if loc.Coordinates != nil {
		return *loc.Coordinates, nil
	}
	if s.geo == nil {
		return models.Coordinates{}, apperrors.Geocode(loc.Address, errNoGeocoder)
	}
	c, err := s.geo.Resolve(ctx, loc.Address)
	if err != nil {
		return models.Coordinates{}, apperrors.Geocode(loc.Address, err)
	}
	if !c.Valid() {
		return models.Coordinates{}, apperrors.Geocode(loc.Address, errInvalidGeocode)
	}
	return c, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) putCurrent(ctx context.Context, sh *models.Shipment) {
	if !s.cacheEnabled() || sh == nil {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.ShipmentKey(sh.TrackingNumber), b, s.currentTTL); err != nil {
		slog.Warn("cache set failed", "tracking", sh.TrackingNumber, "error", err.Error())
	}
}

func (s *Service) dropCurrent(ctx context.Context, tracking string) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Delete(ctx, cache.ShipmentKey(tracking)); err != nil {
		slog.Warn("cache delete failed", "tracking", tracking, "error", err.Error())
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
