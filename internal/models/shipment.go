package models

import "time"

// Известные статусы отправления (можно расширять).
const (
	ShipmentStatusCreated        = "Created"
	ShipmentStatusInTransit      = "In Transit"
	ShipmentStatusOutForDelivery = "Out for Delivery"
	ShipmentStatusDelivered      = "Delivered"
)

const DefaultShipmentTitle = "Consignment"

type Coordinates struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

type Shipment struct {
	ID                 uint64
	TrackingNumber     string
	Title              string
	Origin             Coordinates
	Destination        Coordinates
	OriginAddress      *string
	DestinationAddress *string
	Status             string
	DistanceKM         float64
	ETA                *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ApplyCheckpoint moves the shipment forward according to a freshly appended
// checkpoint. It reports whether the status changed (a StatusHistory row is due).
// Delivered is terminal: the delivering checkpoint fixes ETA and later
// checkpoints no longer change status or ETA.
func (s *Shipment) ApplyCheckpoint(cp *Checkpoint) bool {
	if s.Status == ShipmentStatusDelivered {
		return false
	}
	if cp.Status == nil || *cp.Status == "" || *cp.Status == s.Status {
		return false
	}
	s.Status = *cp.Status
	if s.Status == ShipmentStatusDelivered {
		eta := cp.Timestamp
		s.ETA = &eta
	}
	return true
}

type ShipmentCreateInput struct {
	TrackingNumber     string
	Title              string
	Origin             Coordinates
	Destination        Coordinates
	OriginAddress      *string
	DestinationAddress *string
	Status             string
	DistanceKM         float64
	ETA                *time.Time
}

type Checkpoint struct {
	ID         uint64
	ShipmentID uint64
	Position   int
	Location   Coordinates
	Label      string
	Note       *string
	Status     *string
	ProofRef   *string
	Timestamp  time.Time
}

type CheckpointCreateInput struct {
	Location  Coordinates
	Label     string
	Note      *string
	Status    *string
	ProofRef  *string
	Timestamp time.Time
	// SourceRef: ключ идемпотентности внешнего события, уникален в пределах отправления.
	SourceRef *string
}

type StatusHistory struct {
	ID         uint64
	ShipmentID uint64
	Status     string
	Note       *string
	ChangedAt  time.Time
}
