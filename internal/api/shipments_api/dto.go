package shipments_api

import (
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
)

type checkpointRequest struct {
	Location shipments.LocationInput `json:"location"`
	Label    string                  `json:"label"`
	Note     *string                 `json:"note,omitempty"`
	Status   *string                 `json:"status,omitempty"`
	ProofRef *string                 `json:"proof_ref,omitempty"`
}

type contactRequest struct {
	Contact string `json:"contact"`
}

type simulateRequest struct {
	NumPoints int     `json:"num_points"`
	StepHours float64 `json:"step_hours"`
}

type ShipmentResponse struct {
	TrackingNumber     string               `json:"tracking_number"`
	Title              string               `json:"title"`
	Origin             models.Coordinates   `json:"origin"`
	Destination        models.Coordinates   `json:"destination"`
	OriginAddress      *string              `json:"origin_address,omitempty"`
	DestinationAddress *string              `json:"destination_address,omitempty"`
	Status             string               `json:"status"`
	DistanceKM         float64              `json:"distance_km"`
	ETA                *time.Time           `json:"eta,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	Checkpoints        []CheckpointResponse `json:"checkpoints,omitempty"`
	Subscribers        []SubscriberResponse `json:"subscribers,omitempty"`
}

type CheckpointResponse struct {
	Position  int       `json:"position"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Label     string    `json:"label"`
	Note      *string   `json:"note,omitempty"`
	Status    *string   `json:"status,omitempty"`
	ProofRef  *string   `json:"proof_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SubscriberResponse struct {
	ID        uint64    `json:"id"`
	Channel   string    `json:"channel"`
	Contact   string    `json:"contact"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StatusHistoryResponse struct {
	Status    string    `json:"status"`
	Note      *string   `json:"note,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type SimulationResponse struct {
	TrackingNumber string               `json:"tracking_number"`
	RunID          string               `json:"run_id"`
	Status         string               `json:"status"`
	CurrentIndex   int                  `json:"current_index"`
	TotalPoints    int                  `json:"total_points"`
	StepHours      float64              `json:"step_hours"`
	VirtualClock   time.Time            `json:"virtual_clock"`
	Waypoints      []models.Coordinates `json:"waypoints"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func toShipment(sh *models.Shipment) ShipmentResponse {
	return ShipmentResponse{
		TrackingNumber:     sh.TrackingNumber,
		Title:              sh.Title,
		Origin:             sh.Origin,
		Destination:        sh.Destination,
		OriginAddress:      sh.OriginAddress,
		DestinationAddress: sh.DestinationAddress,
		Status:             sh.Status,
		DistanceKM:         sh.DistanceKM,
		ETA:                sh.ETA,
		CreatedAt:          sh.CreatedAt,
		UpdatedAt:          sh.UpdatedAt,
	}
}

func toCheckpoint(cp *models.Checkpoint) CheckpointResponse {
	return CheckpointResponse{
		Position:  cp.Position,
		Lat:       cp.Location.Lat,
		Lng:       cp.Location.Lng,
		Label:     cp.Label,
		Note:      cp.Note,
		Status:    cp.Status,
		ProofRef:  cp.ProofRef,
		Timestamp: cp.Timestamp,
	}
}

func toCheckpoints(cps []*models.Checkpoint) []CheckpointResponse {
	out := make([]CheckpointResponse, 0, len(cps))
	for _, cp := range cps {
		out = append(out, toCheckpoint(cp))
	}
	return out
}

func toSubscriber(s *models.Subscriber) SubscriberResponse {
	return SubscriberResponse{
		ID:        s.ID,
		Channel:   s.Channel,
		Contact:   s.Contact,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
	}
}

func toSubscribers(subs []*models.Subscriber) []SubscriberResponse {
	out := make([]SubscriberResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriber(s))
	}
	return out
}

func toSimulation(st *models.SimulationState) SimulationResponse {
	return SimulationResponse{
		TrackingNumber: st.TrackingNumber,
		RunID:          st.RunID,
		Status:         st.Status,
		CurrentIndex:   st.CurrentIndex,
		TotalPoints:    st.TotalPoints,
		StepHours:      st.StepDuration.Hours(),
		VirtualClock:   st.VirtualClock,
		Waypoints:      st.Waypoints,
	}
}
