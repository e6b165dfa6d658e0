package messages

import "time"

const NotificationRequestedType = "shipment.notification_requested.v1"

// NotificationRequested: одно уведомление одному подписчику о новом чекпоинте.
type NotificationRequested struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	TrackingNumber string `json:"tracking_number"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	TrackURL       string `json:"track_url"`

	Checkpoint Checkpoint `json:"checkpoint"`

	SubscriberID uint64 `json:"subscriber_id"`
	Channel      string `json:"channel"`
	Contact      string `json:"contact"`
}

type Checkpoint struct {
	Position  int       `json:"position"`
	Label     string    `json:"label"`
	Note      *string   `json:"note,omitempty"`
	Status    *string   `json:"status,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}
