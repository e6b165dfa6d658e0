package notifier

import (
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/google/uuid"
)

// TrackURL: публичная страница отправления.
func TrackURL(baseURL, tracking string) string {
	return strings.TrimRight(baseURL, "/") + "/track/" + tracking
}

// NewRequest собирает сообщение для одного подписчика.
func NewRequest(baseURL string, sh *models.Shipment, cp *models.Checkpoint, sub *models.Subscriber, now time.Time) messages.NotificationRequested {
	return messages.NotificationRequested{
		ID:             uuid.NewString(),
		Type:           messages.NotificationRequestedType,
		CreatedAt:      now.UTC(),
		TrackingNumber: sh.TrackingNumber,
		Title:          sh.Title,
		Status:         sh.Status,
		TrackURL:       TrackURL(baseURL, sh.TrackingNumber),
		Checkpoint: messages.Checkpoint{
			Position:  cp.Position,
			Label:     cp.Label,
			Note:      cp.Note,
			Status:    cp.Status,
			Lat:       cp.Location.Lat,
			Lng:       cp.Location.Lng,
			Timestamp: cp.Timestamp.UTC(),
		},
		SubscriberID: sub.ID,
		Channel:      sub.Channel,
		Contact:      sub.Contact,
	}
}
