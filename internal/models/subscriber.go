package models

import "time"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type Subscriber struct {
	ID         uint64
	ShipmentID uint64
	Channel    string
	Contact    string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
