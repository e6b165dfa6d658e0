package messages

import "time"

// CheckpointReported публикуют внешние сканеры/перевозчики в топик ingest.
// Должно быть задано ровно одно из (Lat, Lng) или Address.
// ID уникален в пределах Source: повторная доставка того же события не создаёт второй чекпоинт.
type CheckpointReported struct {
	ID             string     `json:"id,omitempty"`
	TrackingNumber string     `json:"tracking_number"`
	Lat            *float64   `json:"lat,omitempty"`
	Lng            *float64   `json:"lng,omitempty"`
	Address        string     `json:"address,omitempty"`
	Label          string     `json:"label"`
	Note           *string    `json:"note,omitempty"`
	Status         *string    `json:"status,omitempty"`
	ProofRef       *string    `json:"proof_ref,omitempty"`
	ReportedAt     *time.Time `json:"reported_at,omitempty"`
	Source         string     `json:"source,omitempty"`
}
