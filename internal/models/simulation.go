package models

import "time"

const (
	SimulationStatusRunning   = "running"
	SimulationStatusPaused    = "paused"
	SimulationStatusCompleted = "completed"
)

type SimulationState struct {
	ShipmentID     uint64
	TrackingNumber string
	RunID          string
	Status         string
	CurrentIndex   int
	Waypoints      []Coordinates
	TotalPoints    int
	StepDuration   time.Duration
	VirtualClock   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Done reports whether every waypoint has been turned into a checkpoint.
func (s *SimulationState) Done() bool {
	return s.CurrentIndex >= s.TotalPoints
}

// SimulationProgress is the per-step update persisted after each checkpoint.
type SimulationProgress struct {
	FromIndex    int
	ToIndex      int
	VirtualClock time.Time
	Completed    bool
}
