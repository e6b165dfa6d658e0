package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
)

// memRepo: in-memory реализация репозиториев shipments и simulator с теми же
// гарантиями, что и pgshipments: позиции max+1 под мьютексом, CAS статуса симуляции.
type memRepo struct {
	mu          sync.Mutex
	nextID      uint64
	shipments   map[string]*models.Shipment
	checkpoints map[string][]*models.Checkpoint
	history     map[string][]*models.StatusHistory
	subs        map[string][]*models.Subscriber
	sims        map[string]*models.SimulationState
	refs        map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		shipments:   map[string]*models.Shipment{},
		checkpoints: map[string][]*models.Checkpoint{},
		history:     map[string][]*models.StatusHistory{},
		subs:        map[string][]*models.Subscriber{},
		sims:        map[string]*models.SimulationState{},
		refs:        map[string]bool{},
	}
}

func (r *memRepo) id() uint64 {
	r.nextID++
	return r.nextID
}

func notFound(tracking string) error {
	return apperrors.NotFound("shipment %q not found", tracking)
}

func (r *memRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[in.TrackingNumber]; ok {
		return nil, apperrors.DuplicateTracking(in.TrackingNumber)
	}
	now := time.Now().UTC()
	sh := &models.Shipment{
		ID: r.id(), TrackingNumber: in.TrackingNumber, Title: in.Title,
		Origin: in.Origin, Destination: in.Destination,
		OriginAddress: in.OriginAddress, DestinationAddress: in.DestinationAddress,
		Status: in.Status, DistanceKM: in.DistanceKM, ETA: in.ETA,
		CreatedAt: now, UpdatedAt: now,
	}
	r.shipments[sh.TrackingNumber] = sh
	r.history[sh.TrackingNumber] = append(r.history[sh.TrackingNumber], &models.StatusHistory{ID: r.id(), ShipmentID: sh.ID, Status: sh.Status, ChangedAt: now})
	c := *sh
	return &c, nil
}

func (r *memRepo) GetShipment(ctx context.Context, tracking string) (*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh, ok := r.shipments[tracking]
	if !ok {
		return nil, notFound(tracking)
	}
	c := *sh
	return &c, nil
}

func (r *memRepo) ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Shipment, 0, len(r.shipments))
	for _, sh := range r.shipments {
		c := *sh
		out = append(out, &c)
	}
	return out, nil
}

func (r *memRepo) DeleteShipment(ctx context.Context, tracking string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[tracking]; !ok {
		return notFound(tracking)
	}
	delete(r.shipments, tracking)
	delete(r.checkpoints, tracking)
	delete(r.history, tracking)
	delete(r.subs, tracking)
	delete(r.sims, tracking)
	return nil
}

func (r *memRepo) AppendCheckpoint(ctx context.Context, tracking string, in models.CheckpointCreateInput) (*models.Shipment, *models.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh, ok := r.shipments[tracking]
	if !ok {
		return nil, nil, notFound(tracking)
	}
	if in.SourceRef != nil {
		if r.refs[tracking+"|"+*in.SourceRef] {
			return nil, nil, apperrors.DuplicateEvent(tracking, *in.SourceRef)
		}
		r.refs[tracking+"|"+*in.SourceRef] = true
	}
	next := 1
	if cps := r.checkpoints[tracking]; len(cps) > 0 {
		next = cps[len(cps)-1].Position + 1
	}
	cp := &models.Checkpoint{
		ID: r.id(), ShipmentID: sh.ID, Position: next, Location: in.Location, Label: in.Label,
		Note: in.Note, Status: in.Status, ProofRef: in.ProofRef, Timestamp: in.Timestamp.UTC(),
	}
	r.checkpoints[tracking] = append(r.checkpoints[tracking], cp)
	if sh.ApplyCheckpoint(cp) {
		r.history[tracking] = append(r.history[tracking], &models.StatusHistory{ID: r.id(), ShipmentID: sh.ID, Status: sh.Status, Note: &cp.Label, ChangedAt: cp.Timestamp})
	}
	sh.UpdatedAt = time.Now().UTC()
	shc, cpc := *sh, *cp
	return &shc, &cpc, nil
}

func (r *memRepo) ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[tracking]; !ok {
		return nil, notFound(tracking)
	}
	out := make([]*models.Checkpoint, 0, len(r.checkpoints[tracking]))
	for _, cp := range r.checkpoints[tracking] {
		c := *cp
		out = append(out, &c)
	}
	return out, nil
}

func (r *memRepo) ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.StatusHistory(nil), r.history[tracking]...), nil
}

func (r *memRepo) UpsertSubscriber(ctx context.Context, tracking, channel, contact string) (*models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh, ok := r.shipments[tracking]
	if !ok {
		return nil, notFound(tracking)
	}
	for _, sub := range r.subs[tracking] {
		if sub.Channel == channel && sub.Contact == contact {
			sub.Active = true
			c := *sub
			return &c, nil
		}
	}
	sub := &models.Subscriber{ID: r.id(), ShipmentID: sh.ID, Channel: channel, Contact: contact, Active: true}
	r.subs[tracking] = append(r.subs[tracking], sub)
	c := *sub
	return &c, nil
}

func (r *memRepo) DeactivateSubscriber(ctx context.Context, tracking, channel, contact string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[tracking]; !ok {
		return false, notFound(tracking)
	}
	for _, sub := range r.subs[tracking] {
		if sub.Channel == channel && sub.Contact == contact && sub.Active {
			sub.Active = false
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[tracking]; !ok {
		return nil, notFound(tracking)
	}
	var out []*models.Subscriber
	for _, sub := range r.subs[tracking] {
		if activeOnly && !sub.Active {
			continue
		}
		c := *sub
		out = append(out, &c)
	}
	return out, nil
}

func (r *memRepo) CreateSimulation(ctx context.Context, st *models.SimulationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh, ok := r.shipments[st.TrackingNumber]
	if !ok {
		return notFound(st.TrackingNumber)
	}
	if _, ok := r.sims[st.TrackingNumber]; ok {
		return apperrors.InvalidState("simulation for %q already exists", st.TrackingNumber)
	}
	st.ShipmentID = sh.ID
	c := *st
	r.sims[st.TrackingNumber] = &c
	return nil
}

func (r *memRepo) GetSimulation(ctx context.Context, tracking string) (*models.SimulationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sims[tracking]
	if !ok {
		return nil, apperrors.NotFound("simulation for %q not found", tracking)
	}
	c := *st
	return &c, nil
}

func (r *memRepo) SetSimulationStatus(ctx context.Context, tracking, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sims[tracking]
	if !ok || st.Status != from {
		return false, nil
	}
	st.Status = to
	return true, nil
}

func (r *memRepo) SaveSimulationProgress(ctx context.Context, tracking string, p models.SimulationProgress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sims[tracking]
	if !ok || st.CurrentIndex != p.FromIndex {
		return false, nil
	}
	st.CurrentIndex = p.ToIndex
	st.VirtualClock = p.VirtualClock
	if p.Completed && st.Status == models.SimulationStatusRunning {
		st.Status = models.SimulationStatusCompleted
	}
	return true, nil
}

func (r *memRepo) ListSimulationsByStatus(ctx context.Context, status string) ([]*models.SimulationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SimulationState
	for _, st := range r.sims {
		if st.Status == status {
			c := *st
			out = append(out, &c)
		}
	}
	return out, nil
}
