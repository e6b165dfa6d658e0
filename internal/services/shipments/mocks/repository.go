package mocks

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock for shipments.Repository.
type MockRepository struct {
	mock.Mock
}

func (_m *MockRepository) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	ret := _m.Called(ctx, in)
	return shipment(ret, 0), ret.Error(1)
}

func (_m *MockRepository) GetShipment(ctx context.Context, tracking string) (*models.Shipment, error) {
	ret := _m.Called(ctx, tracking)
	return shipment(ret, 0), ret.Error(1)
}

func (_m *MockRepository) ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error) {
	ret := _m.Called(ctx, limit, offset)
	var r0 []*models.Shipment
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Shipment)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) DeleteShipment(ctx context.Context, tracking string) error {
	ret := _m.Called(ctx, tracking)
	return ret.Error(0)
}

func (_m *MockRepository) AppendCheckpoint(ctx context.Context, tracking string, in models.CheckpointCreateInput) (*models.Shipment, *models.Checkpoint, error) {
	ret := _m.Called(ctx, tracking, in)
	var r1 *models.Checkpoint
	if v := ret.Get(1); v != nil {
		r1 = v.(*models.Checkpoint)
	}
	return shipment(ret, 0), r1, ret.Error(2)
}

func (_m *MockRepository) ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error) {
	ret := _m.Called(ctx, tracking)
	var r0 []*models.Checkpoint
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Checkpoint)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error) {
	ret := _m.Called(ctx, tracking)
	var r0 []*models.StatusHistory
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.StatusHistory)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) UpsertSubscriber(ctx context.Context, tracking, channel, contact string) (*models.Subscriber, error) {
	ret := _m.Called(ctx, tracking, channel, contact)
	var r0 *models.Subscriber
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Subscriber)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) DeactivateSubscriber(ctx context.Context, tracking, channel, contact string) (bool, error) {
	ret := _m.Called(ctx, tracking, channel, contact)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockRepository) ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error) {
	ret := _m.Called(ctx, tracking, activeOnly)
	var r0 []*models.Subscriber
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Subscriber)
	}
	return r0, ret.Error(1)
}

func shipment(ret mock.Arguments, i int) *models.Shipment {
	if v := ret.Get(i); v != nil {
		return v.(*models.Shipment)
	}
	return nil
}
