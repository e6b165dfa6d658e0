package mocks

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a testify mock for shipments.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (_m *MockNotifier) Notify(ctx context.Context, shp *models.Shipment, cp *models.Checkpoint, sub *models.Subscriber) {
	_m.Called(ctx, shp, cp, sub)
}

// MockGeocoder is a testify mock for geocoder.Geocoder.
type MockGeocoder struct {
	mock.Mock
}

func (_m *MockGeocoder) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	ret := _m.Called(ctx, address)
	return ret.Get(0).(models.Coordinates), ret.Error(1)
}
