package geocoder

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/pkg/errors"
)

// ErrNoResults: адрес не распознан провайдером.
var ErrNoResults = errors.New("geocoder: no results")

type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.Coordinates, error)
}
