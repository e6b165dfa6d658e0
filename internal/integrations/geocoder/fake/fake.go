package fake

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/BearBump/ShipTrack/internal/integrations/geocoder"
	"github.com/BearBump/ShipTrack/internal/models"
)

// Geocoder: детерминированный геокодер для dev/тестов: координаты считаются из хеша адреса.
// Адреса из заранее известного списка возвращаются точно.
type Geocoder struct {
	known map[string]models.Coordinates
}

func New() *Geocoder {
	return &Geocoder{known: map[string]models.Coordinates{
		"lagos":    {Lat: 6.5244, Lng: 3.3792},
		"london":   {Lat: 51.5074, Lng: -0.1278},
		"moscow":   {Lat: 55.7558, Lng: 37.6173},
		"new york": {Lat: 40.7128, Lng: -74.0060},
	}}
}

func (g *Geocoder) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	norm := strings.ToLower(strings.TrimSpace(address))
	if norm == "" {
		return models.Coordinates{}, geocoder.ErrNoResults
	}
	if c, ok := g.known[norm]; ok {
		return c, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(norm))
	v := h.Sum64()

	// младшие 32 бита дают широту, старшие долготу; шаг 1e-4 градуса
	lat := float64(v&0xffffffff%1_800_000)/10_000 - 90
	lng := float64((v>>32)%3_600_000)/10_000 - 180
	return models.Coordinates{Lat: lat, Lng: lng}, nil
}
