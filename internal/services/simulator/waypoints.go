package simulator

import (
	"math"

	"github.com/BearBump/ShipTrack/internal/models"
)

// MaxJitterDeg: косметический шум точек маршрута, градусы.
const MaxJitterDeg = 0.01

type Rand interface {
	Float64() float64
}

// GenerateWaypoints делит отрезок origin→destination на numPoints равных частей
// (numPoints+1 точек, включая концы) и слегка смещает каждую точку.
// Результат всегда в допустимых диапазонах координат.
func GenerateWaypoints(origin, destination models.Coordinates, numPoints int, r Rand) []models.Coordinates {
	if numPoints < 1 {
		numPoints = 1
	}
	out := make([]models.Coordinates, 0, numPoints+1)
	for i := 0; i <= numPoints; i++ {
		frac := float64(i) / float64(numPoints)
		lat := origin.Lat + (destination.Lat-origin.Lat)*frac + jitter(r)
		lng := origin.Lng + (destination.Lng-origin.Lng)*frac + jitter(r)
		out = append(out, models.Coordinates{
			Lat: clamp(lat, -90, 90),
			Lng: clamp(lng, -180, 180),
		})
	}
	return out
}

// StatusForStep: статус чекпоинта по индексу точки: последняя Delivered,
// предпоследняя Out for Delivery, остальные In Transit.
func StatusForStep(index, total int) string {
	switch {
	case index >= total-1:
		return models.ShipmentStatusDelivered
	case index == total-2 && total >= 3:
		return models.ShipmentStatusOutForDelivery
	default:
		return models.ShipmentStatusInTransit
	}
}

func jitter(r Rand) float64 {
	if r == nil {
		return 0
	}
	return (r.Float64()*2 - 1) * MaxJitterDeg
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
