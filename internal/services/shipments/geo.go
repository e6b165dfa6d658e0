package shipments

import (
	"math"
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
)

const earthRadiusKM = 6371.0

// Haversine: расстояние по большому кругу в километрах.
func Haversine(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// EstimateArrival: наивный ETA: расстояние / средняя скорость от момента now.
func EstimateArrival(now time.Time, distanceKM, speedKMH float64) time.Time {
	if speedKMH <= 0 {
		speedKMH = DefaultAverageSpeedKMH
	}
	hours := distanceKM / speedKMH
	return now.Add(time.Duration(hours * float64(time.Hour))).UTC()
}
