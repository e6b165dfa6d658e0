package geocoder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/ShipTrack/internal/cache"
	"github.com/BearBump/ShipTrack/internal/models"
)

// Cached запоминает успешные ответы провайдера. Ошибки кэша не ломают геокодинг.
type Cached struct {
	next  Geocoder
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCached(next Geocoder, c cache.BytesCache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	key := cache.GeocodeKey(address)

	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("geocode cache get failed", "err", err)
	} else if ok {
		var coords models.Coordinates
		if err := json.Unmarshal(b, &coords); err == nil && coords.Valid() {
			return coords, nil
		}
	}

	coords, err := c.next.Resolve(ctx, address)
	if err != nil {
		return models.Coordinates{}, err
	}

	if b, err := json.Marshal(coords); err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			slog.Warn("geocode cache set failed", "err", err)
		}
	}
	return coords, nil
}
