package geocoder

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	calls int
	res   models.Coordinates
	err   error
}

func (g *countingGeocoder) Resolve(ctx context.Context, address string) (models.Coordinates, error) {
	g.calls++
	return g.res, g.err
}

func TestCached_ResolveHitsProviderOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	next := &countingGeocoder{res: models.Coordinates{Lat: 6.5244, Lng: 3.3792}}
	c := NewCached(next, rediscache.New(rediscache.Options{Addr: mr.Addr()}), time.Hour)

	ctx := context.Background()
	got, err := c.Resolve(ctx, "Lagos, Nigeria")
	require.NoError(t, err)
	require.Equal(t, next.res, got)

	got, err = c.Resolve(ctx, "  lagos,   nigeria")
	require.NoError(t, err)
	require.Equal(t, next.res, got)
	require.Equal(t, 1, next.calls)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	next := &countingGeocoder{err: ErrNoResults}
	c := NewCached(next, rediscache.New(rediscache.Options{Addr: mr.Addr()}), time.Hour)

	ctx := context.Background()
	_, err := c.Resolve(ctx, "nowhere")
	require.ErrorIs(t, err, ErrNoResults)
	_, err = c.Resolve(ctx, "nowhere")
	require.ErrorIs(t, err, ErrNoResults)
	require.Equal(t, 2, next.calls)
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	next := &countingGeocoder{res: models.Coordinates{Lat: 1, Lng: 2}}
	c := NewCached(next, rediscache.New(rediscache.Options{Addr: mr.Addr()}), time.Hour)
	mr.Close()

	got, err := c.Resolve(context.Background(), "somewhere")
	require.NoError(t, err)
	require.Equal(t, next.res, got)
}
