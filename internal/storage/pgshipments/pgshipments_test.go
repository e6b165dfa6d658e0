package pgshipments

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func strPtr(s string) *string { return &s }

func startStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container is skipped in -short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "shiptrack_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/shiptrack_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func createTRK(t *testing.T, st *Storage, tracking string) *models.Shipment {
	t.Helper()
	sh, err := st.CreateShipment(context.Background(), models.ShipmentCreateInput{
		TrackingNumber: tracking,
		Title:          models.DefaultShipmentTitle,
		Origin:         models.Coordinates{Lat: 6.5244, Lng: 3.3792},
		Destination:    models.Coordinates{Lat: 51.5074, Lng: -0.1278},
		Status:         models.ShipmentStatusCreated,
		DistanceKM:     5000,
	})
	require.NoError(t, err)
	return sh
}

func TestPGShipments_RepoFlow(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()

	sh := createTRK(t, st, "TRK1")
	require.NotZero(t, sh.ID)

	// повторный трек-номер с другим payload
	_, err := st.CreateShipment(ctx, models.ShipmentCreateInput{
		TrackingNumber: "TRK1",
		Title:          "other",
		Status:         models.ShipmentStatusInTransit,
	})
	require.True(t, errors.Is(err, apperrors.ErrDuplicateTracking))

	ts := time.Now().UTC().Truncate(time.Second)
	gotSh, cp, err := st.AppendCheckpoint(ctx, "TRK1", models.CheckpointCreateInput{
		Location:  sh.Origin,
		Label:     "Picked up",
		Status:    strPtr(models.ShipmentStatusInTransit),
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.Equal(t, 1, cp.Position)
	require.Equal(t, models.ShipmentStatusInTransit, gotSh.Status)

	_, cp, err = st.AppendCheckpoint(ctx, "TRK1", models.CheckpointCreateInput{
		Location:  sh.Destination,
		Label:     "Handed over",
		Status:    strPtr(models.ShipmentStatusDelivered),
		Timestamp: ts.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, 2, cp.Position)

	fresh, err := st.GetShipment(ctx, "TRK1")
	require.NoError(t, err)
	require.Equal(t, models.ShipmentStatusDelivered, fresh.Status)
	require.NotNil(t, fresh.ETA)
	require.True(t, fresh.ETA.Equal(ts.Add(time.Hour)))

	hist, err := st.ListStatusHistory(ctx, "TRK1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, models.ShipmentStatusCreated, hist[0].Status)
	require.Equal(t, models.ShipmentStatusDelivered, hist[2].Status)

	_, _, err = st.AppendCheckpoint(ctx, "NOPE", models.CheckpointCreateInput{Label: "x", Timestamp: ts})
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	list, err := st.ListShipments(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.DeleteShipment(ctx, "TRK1"))
	_, err = st.GetShipment(ctx, "TRK1")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
	require.True(t, errors.Is(st.DeleteShipment(ctx, "TRK1"), apperrors.ErrNotFound))
}

func TestPGShipments_ConcurrentAppendPositions(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()
	sh := createTRK(t, st, "TRK-RACE")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := st.AppendCheckpoint(ctx, "TRK-RACE", models.CheckpointCreateInput{
				Location:  sh.Origin,
				Label:     "scan",
				Timestamp: time.Now(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cps, err := st.ListCheckpoints(ctx, "TRK-RACE")
	require.NoError(t, err)
	require.Len(t, cps, n)

	positions := make([]int, 0, n)
	for _, cp := range cps {
		positions = append(positions, cp.Position)
	}
	sort.Ints(positions)
	for i, p := range positions {
		require.Equal(t, i+1, p)
	}
}

func TestPGShipments_SourceRefDeduplicates(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()
	sh := createTRK(t, st, "TRK-REF")
	other := createTRK(t, st, "TRK-REF2")

	ref := "scanner-7/evt-1"
	in := models.CheckpointCreateInput{Location: sh.Origin, Label: "Hub scan", Timestamp: time.Now(), SourceRef: &ref}

	_, cp, err := st.AppendCheckpoint(ctx, "TRK-REF", in)
	require.NoError(t, err)
	require.Equal(t, 1, cp.Position)

	_, _, err = st.AppendCheckpoint(ctx, "TRK-REF", in)
	require.True(t, errors.Is(err, apperrors.ErrDuplicateEvent))

	// ключ уникален только в пределах отправления
	in.Location = other.Origin
	_, _, err = st.AppendCheckpoint(ctx, "TRK-REF2", in)
	require.NoError(t, err)

	// без ref дубли не проверяются
	in.SourceRef = nil
	_, cp, err = st.AppendCheckpoint(ctx, "TRK-REF", in)
	require.NoError(t, err)
	require.Equal(t, 2, cp.Position)

	cps, err := st.ListCheckpoints(ctx, "TRK-REF")
	require.NoError(t, err)
	require.Len(t, cps, 2)
}

func TestPGShipments_Subscribers(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()
	createTRK(t, st, "TRK-SUB")

	first, err := st.UpsertSubscriber(ctx, "TRK-SUB", models.ChannelEmail, "a@example.com")
	require.NoError(t, err)
	again, err := st.UpsertSubscriber(ctx, "TRK-SUB", models.ChannelEmail, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	active, err := st.ListSubscribers(ctx, "TRK-SUB", true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	changed, err := st.DeactivateSubscriber(ctx, "TRK-SUB", models.ChannelEmail, "a@example.com")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = st.DeactivateSubscriber(ctx, "TRK-SUB", models.ChannelEmail, "a@example.com")
	require.NoError(t, err)
	require.False(t, changed)

	active, err = st.ListSubscribers(ctx, "TRK-SUB", true)
	require.NoError(t, err)
	require.Empty(t, active)

	back, err := st.UpsertSubscriber(ctx, "TRK-SUB", models.ChannelEmail, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, back.ID)
	require.True(t, back.Active)

	all, err := st.ListSubscribers(ctx, "TRK-SUB", false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = st.UpsertSubscriber(ctx, "NOPE", models.ChannelSMS, "+2348012345678")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPGShipments_SimulationState(t *testing.T) {
	st := startStorage(t)
	ctx := context.Background()
	sh := createTRK(t, st, "TRK-SIM")

	clock := time.Now().UTC().Truncate(time.Second)
	state := &models.SimulationState{
		TrackingNumber: "TRK-SIM",
		RunID:          "6f1c3f5e-8d1c-4c57-9b2a-3a5e8e2d7f10",
		Status:         models.SimulationStatusRunning,
		Waypoints:      []models.Coordinates{sh.Origin, sh.Destination},
		TotalPoints:    2,
		StepDuration:   2 * time.Hour,
		VirtualClock:   clock,
	}
	require.NoError(t, st.CreateSimulation(ctx, state))
	require.Equal(t, sh.ID, state.ShipmentID)

	err := st.CreateSimulation(ctx, state)
	require.True(t, errors.Is(err, apperrors.ErrInvalidState))

	got, err := st.GetSimulation(ctx, "TRK-SIM")
	require.NoError(t, err)
	require.Equal(t, state.Waypoints, got.Waypoints)
	require.Equal(t, 2*time.Hour, got.StepDuration)

	ok, err := st.SaveSimulationProgress(ctx, "TRK-SIM", models.SimulationProgress{FromIndex: 0, ToIndex: 1, VirtualClock: clock.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.True(t, ok)

	// устаревший индекс не применяется
	ok, err = st.SaveSimulationProgress(ctx, "TRK-SIM", models.SimulationProgress{FromIndex: 0, ToIndex: 1, VirtualClock: clock})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.SetSimulationStatus(ctx, "TRK-SIM", models.SimulationStatusRunning, models.SimulationStatusPaused)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.SetSimulationStatus(ctx, "TRK-SIM", models.SimulationStatusRunning, models.SimulationStatusPaused)
	require.NoError(t, err)
	require.False(t, ok)

	// последний шаг на паузе не помечает completed
	ok, err = st.SaveSimulationProgress(ctx, "TRK-SIM", models.SimulationProgress{FromIndex: 1, ToIndex: 2, VirtualClock: clock.Add(4 * time.Hour), Completed: true})
	require.NoError(t, err)
	require.True(t, ok)
	got, err = st.GetSimulation(ctx, "TRK-SIM")
	require.NoError(t, err)
	require.Equal(t, models.SimulationStatusPaused, got.Status)
	require.Equal(t, 2, got.CurrentIndex)

	paused, err := st.ListSimulationsByStatus(ctx, models.SimulationStatusPaused)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	require.Equal(t, "TRK-SIM", paused[0].TrackingNumber)

	_, err = st.GetSimulation(ctx, "NOPE")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}
