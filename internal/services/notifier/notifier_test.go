package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

var cpTime = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func sampleRequest() messages.NotificationRequested {
	sh := &models.Shipment{TrackingNumber: "TRK1", Title: "Laptop", Status: models.ShipmentStatusInTransit}
	cp := &models.Checkpoint{
		Position:  2,
		Label:     "Hub",
		Note:      strPtr("sorted"),
		Status:    strPtr(models.ShipmentStatusInTransit),
		Location:  models.Coordinates{Lat: 6.5244, Lng: 3.3792},
		Timestamp: cpTime,
	}
	sub := &models.Subscriber{ID: 7, Channel: models.ChannelEmail, Contact: "a@x.io"}
	return NewRequest("https://ship.example/", sh, cp, sub, cpTime)
}

type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	sent  []sender.Message
}

func (f *fakeSender) Send(ctx context.Context, msg sender.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastConfig() DispatcherConfig {
	cfg := DefaultDispatcherConfig()
	cfg.RetryInitial = time.Millisecond
	cfg.RetryMax = 2 * time.Millisecond
	cfg.RateLimit = 0
	return cfg
}

func TestNewRequest(t *testing.T) {
	req := sampleRequest()
	require.NotEmpty(t, req.ID)
	require.Equal(t, messages.NotificationRequestedType, req.Type)
	require.Equal(t, "https://ship.example/track/TRK1", req.TrackURL)
	require.Equal(t, 2, req.Checkpoint.Position)
	require.Equal(t, uint64(7), req.SubscriberID)
	require.Equal(t, "a@x.io", req.Contact)
}

func TestRender(t *testing.T) {
	req := sampleRequest()
	req.Title = `<b>Laptop</b>`

	msg, err := Render(req)
	require.NoError(t, err)
	require.Equal(t, "Update: <b>Laptop</b> (TRK1) — Hub", msg.Subject)
	require.Equal(t, models.ChannelEmail, msg.Channel)
	require.Equal(t, "a@x.io", msg.To)

	require.Contains(t, msg.Text, "Hub: sorted")
	require.Contains(t, msg.Text, "Time: 2025-03-01T12:30:00Z")
	require.Contains(t, msg.Text, "Coords: 6.5244, 3.3792")
	require.Contains(t, msg.Text, "https://ship.example/track/TRK1")

	require.Contains(t, msg.HTML, "&lt;b&gt;Laptop&lt;/b&gt;")
	require.Contains(t, msg.HTML, `href="https://ship.example/track/TRK1"`)
}

func TestRender_NoNote(t *testing.T) {
	req := sampleRequest()
	req.Checkpoint.Note = nil
	msg, err := Render(req)
	require.NoError(t, err)
	require.Contains(t, msg.Text, "\nHub\n")
}

func TestDispatch_RetriesTransientErrors(t *testing.T) {
	s := &fakeSender{errs: []error{errors.New("timeout"), errors.New("timeout"), nil}}
	d := NewDispatcher(s, nil, fastConfig())

	require.NoError(t, d.Dispatch(context.Background(), sampleRequest()))
	require.Equal(t, 3, s.Calls())
	require.Len(t, s.sent, 1)

	st := d.Stats()
	require.EqualValues(t, 1, st.TotalSent)
	require.EqualValues(t, 0, st.TotalFailed)
}

func TestDispatch_PermanentErrorIsNotRetried(t *testing.T) {
	s := &fakeSender{errs: []error{&sender.Permanent{Err: errors.New("550 no such user")}}}
	d := NewDispatcher(s, nil, fastConfig())

	err := d.Dispatch(context.Background(), sampleRequest())
	require.Error(t, err)
	require.True(t, sender.IsPermanent(err))
	require.Equal(t, 1, s.Calls())
	require.EqualValues(t, 1, d.Stats().TotalFailed)
	require.Contains(t, d.Stats().LastError, "550")
}

func TestDispatch_GivesUpAfterMaxRetries(t *testing.T) {
	s := &fakeSender{errs: []error{errors.New("down")}}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	d := NewDispatcher(s, nil, cfg)

	require.Error(t, d.Dispatch(context.Background(), sampleRequest()))
	require.Equal(t, 3, s.Calls())
}

func TestDispatch_BreakerOpensPerChannel(t *testing.T) {
	s := &fakeSender{errs: []error{errors.New("down")}}
	cfg := fastConfig()
	cfg.MaxRetries = 0
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	d := NewDispatcher(s, nil, cfg)
	ctx := context.Background()

	require.Error(t, d.Dispatch(ctx, sampleRequest()))
	require.Error(t, d.Dispatch(ctx, sampleRequest()))
	err := d.Dispatch(ctx, sampleRequest())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, 2, s.Calls())
	require.Equal(t, "open", d.Stats().Breakers[models.ChannelEmail])

	// SMS идёт через свой breaker
	sms := sampleRequest()
	sms.Channel = models.ChannelSMS
	sms.Contact = "+2348012345678"
	require.Error(t, d.Dispatch(ctx, sms))
	require.Equal(t, 3, s.Calls())
}

func TestDispatch_PermanentErrorsDoNotTripBreaker(t *testing.T) {
	s := &fakeSender{errs: []error{&sender.Permanent{Err: errors.New("bad address")}}}
	cfg := fastConfig()
	cfg.BreakerFailures = 1
	d := NewDispatcher(s, nil, cfg)

	for i := 0; i < 3; i++ {
		require.Error(t, d.Dispatch(context.Background(), sampleRequest()))
	}
	require.Equal(t, 3, s.Calls())
	require.Equal(t, "closed", d.Stats().Breakers[models.ChannelEmail])
}

func TestDispatch_RateLimitPerContact(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := rediscache.NewRateLimiter(rediscache.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rl.Close() })

	s := &fakeSender{}
	cfg := fastConfig()
	cfg.RateLimit = 2
	cfg.RateWindow = time.Minute
	d := NewDispatcher(s, rl, cfg)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, sampleRequest()))
	require.NoError(t, d.Dispatch(ctx, sampleRequest()))
	require.ErrorIs(t, d.Dispatch(ctx, sampleRequest()), ErrRateLimited)

	other := sampleRequest()
	other.Contact = "b@x.io"
	require.NoError(t, d.Dispatch(ctx, other))

	require.Equal(t, 3, s.Calls())
	require.EqualValues(t, 1, d.Stats().TotalRateLimited)

	mr.FastForward(2 * time.Minute)
	require.NoError(t, d.Dispatch(ctx, sampleRequest()))
}

func TestDispatch_InvalidRequest(t *testing.T) {
	s := &fakeSender{}
	d := NewDispatcher(s, nil, fastConfig())

	req := sampleRequest()
	req.Contact = ""
	require.ErrorIs(t, d.Dispatch(context.Background(), req), ErrInvalid)
	require.Equal(t, 0, s.Calls())
	require.EqualValues(t, 1, d.Stats().TotalInvalid)
}

func TestHandler_SkipsBadMessagesAndDispatches(t *testing.T) {
	s := &fakeSender{}
	d := NewDispatcher(s, nil, fastConfig())
	h := d.Handler(context.Background())

	require.NoError(t, h([]byte("TRK1"), []byte("{not json")))
	require.NoError(t, h([]byte("TRK1"), []byte(`{"type":"something.else"}`)))

	b, err := json.Marshal(sampleRequest())
	require.NoError(t, err)
	require.NoError(t, h([]byte("TRK1"), b))

	// ошибка доставки не останавливает консьюмера
	s.errs = []error{&sender.Permanent{Err: errors.New("rejected")}}
	require.NoError(t, h([]byte("TRK1"), b))

	st := d.Stats()
	require.EqualValues(t, 2, st.TotalInvalid)
	require.EqualValues(t, 1, st.TotalSent)
	require.EqualValues(t, 1, st.TotalFailed)
}

func TestHandler_CanceledContextIsNotCommitted(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, nil, fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := json.Marshal(sampleRequest())
	require.NoError(t, err)
	require.ErrorIs(t, d.Handler(ctx)([]byte("TRK1"), b), context.Canceled)
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	topics   []string
	keys     []string
	payloads []messages.NotificationRequested
}

func (f *fakePublisher) PublishJSON(ctx context.Context, topic, key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, v.(messages.NotificationRequested))
	return nil
}

func sampleEntities() (*models.Shipment, *models.Checkpoint, *models.Subscriber) {
	sh := &models.Shipment{TrackingNumber: "TRK1", Title: "Laptop", Status: models.ShipmentStatusInTransit}
	cp := &models.Checkpoint{Position: 1, Label: "Pickup", Location: models.Coordinates{Lat: 1, Lng: 2}, Timestamp: cpTime}
	sub := &models.Subscriber{ID: 3, Channel: models.ChannelSMS, Contact: "+2348012345678"}
	return sh, cp, sub
}

func TestKafkaNotifier_PublishesWithRetry(t *testing.T) {
	pub := &fakePublisher{failures: 2}
	m := metrics.New("test")
	n := NewKafka(pub, "shipment.notifications", "http://localhost:8080").WithRetry(5, time.Millisecond).WithMetrics(m)

	sh, cp, sub := sampleEntities()
	n.Notify(context.Background(), sh, cp, sub)
	n.Close()

	require.Equal(t, 3, pub.calls)
	require.Equal(t, []string{"shipment.notifications"}, pub.topics)
	require.Equal(t, []string{"TRK1"}, pub.keys)
	got := pub.payloads[0]
	require.Equal(t, "http://localhost:8080/track/TRK1", got.TrackURL)
	require.Equal(t, "Pickup", got.Checkpoint.Label)
	require.Equal(t, models.ChannelSMS, got.Channel)
	// одна публикация, сколько бы попыток ни понадобилось
	require.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsQueued.WithLabelValues(models.ChannelSMS)))
}

func TestKafkaNotifier_GivesUpAndDropsAfterClose(t *testing.T) {
	pub := &fakePublisher{failures: 100}
	m := metrics.New("test")
	n := NewKafka(pub, "t", "http://x").WithRetry(1, time.Millisecond).WithMetrics(m)

	sh, cp, sub := sampleEntities()
	n.Notify(context.Background(), sh, cp, sub)
	n.Close()
	require.Equal(t, 2, pub.calls)
	require.Zero(t, testutil.ToFloat64(m.NotificationsQueued.WithLabelValues(models.ChannelSMS)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFailed.WithLabelValues(models.ChannelSMS, "publish")))

	n.Notify(context.Background(), sh, cp, sub)
	n.Close()
	require.Equal(t, 2, pub.calls)
}

func TestInlineNotifier_DispatchesInBackground(t *testing.T) {
	s := &fakeSender{}
	m := metrics.New("test")
	d := NewDispatcher(s, nil, fastConfig())
	n := NewInline(d, "http://x", 2).WithMetrics(m)

	sh, cp, sub := sampleEntities()
	for i := 0; i < 5; i++ {
		n.Notify(context.Background(), sh, cp, sub)
	}
	n.Close()

	require.Equal(t, 5, s.Calls())
	require.Equal(t, "+2348012345678", s.sent[0].To)
	require.Equal(t, "Update: Laptop (TRK1) — Pickup", s.sent[0].Subject)
	require.EqualValues(t, 5, d.Stats().TotalSent)
	require.Equal(t, 5.0, testutil.ToFloat64(m.NotificationsQueued.WithLabelValues(models.ChannelSMS)))
}
