package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/cenkalti/backoff/v4"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// KafkaNotifier кладёт запросы на уведомление в топик; доставкой занимается notify-worker.
type KafkaNotifier struct {
	pub     Publisher
	topic   string
	baseURL string
	metrics *metrics.Metrics
	now     func() time.Time

	maxRetries   uint64
	retryInitial time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewKafka(pub Publisher, topic, baseURL string) *KafkaNotifier {
	return &KafkaNotifier{
		pub:          pub,
		topic:        topic,
		baseURL:      baseURL,
		now:          func() time.Time { return time.Now().UTC() },
		maxRetries:   10,
		retryInitial: 150 * time.Millisecond,
	}
}

func (n *KafkaNotifier) WithRetry(maxRetries uint64, initial time.Duration) *KafkaNotifier {
	n.maxRetries = maxRetries
	if initial > 0 {
		n.retryInitial = initial
	}
	return n
}

func (n *KafkaNotifier) WithMetrics(m *metrics.Metrics) *KafkaNotifier {
	n.metrics = m
	return n
}

func (n *KafkaNotifier) WithClock(now func() time.Time) *KafkaNotifier {
	if now != nil {
		n.now = now
	}
	return n
}

func (n *KafkaNotifier) Notify(ctx context.Context, sh *models.Shipment, cp *models.Checkpoint, sub *models.Subscriber) {
	req := NewRequest(n.baseURL, sh, cp, sub, n.now())

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		slog.Warn("notifier closed, notification dropped", "tracking", req.TrackingNumber, "channel", req.Channel)
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = n.retryInitial
		eb.MaxElapsedTime = 0
		policy := backoff.WithContext(backoff.WithMaxRetries(eb, n.maxRetries), ctx)

		// Kafka может быть не готова сразу после старта docker compose.
		err := backoff.Retry(func() error {
			return n.pub.PublishJSON(ctx, n.topic, req.TrackingNumber, req)
		}, policy)
		if err != nil {
			n.metrics.NotificationFailed(req.Channel, "publish")
			slog.Error("publish notification", "tracking", req.TrackingNumber, "channel", req.Channel, "error", err.Error())
			return
		}
		n.metrics.NotificationQueued(req.Channel)
	}()
}

// Close дожидается публикаций, которые уже в полёте.
func (n *KafkaNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
