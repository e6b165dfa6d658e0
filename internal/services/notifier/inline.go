package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
)

// InlineNotifier доставляет уведомления прямо из процесса API, без Kafka.
type InlineNotifier struct {
	d       *Dispatcher
	baseURL string
	metrics *metrics.Metrics
	now     func() time.Time

	sem chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewInline(d *Dispatcher, baseURL string, concurrency int) *InlineNotifier {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &InlineNotifier{
		d:       d,
		baseURL: baseURL,
		now:     func() time.Time { return time.Now().UTC() },
		sem:     make(chan struct{}, concurrency),
	}
}

func (n *InlineNotifier) WithMetrics(m *metrics.Metrics) *InlineNotifier {
	n.metrics = m
	return n
}

func (n *InlineNotifier) Notify(ctx context.Context, sh *models.Shipment, cp *models.Checkpoint, sub *models.Subscriber) {
	req := NewRequest(n.baseURL, sh, cp, sub, n.now())

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		slog.Warn("notifier closed, notification dropped", "tracking", req.TrackingNumber, "channel", req.Channel)
		return
	}
	n.metrics.NotificationQueued(req.Channel)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sem <- struct{}{}
		defer func() { <-n.sem }()
		_ = n.d.Dispatch(ctx, req)
	}()
}

func (n *InlineNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
