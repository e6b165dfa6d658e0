package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/cache"
	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

var (
	ErrRateLimited = errors.New("notification rate limit exceeded")
	ErrInvalid     = errors.New("invalid notification request")
)

type Sender interface {
	Send(ctx context.Context, msg sender.Message) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type DispatcherConfig struct {
	MaxRetries   uint64
	RetryInitial time.Duration
	RetryMax     time.Duration

	// RateLimit сообщений на один контакт за RateWindow; 0 означает без ограничения.
	RateLimit  int64
	RateWindow time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxRetries:      3,
		RetryInitial:    500 * time.Millisecond,
		RetryMax:        10 * time.Second,
		RateLimit:       20,
		RateWindow:      time.Hour,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Dispatcher доставляет NotificationRequested до подписчика.
type Dispatcher struct {
	sender  Sender
	rl      RateLimiter
	cfg     DispatcherConfig
	metrics *metrics.Metrics

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	startedAtUnixNano int64
	totalReceived     atomic.Int64
	totalSent         atomic.Int64
	totalFailed       atomic.Int64
	totalRateLimited  atomic.Int64
	totalInvalid      atomic.Int64
	inFlight          atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func NewDispatcher(s Sender, rl RateLimiter, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	return &Dispatcher{
		sender:            s,
		rl:                rl,
		cfg:               cfg,
		breakers:          make(map[string]*gobreaker.CircuitBreaker),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch рендерит и отправляет одно уведомление.
// Ошибка возвращается только для информации: повторы уже выполнены внутри.
func (d *Dispatcher) Dispatch(ctx context.Context, req messages.NotificationRequested) error {
	d.totalReceived.Add(1)
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	if req.Channel == "" || req.Contact == "" || req.TrackingNumber == "" {
		d.totalInvalid.Add(1)
		return d.fail(req, "invalid", ErrInvalid)
	}

	if d.rl != nil && d.cfg.RateLimit > 0 {
		allowed, n, err := d.rl.Allow(ctx, cache.NotifyRateKey(req.Channel, req.Contact), d.cfg.RateLimit, d.cfg.RateWindow)
		switch {
		case err != nil:
			// Redis недоступен, не блокируем доставку.
			slog.Warn("notification rate limit check failed", "channel", req.Channel, "error", err.Error())
		case !allowed:
			d.totalRateLimited.Add(1)
			slog.Warn("notification rate limited", "channel", req.Channel, "tracking", req.TrackingNumber, "count", n)
			return d.fail(req, "rate_limited", ErrRateLimited)
		}
	}

	msg, err := Render(req)
	if err != nil {
		return d.fail(req, "render", err)
	}

	cb := d.breaker(req.Channel)
	op := func() error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, d.sender.Send(ctx, msg)
		})
		if err == nil {
			return nil
		}
		if sender.IsPermanent(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.RetryInitial
	eb.MaxInterval = d.cfg.RetryMax
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, d.cfg.MaxRetries), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		slog.Warn("notification send retry", "channel", req.Channel, "tracking", req.TrackingNumber, "wait", wait.String(), "error", err.Error())
	})
	if err != nil {
		return d.fail(req, failureReason(err), err)
	}

	d.totalSent.Add(1)
	d.metrics.NotificationSent(req.Channel)
	slog.Info("notification sent", "channel", req.Channel, "tracking", req.TrackingNumber, "position", req.Checkpoint.Position)
	return nil
}

// Handler: обработчик для kafka.Consumer. Ошибки доставки не возвращаются,
// иначе одно плохое сообщение остановит чтение топика.
func (d *Dispatcher) Handler(ctx context.Context) func(key, value []byte) error {
	return func(key, value []byte) error {
		var req messages.NotificationRequested
		if err := json.Unmarshal(value, &req); err != nil {
			d.totalInvalid.Add(1)
			d.recordError(err)
			slog.Error("decode notification", "key", string(key), "error", err.Error())
			return nil
		}
		if req.Type != "" && req.Type != messages.NotificationRequestedType {
			d.totalInvalid.Add(1)
			slog.Warn("skip notification of unknown type", "type", req.Type, "id", req.ID)
			return nil
		}
		_ = d.Dispatch(ctx, req)
		// при остановке не коммитим: сообщение перечитается после рестарта
		return ctx.Err()
	}
}

type DispatcherStats struct {
	StartedAt        time.Time         `json:"startedAt"`
	TotalReceived    int64             `json:"totalReceived"`
	TotalSent        int64             `json:"totalSent"`
	TotalFailed      int64             `json:"totalFailed"`
	TotalRateLimited int64             `json:"totalRateLimited"`
	TotalInvalid     int64             `json:"totalInvalid"`
	InFlight         int64             `json:"inFlight"`
	Breakers         map[string]string `json:"breakers,omitempty"`
	LastError        string            `json:"lastError,omitempty"`
}

func (d *Dispatcher) Stats() DispatcherStats {
	st := DispatcherStats{
		StartedAt:        time.Unix(0, d.startedAtUnixNano).UTC(),
		TotalReceived:    d.totalReceived.Load(),
		TotalSent:        d.totalSent.Load(),
		TotalFailed:      d.totalFailed.Load(),
		TotalRateLimited: d.totalRateLimited.Load(),
		TotalInvalid:     d.totalInvalid.Load(),
		InFlight:         d.inFlight.Load(),
	}
	d.breakersMu.Lock()
	if len(d.breakers) > 0 {
		st.Breakers = make(map[string]string, len(d.breakers))
		for ch, cb := range d.breakers {
			st.Breakers[ch] = cb.State().String()
		}
	}
	d.breakersMu.Unlock()
	d.lastErrorMu.Lock()
	st.LastError = d.lastError
	d.lastErrorMu.Unlock()
	return st
}

func (d *Dispatcher) breaker(channel string) *gobreaker.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()

	if cb, ok := d.breakers[channel]; ok {
		return cb
	}
	failures := d.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify_" + channel,
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// неверный адрес получателя не проблема провайдера
		IsSuccessful: func(err error) bool {
			return err == nil || sender.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			d.metrics.BreakerState(name, breakerGauge(to))
		},
	})
	d.breakers[channel] = cb
	return cb
}

func (d *Dispatcher) fail(req messages.NotificationRequested, reason string, err error) error {
	d.totalFailed.Add(1)
	d.recordError(err)
	d.metrics.NotificationFailed(req.Channel, reason)
	slog.Error("notification failed", "channel", req.Channel, "tracking", req.TrackingNumber, "reason", reason, "error", err.Error())
	return err
}

func (d *Dispatcher) recordError(err error) {
	d.lastErrorMu.Lock()
	d.lastError = err.Error()
	d.lastErrorMu.Unlock()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, sender.ErrUnsupportedChannel):
		return "unsupported_channel"
	case sender.IsPermanent(err):
		return "permanent"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "exhausted"
	}
}

// 0=closed, 1=half-open, 2=open
func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
