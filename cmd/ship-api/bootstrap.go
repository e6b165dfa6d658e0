package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipTrack/config"
	shipmentsapi "github.com/BearBump/ShipTrack/internal/api/shipments_api"
	"github.com/BearBump/ShipTrack/internal/bootstrap"
	"github.com/BearBump/ShipTrack/internal/broker/kafka"
	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/services/notifier"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/BearBump/ShipTrack/internal/services/simulator"
)

type closableNotifier interface {
	shipments.Notifier
	Close()
}

type shipAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    shipAPIOpts
	deps    shipAPIDeps
	closers []func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	cacheTTL := time.Duration(cfg.ShipTrack.CurrentCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	tick := time.Duration(cfg.ShipTrack.SimulationTickMillis) * time.Millisecond
	if tick <= 0 {
		tick = 3 * time.Second
	}
	baseURL := cfg.ShipTrack.AppBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &shipAPIApp{ctx: ctx, cancel: cancel}

	m := metrics.New("ship-api")

	st, err := bootstrap.OpenPostgres(ctx, bootstrap.PostgresConnString(cfg.Database), 60*time.Second)
	if err != nil {
		panic(err)
	}
	app.closers = append(app.closers, st.Close)

	rc := rediscache.New(bootstrap.RedisOptions(cfg.Redis))
	app.closers = append(app.closers, func() { _ = rc.Close() })

	geo := bootstrap.NewGeocoder(cfg.Geocoder, rc)
	brokers := bootstrap.KafkaBrokers(cfg.Kafka)

	var n closableNotifier
	switch cfg.Notify.Mode {
	case "inline":
		rl := rediscache.NewRateLimiter(bootstrap.RedisOptions(cfg.Redis))
		app.closers = append(app.closers, func() { _ = rl.Close() })
		d := notifier.NewDispatcher(bootstrap.NewSenderRouter(cfg.Notify, slog.Default()), rl, bootstrap.DispatcherConfig(cfg.Notify)).
			WithMetrics(m)
		n = notifier.NewInline(d, baseURL, cfg.Notify.InlineConcurrency).WithMetrics(m)
	default:
		producer := kafka.NewProducer(brokers)
		app.closers = append(app.closers, func() { _ = producer.Close() })
		n = notifier.NewKafka(producer, bootstrap.NotificationsTopic(cfg.Kafka), baseURL).WithMetrics(m)
	}
	// уведомления в полёте дожидаемся до закрытия producer/redis
	app.closers = append(app.closers, n.Close)

	svc := shipments.New(st, geo, n, rc, cacheTTL).
		WithAverageSpeed(cfg.ShipTrack.AverageSpeedKMH).
		WithMetrics(m)
	sim := simulator.New(st, svc).WithTick(tick).WithMetrics(m)
	app.closers = append(app.closers, sim.Close)

	app.opts = shipAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		ingestTopic:   bootstrap.CheckpointsTopic(cfg.Kafka),
		consumerGroup: consumerGroup,
	}
	app.deps = shipAPIDeps{
		api:     shipmentsapi.New(svc, sim).WithMetrics(m),
		ingest:  svc,
		sim:     sim,
		metrics: m,
		ready:   st.Ping,
	}

	if cfg.ShipTrack.IngestEnabled {
		consumer := kafka.NewConsumer(brokers, app.opts.ingestTopic, consumerGroup)
		app.closers = append(app.closers, func() { _ = consumer.Close() })
		app.deps.consumer = consumer
	}
	return app
}

// Close закрывает ресурсы в обратном порядке создания.
func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.deps)
}
