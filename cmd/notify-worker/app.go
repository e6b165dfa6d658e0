package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/bootstrap"
	"github.com/BearBump/ShipTrack/internal/broker/kafka"
	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/services/notifier"
	"golang.org/x/sync/errgroup"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	io.Closer
}

type rateLimiter interface {
	notifier.RateLimiter
	io.Closer
}

type workerFactories struct {
	newConsumer    func(cfg *config.Config) kafkaConsumer
	newRateLimiter func(cfg *config.Config) rateLimiter
	newSender      func(cfg *config.Config) notifier.Sender
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newConsumer: func(cfg *config.Config) kafkaConsumer {
			group := cfg.ShipTrack.WorkerConsumerGroup
			if group == "" {
				group = "notify-worker"
			}
			return kafka.NewConsumer(bootstrap.KafkaBrokers(cfg.Kafka), bootstrap.NotificationsTopic(cfg.Kafka), group)
		},
		newRateLimiter: func(cfg *config.Config) rateLimiter {
			return rediscache.NewRateLimiter(bootstrap.RedisOptions(cfg.Redis))
		},
		newSender: func(cfg *config.Config) notifier.Sender {
			return bootstrap.NewSenderRouter(cfg.Notify, slog.Default())
		},
	}
}

type workerOpts struct {
	httpAddr string
	onListen func(httpAddr string)
}

func RunNotifyWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = cfg.ShipTrack.WorkerHTTPAddr
	}

	m := metrics.New("notify-worker")

	rl := f.newRateLimiter(cfg)
	defer func() { _ = rl.Close() }()

	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	d := notifier.NewDispatcher(f.newSender(cfg), rl, bootstrap.DispatcherConfig(cfg.Notify)).WithMetrics(m)

	var consumerStats func() kafka.ConsumerStats
	if cs, ok := consumer.(interface{ Stats() kafka.ConsumerStats }); ok {
		consumerStats = cs.Stats
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("notification consumer started", "topic", bootstrap.NotificationsTopic(cfg.Kafka))
		return consumer.Consume(gctx, d.Handler(gctx))
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:   opts.httpAddr,
			onListen:   opts.onListen,
			dispatcher: d,
			consumer:   consumerStats,
			metrics:    m,
			cfg:        cfg,
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
