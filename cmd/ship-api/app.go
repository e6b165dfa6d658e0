package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	shipmentsapi "github.com/BearBump/ShipTrack/internal/api/shipments_api"
	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/services/simulator"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

type shipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	ingestTopic   string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type checkpointIngest interface {
	ApplyCheckpointReport(ctx context.Context, msg messages.CheckpointReported) error
}

type simulationRunner interface {
	Run(ctx context.Context) error
	Stats() simulator.Stats
}

type shipAPIDeps struct {
	api     *shipmentsapi.ShipmentsAPI
	ingest  checkpointIngest
	sim     simulationRunner
	metrics *metrics.Metrics
	ready   func(ctx context.Context) error

	// consumer == nil: ingest из Kafka выключен.
	consumer kafkaConsumer
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, deps shipAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gctx, lis, newRouter(opts, deps))
	})

	if deps.sim != nil {
		g.Go(func() error {
			if err := deps.sim.Run(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if deps.consumer != nil && deps.ingest != nil {
		g.Go(func() error {
			slog.Info("kafka consumer started", "topic", opts.ingestTopic, "group", opts.consumerGroup)
			if err := deps.consumer.Consume(gctx, ingestHandler(gctx, deps.ingest)); err != nil {
				// API продолжает работать без ingest
				slog.Error("checkpoint ingest stopped", "error", err.Error())
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newRouter(opts shipAPIOpts, deps shipAPIDeps) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.ready != nil {
			if err := deps.ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.sim == nil {
			_, _ = w.Write([]byte(`{"error":"simulator not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"simulator": deps.sim.Stats()})
	})
	r.Handle("/metrics", deps.metrics.Handler())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	if deps.api != nil {
		r.Mount("/", deps.api.Routes())
	}
	return r
}

var shutdownTimeout = 10 * time.Second

// runHTTPServer возвращается только после того, как Shutdown дождался активных
// хендлеров: их Notify должны успеть до закрытия notifier'а.
func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown", "error", err.Error())
		}
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	err := srv.Serve(lis)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	<-shutdownDone
	return nil
}

// ingestHandler применяет чекпоинты от внешних сканеров.
// Невалидные сообщения пропускаются, ошибки хранилища повторяются до успеха или остановки.
func ingestHandler(ctx context.Context, ingest checkpointIngest) func(key, value []byte) error {
	return func(key, value []byte) error {
		var msg messages.CheckpointReported
		if err := json.Unmarshal(value, &msg); err != nil {
			slog.Error("decode checkpoint report", "key", string(key), "error", err.Error())
			return nil
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		b.MaxInterval = 30 * time.Second

		return backoff.RetryNotify(func() error {
			err := ingest.ApplyCheckpointReport(ctx, msg)
			if err == nil || ctx.Err() != nil {
				return err
			}
			if !apperrors.IsRetryable(err) {
				slog.Warn("checkpoint report rejected", "tracking", msg.TrackingNumber, "error", err.Error())
				return nil
			}
			return err
		}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
			slog.Error("apply checkpoint report", "tracking", msg.TrackingNumber, "retry_in", d.String(), "error", err.Error())
		})
	}
}
