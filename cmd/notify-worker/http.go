package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/broker/kafka"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/services/notifier"
	"github.com/go-chi/chi/v5"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	dispatcher *notifier.Dispatcher
	consumer   func() kafka.ConsumerStats
	metrics    *metrics.Metrics
	cfg        *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.dispatcher == nil {
			_, _ = w.Write([]byte(`{"error":"dispatcher not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.dispatcher.Stats())
	})

	r.Get("/stats/consumer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.consumer == nil {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.consumer())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// секреты не отдаём: только режимы и лимиты
		n := opts.cfg.Notify
		out := map[string]any{
			"maxRetries":            n.MaxRetries,
			"retryInitialMillis":    n.RetryInitialMillis,
			"rateLimitPerContact":   n.RateLimitPerContact,
			"rateWindowSeconds":     n.RateWindowSeconds,
			"breakerFailures":       n.BreakerFailures,
			"breakerTimeoutSeconds": n.BreakerTimeoutSeconds,
			"smtpConfigured":        n.SMTP.Host != "",
			"twilioConfigured":      n.Twilio.AccountSID != "",
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Handle("/metrics", opts.metrics.Handler())

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
