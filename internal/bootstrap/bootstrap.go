// Package bootstrap собирает зависимости из config для cmd/ship-api и cmd/notify-worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/cache"
	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/integrations/geocoder"
	"github.com/BearBump/ShipTrack/internal/integrations/geocoder/fake"
	"github.com/BearBump/ShipTrack/internal/integrations/geocoder/orshttp"
	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/BearBump/ShipTrack/internal/integrations/sender/logsender"
	"github.com/BearBump/ShipTrack/internal/integrations/sender/smtpmail"
	"github.com/BearBump/ShipTrack/internal/integrations/sender/twiliosms"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/notifier"
	"github.com/BearBump/ShipTrack/internal/storage/pgshipments"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultNotificationsTopic = "shipment.notifications"
	DefaultCheckpointsTopic   = "shipment.checkpoints"
)

func PostgresConnString(c config.DatabaseConfig) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

// OpenPostgres ждёт, пока база поднимется (docker compose стартует сервисы параллельно).
func OpenPostgres(ctx context.Context, connString string, wait time.Duration) (*pgshipments.Storage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = wait

	var st *pgshipments.Storage
	err := backoff.RetryNotify(func() error {
		s, err := pgshipments.New(connString)
		if err != nil {
			return err
		}
		st = s
		return nil
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		slog.Warn("postgres is not ready", "retry_in", d.String(), "error", err.Error())
	})
	if err != nil {
		return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, err)
	}
	return st, nil
}

func RedisOptions(c config.RedisConfig) rediscache.Options {
	return rediscache.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
	}
}

func KafkaBrokers(c config.KafkaConfig) []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

func NotificationsTopic(c config.KafkaConfig) string {
	if c.NotificationsTopicName == "" {
		return DefaultNotificationsTopic
	}
	return c.NotificationsTopicName
}

func CheckpointsTopic(c config.KafkaConfig) string {
	if c.CheckpointsTopicName == "" {
		return DefaultCheckpointsTopic
	}
	return c.CheckpointsTopicName
}

// NewGeocoder: "ors" означает openrouteservice, иначе детерминированный fake. Результаты кэшируются, если есть кэш.
func NewGeocoder(cfg config.GeocoderConfig, c cache.BytesCache) geocoder.Geocoder {
	var g geocoder.Geocoder
	switch cfg.Mode {
	case "ors":
		if cfg.APIKey == "" {
			slog.Warn("geocoder api_key is empty, ORS requests will be rejected")
		}
		g = orshttp.New(cfg.BaseURL, cfg.APIKey, seconds(cfg.TimeoutSeconds, 10*time.Second))
	default:
		g = fake.New()
	}
	if c == nil {
		return g
	}
	return geocoder.NewCached(g, c, seconds(cfg.CacheTTLSeconds, 24*time.Hour))
}

// NewSenderRouter: каналы без настроек уходят в лог (dev mode).
func NewSenderRouter(cfg config.NotifyConfig, log *slog.Logger) *sender.Router {
	dev := logsender.New(log)

	var email sender.Sender = dev
	if cfg.SMTP.Host != "" {
		email = smtpmail.New(smtpmail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			UseTLS:   cfg.SMTP.UseTLS,
			Timeout:  seconds(cfg.SMTP.TimeoutSeconds, 10*time.Second),
		})
	} else {
		slog.Warn("smtp is not configured, emails are logged only")
	}

	var sms sender.Sender = dev
	if cfg.Twilio.AccountSID != "" {
		sms = twiliosms.New(cfg.Twilio.BaseURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From,
			seconds(cfg.Twilio.TimeoutSeconds, 10*time.Second))
	} else {
		slog.Warn("twilio is not configured, sms are logged only")
	}

	return sender.NewRouter(map[string]sender.Sender{
		models.ChannelEmail: email,
		models.ChannelSMS:   sms,
	})
}

func DispatcherConfig(cfg config.NotifyConfig) notifier.DispatcherConfig {
	out := notifier.DefaultDispatcherConfig()
	if cfg.MaxRetries > 0 {
		out.MaxRetries = uint64(cfg.MaxRetries)
	}
	if cfg.RetryInitialMillis > 0 {
		out.RetryInitial = time.Duration(cfg.RetryInitialMillis) * time.Millisecond
	}
	if cfg.RateLimitPerContact > 0 {
		out.RateLimit = int64(cfg.RateLimitPerContact)
	}
	if cfg.RateWindowSeconds > 0 {
		out.RateWindow = time.Duration(cfg.RateWindowSeconds) * time.Second
	}
	if cfg.BreakerFailures > 0 {
		out.BreakerFailures = uint32(cfg.BreakerFailures)
	}
	if cfg.BreakerTimeoutSeconds > 0 {
		out.BreakerTimeout = time.Duration(cfg.BreakerTimeoutSeconds) * time.Second
	}
	return out
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
