package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SHIPTRACK_SMTP_PASSWORD", "s3cret")

	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  notifications_topic_name: "shipment.notifications"
  checkpoints_topic_name: "shipment.checkpoints"
redis:
  host: "localhost"
  port: 6379
shiptrack:
  http_addr: ":8080"
  kafka_consumer_group: "ship-api"
  ingest_enabled: true
  current_cache_ttl_seconds: 600
  average_speed_kmh: 65.5
  app_base_url: "https://track.example"
geocoder:
  mode: "ors"
  base_url: "https://api.openrouteservice.org"
notify:
  mode: "inline"
  max_retries: 2
  smtp:
    host: "smtp.example"
    port: 587
    password: "${SHIPTRACK_SMTP_PASSWORD}"
    use_tls: true
  twilio:
    account_sid: "AC1"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "shipment.notifications", cfg.Kafka.NotificationsTopicName)
	require.Equal(t, "shipment.checkpoints", cfg.Kafka.CheckpointsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.ShipTrack.HTTPAddr)
	require.True(t, cfg.ShipTrack.IngestEnabled)
	require.Equal(t, 65.5, cfg.ShipTrack.AverageSpeedKMH)
	require.Equal(t, "ors", cfg.Geocoder.Mode)
	require.Equal(t, "inline", cfg.Notify.Mode)
	require.Equal(t, 2, cfg.Notify.MaxRetries)
	require.Equal(t, "s3cret", cfg.Notify.SMTP.Password)
	require.True(t, cfg.Notify.SMTP.UseTLS)
	require.Equal(t, "AC1", cfg.Notify.Twilio.AccountSID)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
