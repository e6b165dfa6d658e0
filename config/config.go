package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ShipTrack ShipTrackConfig `yaml:"shiptrack"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
	CheckpointsTopicName   string `yaml:"checkpoints_topic_name"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ShipTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	// IngestEnabled включает чтение внешних чекпоинтов из checkpoints_topic_name.
	IngestEnabled bool `yaml:"ingest_enabled"`

	CurrentCacheTTLSeconds int     `yaml:"current_cache_ttl_seconds"`
	AverageSpeedKMH        float64 `yaml:"average_speed_kmh"`
	SimulationTickMillis   int     `yaml:"simulation_tick_millis"`

	// AppBaseURL: откуда строятся ссылки /track/{tracking} в уведомлениях.
	AppBaseURL string `yaml:"app_base_url"`

	WorkerHTTPAddr      string `yaml:"worker_http_addr"`
	WorkerConsumerGroup string `yaml:"worker_consumer_group"`
}

type GeocoderConfig struct {
	Mode            string `yaml:"mode"` // "ors" | "fake"
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type NotifyConfig struct {
	Mode              string `yaml:"mode"` // "kafka" | "inline"
	InlineConcurrency int    `yaml:"inline_concurrency"`

	MaxRetries         int `yaml:"max_retries"`
	RetryInitialMillis int `yaml:"retry_initial_millis"`

	RateLimitPerContact int `yaml:"rate_limit_per_contact"`
	RateWindowSeconds   int `yaml:"rate_window_seconds"`

	BreakerFailures       int `yaml:"breaker_failures"`
	BreakerTimeoutSeconds int `yaml:"breaker_timeout_seconds"`

	SMTP   SMTPConfig   `yaml:"smtp"`
	Twilio TwilioConfig `yaml:"twilio"`
}

type SMTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	From           string `yaml:"from"`
	UseTLS         bool   `yaml:"use_tls"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TwilioConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoadConfig читает YAML; ${VAR} подставляются из окружения (секреты держим в .env).
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
