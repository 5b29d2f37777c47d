package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
	Dispatch  DispatchConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Seed      SeedConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type DispatchConfig struct {
	DedupWindow     time.Duration
	ResponseTimeout time.Duration
	SweepInterval   time.Duration
}

// RedisConfig enables the Redis stream notifier when Addr is set.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	AlertStream     string
	ExhaustedStream string
	MaxLen          int64
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MQTTConfig enables signal ingestion from IoT buttons and sensors when
// Broker is set.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
}

func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type SeedConfig struct {
	File string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "localhost"),
			Port:        getEnvInt("SERVER_PORT", 8080),
			CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/guard-dispatch.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Dispatch: DispatchConfig{
			DedupWindow:     getEnvDuration("DEDUP_WINDOW", 5*time.Minute),
			ResponseTimeout: getEnvDuration("RESPONSE_TIMEOUT", 45*time.Second),
			SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", ""),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			AlertStream:     getEnv("REDIS_ALERT_STREAM", "dispatch:alerts"),
			ExhaustedStream: getEnv("REDIS_EXHAUSTED_STREAM", "dispatch:exhausted"),
			MaxLen:          int64(getEnvInt("REDIS_STREAM_MAXLEN", 10000)),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "guard-dispatch"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			Topic:    getEnv("MQTT_TOPIC", "beacons/+/signals"),
			QoS:      getEnvInt("MQTT_QOS", 1),
		},
		Seed: SeedConfig{
			File: getEnv("SEED_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Dispatch.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	if c.Dispatch.ResponseTimeout < time.Second {
		return fmt.Errorf("response timeout must be at least 1 second")
	}
	if c.Dispatch.SweepInterval < 100*time.Millisecond {
		return fmt.Errorf("sweep interval must be at least 100ms")
	}
	if c.Dispatch.SweepInterval > c.Dispatch.ResponseTimeout {
		return fmt.Errorf("sweep interval %s exceeds response timeout %s", c.Dispatch.SweepInterval, c.Dispatch.ResponseTimeout)
	}

	if c.MQTT.Enabled() {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid MQTT QoS: %d", c.MQTT.QoS)
		}
		if strings.Count(c.MQTT.Topic, "+") != 1 {
			return fmt.Errorf("MQTT topic %q must have exactly one '+' for the beacon id", c.MQTT.Topic)
		}
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("invalid rate limit: %.2f rps, burst %d", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
