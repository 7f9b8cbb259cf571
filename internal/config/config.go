package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel       string
	HTTPConfig     HTTPConfig
	PostgresConfig PostgresConfig
	KafkaConfig    KafkaConfig
	MetricsConfig  MetricsConfig
	TracingConfig  TracingConfig
	TelegramConfig TelegramConfig
}

type HTTPConfig struct {
	Addr           string
	RequestTimeout time.Duration
}

type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	InMemory       bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers           []string
	ExportTopic       string
	GroupID           string
	NumPartitions     int
	ReplicationFactor int
}

type MetricsConfig struct {
	Addr string
}

type TracingConfig struct {
	Endpoint string
}

type TelegramConfig struct {
	TokenExportBot string
}

// DSN returns the connection string in the form accepted by both lib/pq and golang-migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.DBName,
		p.SSLMode,
	)
}

// LoadConfig reads an optional .env file and resolves settings from the environment.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments pass plain environment variables.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	config := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPConfig: HTTPConfig{
			Addr:           v.GetString("HTTP_ADDR"),
			RequestTimeout: v.GetDuration("HTTP_REQUEST_TIMEOUT"),
		},
		PostgresConfig: PostgresConfig{
			Host:           v.GetString("POSTGRES_HOST"),
			Port:           v.GetString("POSTGRES_PORT"),
			User:           v.GetString("POSTGRES_USER"),
			Password:       v.GetString("POSTGRES_PASSWORD"),
			DBName:         v.GetString("POSTGRES_DB"),
			SSLMode:        v.GetString("POSTGRES_SSLMODE"),
			InMemory:       v.GetBool("STORAGE_IN_MEMORY"),
			MigrationsPath: v.GetString("MIGRATIONS_PATH"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:           splitList(v.GetString("KAFKA_BROKERS")),
			ExportTopic:       v.GetString("KAFKA_EXPORT_TOPIC"),
			GroupID:           v.GetString("KAFKA_GROUP_ID"),
			NumPartitions:     v.GetInt("KAFKA_PARTITIONS"),
			ReplicationFactor: v.GetInt("KAFKA_REPLICATION_FACTOR"),
		},
		MetricsConfig: MetricsConfig{
			Addr: v.GetString("METRICS_ADDR"),
		},
		TracingConfig: TracingConfig{
			Endpoint: v.GetString("TRACING_ENDPOINT"),
		},
		TelegramConfig: TelegramConfig{
			TokenExportBot: v.GetString("TOKEN_EXPORT_BOT"),
		},
	}

	if len(config.KafkaConfig.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS is required")
	}

	if config.KafkaConfig.ExportTopic == "" {
		return nil, fmt.Errorf("KAFKA_EXPORT_TOPIC is required")
	}

	if config.HTTPConfig.RequestTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_REQUEST_TIMEOUT must be positive, got %s", config.HTTPConfig.RequestTimeout)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("HTTP_REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "user")
	v.SetDefault("POSTGRES_PASSWORD", "password")
	v.SetDefault("POSTGRES_DB", "notes")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("STORAGE_IN_MEMORY", false)
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_EXPORT_TOPIC", "export-notes")
	v.SetDefault("KAFKA_GROUP_ID", "note-exporters")
	v.SetDefault("KAFKA_PARTITIONS", 1)
	v.SetDefault("KAFKA_REPLICATION_FACTOR", 1)
	v.SetDefault("METRICS_ADDR", ":8080")
	v.SetDefault("TRACING_ENDPOINT", "")
	v.SetDefault("TOKEN_EXPORT_BOT", "")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
