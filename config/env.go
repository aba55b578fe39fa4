package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort  string `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort  string `envconfig:"GRPC_PORT" default:"50051"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Redis     RedisConfig
	DB        DBConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	Watch     WatchConfig
	Telemetry TelemetryConfig
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"warehouse"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-me"`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"24h"`
	RateLimit string        `envconfig:"RATE_LIMIT" default:"100-M"`
}

type KafkaConfig struct {
	Enabled      bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers      string        `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	EmailTopic   string        `envconfig:"KAFKA_EMAIL_TOPIC" default:"email-events"`
	StockTopic   string        `envconfig:"KAFKA_STOCK_TOPIC" default:"stock-events"`
	WriteTimeout time.Duration `envconfig:"KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type WatchConfig struct {
	Interval        time.Duration `envconfig:"WATCH_INTERVAL" default:"1h"`
	Window          time.Duration `envconfig:"WATCH_WINDOW" default:"24h"`
	CleanupInterval time.Duration `envconfig:"VERIFICATION_CLEANUP_INTERVAL" default:"10m"`
	CodeTTL         time.Duration `envconfig:"VERIFICATION_CODE_TTL" default:"15m"`
}

type TelemetryConfig struct {
	Enabled     bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4318"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"warehouse-system"`
}

func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}
