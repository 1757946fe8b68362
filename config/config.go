package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	JWT       JWTConfig
	Engine    EngineConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	HTTPPort string
	GRPCPort string
	// Empty means every origin is accepted on the websocket endpoint.
	AllowedOrigins []string
}

type DBConfig struct {
	Driver   string // "postgres" or "memory"
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Channel  string
}

type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Queue    string
}

type JWTConfig struct {
	Secret string
}

type EngineConfig struct {
	SignalBufferSize     int
	SubscriberBufferSize int
	JoinCodeLength       int
	FingerprintSecret    string
}

type LogConfig struct {
	Mode string
	File string
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			HTTPPort:       getEnv("HTTP_PORT", "8080"),
			GRPCPort:       getEnv("GRPC_PORT", "50052"),
			AllowedOrigins: getEnvAsList("WS_ALLOWED_ORIGINS"),
		},
		DB: DBConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "classroom"),
			Password: getEnv("DB_PASSWORD", "classroom_password"),
			DBName:   getEnv("DB_NAME", "classroom"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "redis"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_SIGNAL_CHANNEL", "session_signals"),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  getEnvAsBool("RABBITMQ_ENABLED", true),
			Host:     getEnv("RABBITMQ_HOST", "rabbitmq"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			Queue:    getEnv("RABBITMQ_SESSION_QUEUE", "session_events"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "test-secret-key"),
		},
		Engine: EngineConfig{
			SignalBufferSize:     getEnvAsInt("SIGNAL_BUFFER_SIZE", 50),
			SubscriberBufferSize: getEnvAsInt("SUBSCRIBER_BUFFER_SIZE", 64),
			JoinCodeLength:       getEnvAsInt("JOIN_CODE_LENGTH", 6),
			FingerprintSecret:    getEnv("FINGERPRINT_SECRET", "fingerprint-secret"),
		},
		Log: LogConfig{
			Mode: getEnv("APP_ENV", "development"),
			File: getEnv("LOG_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "session-service"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
