package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	AdminAddress  string
	JWTSigningKey string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds connection settings for the ledger-backed stores.
// An empty URL selects the in-memory stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig holds connection settings for the shared blob store.
// An empty URL selects the in-memory blob store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit event sink. Empty brokers disable
// the Kafka sink; audit events then stay in the local store only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("MEDLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cfg := Server{
		Addr:          addr,
		AdminAddress:  os.Getenv("MEDLEDGER_ADMIN_ADDRESS"),
		JWTSigningKey: jwtSigningKey,
		Postgres: PostgresConfig{
			URL: os.Getenv("MEDLEDGER_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("MEDLEDGER_REDIS_URL"),
			PoolSize:     envInt("MEDLEDGER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MEDLEDGER_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	if brokers := os.Getenv("MEDLEDGER_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: splitNonEmpty(brokers),
			Topic:   envStr("MEDLEDGER_KAFKA_AUDIT_TOPIC", "medledger.audit"),
		}
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if part := csv[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
