package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// PostgresURL selects the postgres store when set; empty runs the
	// in-memory store (dev and tests).
	PostgresURL string

	// RedisURL enables the schema read-through cache when set.
	RedisURL       string
	SchemaCacheTTL time.Duration

	// KafkaBrokers enables the kafka event publisher when non-empty;
	// otherwise events go to the in-process sink.
	KafkaBrokers []string
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("ATTESTRY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cacheTTL := 15 * time.Minute
	if raw := os.Getenv("SCHEMA_CACHE_TTL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cacheTTL = parsed
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:           addr,
		JWTSigningKey:  jwtSigningKey,
		JWTIssuer:      "attestry",
		JWTAudience:    "attestry-registry",
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		SchemaCacheTTL: cacheTTL,
		KafkaBrokers:   brokers,
	}
}
