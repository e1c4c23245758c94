package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lifecycle holds the workflow timings. It is read once at start and passed by
// value into the registry, matching, NDA and scheduler constructors.
type Lifecycle struct {
	ReviewTimeout    time.Duration
	AutoSaveInterval time.Duration
	ArchiveAfter     time.Duration
	MaxMessageLength int
	// NDAValidity of zero means signed NDAs never expire.
	NDAValidity   time.Duration
	SweepInterval time.Duration
}

// DefaultLifecycle mirrors the production defaults.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		ReviewTimeout:    7 * 24 * time.Hour,
		AutoSaveInterval: 5 * time.Minute,
		ArchiveAfter:     30 * 24 * time.Hour,
		MaxMessageLength: 2000,
		SweepInterval:    time.Minute,
	}
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// ReadTimeout bounds a whole request including document uploads.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Database configures the postgres store. An empty URL selects the in-memory store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// RedisConfig configures the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit relay and notification topics. No brokers disables both.
type Kafka struct {
	Brokers           []string
	AuditTopic        string
	NotificationTopic string
	RelayInterval     time.Duration
	RelayBatch        int
}

// S3 configures the document bucket. An empty bucket selects in-memory documents.
type S3 struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// RateLimit bounds writes per caller. A zero limit disables throttling.
type RateLimit struct {
	WritesPerWindow int
	Window          time.Duration
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

type Config struct {
	Server    Server
	Lifecycle Lifecycle
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	S3        S3
	Auth      Auth
	RateLimit RateLimit
	LogLevel  string
}

// FromEnv builds the process config from the environment so main stays lean.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	r := &reader{}
	defaults := DefaultLifecycle()
	cfg := Config{
		Server: Server{
			Addr:            r.str("DEALROOM_ADDR", ":8080"),
			ShutdownTimeout: r.duration("DEALROOM_SHUTDOWN_TIMEOUT", 10*time.Second),
			ReadTimeout:     r.duration("DEALROOM_READ_TIMEOUT", time.Minute),
			WriteTimeout:    r.duration("DEALROOM_WRITE_TIMEOUT", time.Minute),
		},
		Lifecycle: Lifecycle{
			ReviewTimeout:    time.Duration(r.integer("REVIEW_TIMEOUT_DAYS", 7)) * 24 * time.Hour,
			AutoSaveInterval: time.Duration(r.integer("AUTOSAVE_INTERVAL_MINUTES", 5)) * time.Minute,
			ArchiveAfter:     time.Duration(r.integer("ARCHIVE_AFTER_DAYS", 30)) * 24 * time.Hour,
			MaxMessageLength: r.integer("MAX_MESSAGE_LENGTH", defaults.MaxMessageLength),
			NDAValidity:      time.Duration(r.integer("NDA_VALIDITY_DAYS", 0)) * 24 * time.Hour,
			SweepInterval:    r.duration("SWEEP_INTERVAL", defaults.SweepInterval),
		},
		Database: Database{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			Migrate:         r.boolean("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           r.list("KAFKA_BROKERS"),
			AuditTopic:        r.str("KAFKA_AUDIT_TOPIC", "dealroom.audit"),
			NotificationTopic: r.str("KAFKA_NOTIFICATION_TOPIC", "dealroom.notifications"),
			RelayInterval:     r.duration("AUDIT_RELAY_INTERVAL", 2*time.Second),
			RelayBatch:        r.integer("AUDIT_RELAY_BATCH", 500),
		},
		S3: S3{
			Bucket:          r.str("S3_BUCKET", ""),
			Region:          r.str("S3_REGION", "us-east-1"),
			Endpoint:        r.str("S3_ENDPOINT", ""),
			AccessKeyID:     r.str("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: r.str("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    r.boolean("S3_USE_PATH_STYLE", false),
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: r.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        r.str("JWT_ISSUER", "dealroom"),
			Audience:      r.str("JWT_AUDIENCE", "dealroom-api"),
		},
		RateLimit: RateLimit{
			WritesPerWindow: r.integer("RATE_LIMIT_WRITES", 120),
			Window:          r.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		LogLevel: r.str("LOG_LEVEL", "info"),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Lifecycle.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects timings the sweep cannot work with.
func (l Lifecycle) Validate() error {
	switch {
	case l.ReviewTimeout <= 0:
		return fmt.Errorf("review timeout must be positive")
	case l.ArchiveAfter <= 0:
		return fmt.Errorf("archive delay must be positive")
	case l.AutoSaveInterval <= 0:
		return fmt.Errorf("autosave interval must be positive")
	case l.MaxMessageLength <= 0:
		return fmt.Errorf("max message length must be positive")
	case l.NDAValidity < 0:
		return fmt.Errorf("nda validity cannot be negative")
	case l.SweepInterval <= 0:
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

// reader keeps the first parse error so FromEnv reads as a flat list.
type reader struct {
	err error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
