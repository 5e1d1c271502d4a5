package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	MessagesMongo  = "mongo"
	MessagesScylla = "scylla"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	// Store selects the aggregate store; MessageStore the message stream in mongo mode.
	Store           string
	MessageStore    string
	ListingFixtures string

	MongoURI string
	MongoDB  string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	NotificationTopic  string
	ListingStatusTopic string
	NotifyRate         int

	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	OutboxMaxAttempts  int
	OutboxRetention    time.Duration
	RetryBackoff       []time.Duration

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
	S3PresignTTL     time.Duration

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration
	ReplicationFactor int

	ValkeyAddrs []string

	JWTSecret   string
	JWTIssuer   string
	CORSOrigins []string
}

// Load reads .env files when present and parses configuration from the environment. Variables
// already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ":9090"),
		Store:              strings.ToLower(getEnv("STORE", StoreMemory)),
		MessageStore:       strings.ToLower(getEnv("MESSAGE_STORE", MessagesMongo)),
		ListingFixtures:    getEnv("LISTING_FIXTURES", "data/listings.json"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "bazaar"),
		KafkaBrokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "bazaar-reactions"),
		NotificationTopic:  getEnv("NOTIFICATION_TOPIC", "notification.requests.v1"),
		ListingStatusTopic: getEnv("LISTING_STATUS_TOPIC", "listing.status.v1"),
		NotifyRate:         parseIntWithDefault(os.Getenv("NOTIFY_RATE_PER_SECOND"), 200),
		OutboxMaxAttempts:  parseIntWithDefault(os.Getenv("OUTBOX_MAX_ATTEMPTS"), 20),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint:   getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           getEnv("S3_BUCKET", "bazaar-images"),
		ScyllaHosts:        splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace:     strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "bazaar_messages")),
		ScyllaUsername:     strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:     strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		ReplicationFactor:  parseIntWithDefault(os.Getenv("SCYLLA_REPLICATION_FACTOR"), 1),
		ValkeyAddrs:        splitAndTrim(os.Getenv("VALKEY_ADDRS")),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getEnv("JWT_ISSUER", ""),
		CORSOrigins:        splitAndTrim(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.OutboxRetention, err = parseDurationEnv("OUTBOX_RETENTION", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.S3PresignTTL, err = parseDurationEnv("S3_PRESIGN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	for _, raw := range strings.Split(getEnv("RETRY_BACKOFF", "1s,5s,30s"), ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE=mongo")
		}
	default:
		return fmt.Errorf("unsupported STORE: %s", c.Store)
	}
	switch c.MessageStore {
	case MessagesMongo:
	case MessagesScylla:
		if len(c.ScyllaHosts) == 0 || c.ScyllaKeyspace == "" {
			return fmt.Errorf("SCYLLA_HOSTS and SCYLLA_KEYSPACE are required when MESSAGE_STORE=scylla")
		}
	default:
		return fmt.Errorf("unsupported MESSAGE_STORE: %s", c.MessageStore)
	}
	if c.JWTSecret == "" && !c.Dev() {
		return fmt.Errorf("JWT_SECRET is required outside dev")
	}
	return nil
}

// Dev reports whether the process runs in a developer environment.
func (c Config) Dev() bool {
	return c.Env == "dev" || c.Env == "local"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntWithDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v == 0 {
		return def
	}
	return v
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
