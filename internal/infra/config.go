package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string        `env:"DATABASE_URL"`
	PGHost        string        `env:"PGHOST" envDefault:"localhost"`
	PGPort        int           `env:"PGPORT" envDefault:"5435"`
	PGUser        string        `env:"PGUSER" envDefault:"tower"`
	PGPassword    string        `env:"PGPASSWORD" envDefault:"tower"`
	PGDatabase    string        `env:"PGDATABASE" envDefault:"tower"`
	StoreBackend  string        `env:"STORE_BACKEND" envDefault:"postgres"`
	MigrationsDir string        `env:"MIGRATIONS_DIR"`
	DBMaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns    int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBConnectWait time.Duration `env:"DB_CONNECT_WAIT" envDefault:"15s"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTServiceExpiry time.Duration `env:"JWT_SERVICE_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry   time.Duration `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"3100"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	CORSOrigin         string `env:"CORS_ORIGIN" envDefault:"*"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"tower"`
	KafkaGroupID     string `env:"KAFKA_GROUP_ID" envDefault:"tower-outbox-consumer"`

	// Tracing
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// Randomness
	RandomOrgAPIKey string `env:"RANDOM_ORG_API_KEY"`
	RNGSeed         uint64 `env:"RNG_SEED"`

	// Game loop
	RaidTickInterval  time.Duration `env:"RAID_TICK_INTERVAL" envDefault:"5s"`
	PvPMatchInterval  time.Duration `env:"PVP_MATCH_INTERVAL" envDefault:"3s"`
	PvPQueueTimeout   time.Duration `env:"PVP_QUEUE_TIMEOUT" envDefault:"5m"`
	PlayerLockTimeout time.Duration `env:"PLAYER_LOCK_TIMEOUT" envDefault:"2s"`
	RaidMinTanks      int           `env:"RAID_MIN_TANKS" envDefault:"2"`
	RaidMinHealers    int           `env:"RAID_MIN_HEALERS" envDefault:"3"`
	RaidMinMembers    int           `env:"RAID_MIN_MEMBERS" envDefault:"10"`

	// Economy
	TransferFeePercent float64 `env:"TRANSFER_FEE_PERCENT" envDefault:"0.05"`
	DailyTransferMax   int64   `env:"DAILY_TRANSFER_MAX" envDefault:"200000"`
	SingleTransferMax  int64   `env:"SINGLE_TRANSFER_MAX" envDefault:"50000"`
	GuildCreationCost  int64   `env:"GUILD_CREATION_COST" envDefault:"5000"`
	PermadeathEnabled  bool    `env:"PERMADEATH_ENABLED" envDefault:"false"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	if c.TransferFeePercent < 0 || c.TransferFeePercent >= 1 {
		return fmt.Errorf("TRANSFER_FEE_PERCENT must be in [0, 1), got %v", c.TransferFeePercent)
	}
	if c.RaidMinMembers < c.RaidMinTanks+c.RaidMinHealers {
		return fmt.Errorf("RAID_MIN_MEMBERS (%d) is below RAID_MIN_TANKS + RAID_MIN_HEALERS", c.RaidMinMembers)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// RaidComposition returns the configured minimum ready roster.
func (c *Config) RaidComposition() domain.RaidComposition {
	return domain.RaidComposition{Tanks: c.RaidMinTanks, Healers: c.RaidMinHealers, Total: c.RaidMinMembers}
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
