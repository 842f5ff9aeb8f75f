package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Secret       SecretConfig
	Signing      SigningConfig
	Sync         SyncConfig
	Agent        AgentConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Signing.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AgentEnv is the subset of configuration a terminal-side agent needs. The
// server config carries required fields a device never has, so the agent
// loads its own slice of the environment.
type AgentEnv struct {
	LogLevel     string `envconfig:"PLAYPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLAYPASS_LOG_WARN_STACK" default:"false"`
	Agent        AgentConfig
}

func LoadAgent() (*AgentEnv, error) {
	var cfg AgentEnv
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	if strings.TrimSpace(cfg.Agent.ServerURL) == "" {
		return nil, fmt.Errorf("%s is required", "PLAYPASS_AGENT_SERVER_URL")
	}
	if strings.TrimSpace(cfg.Agent.DeviceToken) == "" {
		return nil, fmt.Errorf("%s is required", "PLAYPASS_AGENT_DEVICE_TOKEN")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PLAYPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"PLAYPASS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLAYPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLAYPASS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PLAYPASS_DB_DSN"`
	Driver string `envconfig:"PLAYPASS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PLAYPASS_DB_HOST"`
	Port     int    `envconfig:"PLAYPASS_DB_PORT" default:"5432"`
	User     string `envconfig:"PLAYPASS_DB_USER"`
	Password string `envconfig:"PLAYPASS_DB_PASSWORD"`
	Name     string `envconfig:"PLAYPASS_DB_NAME"`
	SSLMode  string `envconfig:"PLAYPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLAYPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLAYPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLAYPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLAYPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLAYPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PLAYPASS_REDIS_ADDR"`
	Password     string        `envconfig:"PLAYPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLAYPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLAYPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLAYPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLAYPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLAYPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLAYPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PLAYPASS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PLAYPASS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PLAYPASS_JWT_EXPIRATION_MINUTES" default:"720"`
}

// TokenTTL returns the device token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type SecretConfig struct {
	ArgonMemoryKB    int `envconfig:"PLAYPASS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PLAYPASS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PLAYPASS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PLAYPASS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PLAYPASS_ARGON_KEY_LEN" default:"32"`
}

// SigningConfig carries the versioned ticket-signing keys. Keys is a
// version->secret map ("v1:abc,v2:def" in the environment); every listed
// version is trusted for verification while ActiveVersion signs new tickets.
type SigningConfig struct {
	Keys          map[string]string `envconfig:"PLAYPASS_SIGNING_KEYS" required:"true"`
	ActiveVersion string            `envconfig:"PLAYPASS_SIGNING_ACTIVE_VERSION" required:"true"`
}

func (s SigningConfig) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("%s must list at least one key", EnvSigningKeys)
	}
	if _, ok := s.Keys[s.ActiveVersion]; !ok {
		return fmt.Errorf("%s %q has no entry in %s", EnvSigningActiveVersion, s.ActiveVersion, EnvSigningKeys)
	}
	for version, secret := range s.Keys {
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("signing key %q is empty", version)
		}
	}
	return nil
}

// Versions returns the trusted key versions in deterministic order.
func (s SigningConfig) Versions() []string {
	versions := make([]string, 0, len(s.Keys))
	for version := range s.Keys {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}

type SyncConfig struct {
	IdempotencyTTL time.Duration `envconfig:"PLAYPASS_SYNC_IDEMPOTENCY_TTL" default:"720h"`
	MaxBatchSize   int           `envconfig:"PLAYPASS_SYNC_MAX_BATCH_SIZE" default:"100"`
}

// AgentConfig configures the on-device sync agent.
type AgentConfig struct {
	DBPath          string        `envconfig:"PLAYPASS_AGENT_DB_PATH" default:"playpass-agent.db"`
	ServerURL       string        `envconfig:"PLAYPASS_AGENT_SERVER_URL"`
	DeviceToken     string        `envconfig:"PLAYPASS_AGENT_DEVICE_TOKEN"`
	BatchSize       int           `envconfig:"PLAYPASS_AGENT_BATCH_SIZE" default:"25"`
	PollInterval    time.Duration `envconfig:"PLAYPASS_AGENT_POLL_INTERVAL" default:"2s"`
	RequestTimeout  time.Duration `envconfig:"PLAYPASS_AGENT_REQUEST_TIMEOUT" default:"10s"`
	MaxBackoff      time.Duration `envconfig:"PLAYPASS_AGENT_MAX_BACKOFF" default:"2m"`
	MaxAttempts     int           `envconfig:"PLAYPASS_AGENT_MAX_ATTEMPTS" default:"10"`
	SyncedRetention time.Duration `envconfig:"PLAYPASS_AGENT_SYNCED_RETENTION" default:"72h"`
	CleanupInterval time.Duration `envconfig:"PLAYPASS_AGENT_CLEANUP_INTERVAL" default:"1h"`
	StatusAddr      string        `envconfig:"PLAYPASS_AGENT_STATUS_ADDR" default:"127.0.0.1:8099"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PLAYPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PLAYPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PLAYPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	TicketTopic     string `envconfig:"PLAYPASS_PUBSUB_TICKET_TOPIC" default:"pp-ticket-events"`
	RedemptionTopic string `envconfig:"PLAYPASS_PUBSUB_REDEMPTION_TOPIC" default:"pp-redemption-events"`
	SaleTopic       string `envconfig:"PLAYPASS_PUBSUB_SALE_TOPIC" default:"pp-sale-events"`
	ShiftTopic      string `envconfig:"PLAYPASS_PUBSUB_SHIFT_TOPIC" default:"pp-shift-events"`
	FraudTopic      string `envconfig:"PLAYPASS_PUBSUB_FRAUD_TOPIC" default:"pp-fraud-events"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PLAYPASS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PLAYPASS_GCP_CREDENTIALS_JSON"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PLAYPASS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
