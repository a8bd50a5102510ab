package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Password       PasswordConfig
	AdminRateLimit AdminRateLimitConfig
	FeatureFlags   FeatureFlagsConfig
	Settlement     SettlementConfig
	Cron           CronConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLECORE_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLECORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLECORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLECORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLECORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLECORE_DB_DSN"`
	Driver string `envconfig:"SETTLECORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLECORE_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLECORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLECORE_DB_USER"`
	LegacyPassword string `envconfig:"SETTLECORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLECORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLECORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLECORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLECORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLECORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLECORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLECORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLECORE_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLECORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLECORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLECORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLECORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLECORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLECORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLECORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SETTLECORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SETTLECORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SETTLECORE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SETTLECORE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SETTLECORE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SETTLECORE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SETTLECORE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SETTLECORE_ARGON_KEY_LEN" default:"32"`
}

type AdminRateLimitConfig struct {
	StepUpWindow     time.Duration `envconfig:"SETTLECORE_ADMIN_RATE_LIMIT_STEP_UP_WINDOW" default:"1m"`
	StepUpAdminLimit int           `envconfig:"SETTLECORE_ADMIN_RATE_LIMIT_STEP_UP_ADMIN_LIMIT" default:"5"`
	StepUpIPLimit    int           `envconfig:"SETTLECORE_ADMIN_RATE_LIMIT_STEP_UP_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLECORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLECORE_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig seeds the runtime platform settings on first boot and
// names the ledger account that collects platform fees.
type SettlementConfig struct {
	PlatformAccountID           string        `envconfig:"SETTLECORE_PLATFORM_ACCOUNT_ID" required:"true"`
	DisputeWindowHours          int           `envconfig:"SETTLECORE_DISPUTE_WINDOW_HOURS" default:"24"`
	SellerProtectionDays        int           `envconfig:"SETTLECORE_SELLER_PROTECTION_DAYS" default:"10"`
	DefaultFeePercent           string        `envconfig:"SETTLECORE_DEFAULT_FEE_PERCENT" default:"5.0"`
	StepUpThresholdCents        int64         `envconfig:"SETTLECORE_STEP_UP_THRESHOLD_CENTS" default:"100000"`
	ConfirmPhraseThresholdCents int64         `envconfig:"SETTLECORE_CONFIRM_PHRASE_THRESHOLD_CENTS" default:"500000"`
	ConfigCacheTTL              time.Duration `envconfig:"SETTLECORE_CONFIG_CACHE_TTL" default:"30s"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"SETTLECORE_CRON_INTERVAL" default:"1m"`
	LockTTL             time.Duration `envconfig:"SETTLECORE_CRON_LOCK_TTL" default:"5m"`
	SettlementBatchSize int           `envconfig:"SETTLECORE_CRON_SETTLEMENT_BATCH_SIZE" default:"100"`
	ReconcileBatchSize  int           `envconfig:"SETTLECORE_CRON_RECONCILE_BATCH_SIZE" default:"500"`
	OutboxRetentionDays int           `envconfig:"SETTLECORE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SETTLECORE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SETTLECORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SETTLECORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SETTLECORE_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"SETTLECORE_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	WalletTopic        string `envconfig:"SETTLECORE_PUBSUB_WALLET_TOPIC" required:"true"`
	WalletSubscription string `envconfig:"SETTLECORE_PUBSUB_WALLET_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLECORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLECORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLECORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
