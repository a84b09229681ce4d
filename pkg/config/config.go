package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	ShareToken ShareTokenConfig
	TeamCart   TeamCartConfig
	Eventing   EventingConfig
	Outbox     OutboxConfig
	Cron       CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.TeamCart.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TEAMCART_APP_ENV" required:"true"`
	Port         string `envconfig:"TEAMCART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TEAMCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TEAMCART_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"TEAMCART_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TEAMCART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"TEAMCART_DB_DSN"`

	LegacyHost     string `envconfig:"TEAMCART_DB_HOST"`
	LegacyPort     int    `envconfig:"TEAMCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TEAMCART_DB_USER"`
	LegacyPassword string `envconfig:"TEAMCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"TEAMCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"TEAMCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TEAMCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TEAMCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TEAMCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TEAMCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TEAMCART_REDIS_URL"`
	Address      string        `envconfig:"TEAMCART_REDIS_ADDR"`
	Password     string        `envconfig:"TEAMCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"TEAMCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TEAMCART_REDIS_POOL_SIZE" default:"20"`
	MinIdleConns int           `envconfig:"TEAMCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TEAMCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TEAMCART_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TEAMCART_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig signs the bearer access tokens accepted by the API.
type JWTConfig struct {
	Secret            string `envconfig:"TEAMCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TEAMCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TEAMCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// ShareTokenConfig signs the join links handed out by hosts.
type ShareTokenConfig struct {
	Secret string        `envconfig:"TEAMCART_SHARE_TOKEN_SECRET" required:"true"`
	Issuer string        `envconfig:"TEAMCART_SHARE_TOKEN_ISSUER" default:"teamcart"`
	TTL    time.Duration `envconfig:"TEAMCART_SHARE_TOKEN_TTL" default:"24h"`
}

type TeamCartConfig struct {
	TTL                  time.Duration `envconfig:"TEAMCART_TTL" default:"1h"`
	MaxDeadline          time.Duration `envconfig:"TEAMCART_MAX_DEADLINE" default:"24h"`
	PaymentWindow        time.Duration `envconfig:"TEAMCART_PAYMENT_WINDOW" default:"15m"`
	AuditRetention       time.Duration `envconfig:"TEAMCART_AUDIT_RETENTION" default:"72h"`
	MemberCap            int           `envconfig:"TEAMCART_MEMBER_CAP" default:"20"`
	RetryBudget          int           `envconfig:"TEAMCART_RETRY_BUDGET" default:"4"`
	LockedExpiryOutcome  string        `envconfig:"TEAMCART_LOCKED_EXPIRY_OUTCOME" default:"expired"`
	AllowCashOnDelivery  bool          `envconfig:"TEAMCART_ALLOW_CASH_ON_DELIVERY" default:"true"`
	DefaultCurrency      string        `envconfig:"TEAMCART_DEFAULT_CURRENCY" default:"USD"`
	TaxRateBps           int64         `envconfig:"TEAMCART_TAX_RATE_BPS" default:"0"`
	DeliveryFee          string        `envconfig:"TEAMCART_DELIVERY_FEE" default:"0"`
	FreeDeliveryAbove    string        `envconfig:"TEAMCART_FREE_DELIVERY_ABOVE" default:""`
	NotifyTimeout        time.Duration `envconfig:"TEAMCART_NOTIFY_TIMEOUT" default:"2s"`
	SweepInterval        time.Duration `envconfig:"TEAMCART_SWEEP_INTERVAL" default:"30s"`
	SweepBatchSize       int           `envconfig:"TEAMCART_SWEEP_BATCH_SIZE" default:"100"`
	SweepMaxBatches      int           `envconfig:"TEAMCART_SWEEP_MAX_BATCHES" default:"10"`
	PaymentConsumerGroup string        `envconfig:"TEAMCART_PAYMENT_CONSUMER" default:"teamcart-payments"`
}

func (t TeamCartConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(t.LockedExpiryOutcome)) {
	case LockedExpiryExpired, LockedExpiryCancelled:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLockedExpiryOutcome, LockedExpiryExpired, LockedExpiryCancelled)
	}
	if t.TTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvTeamCartTTL)
	}
	if t.RetryBudget <= 0 {
		return fmt.Errorf("%s must be positive", EnvRetryBudget)
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TEAMCART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// PaymentsWebhookSecret signs gateway callbacks; empty disables the route.
	PaymentsWebhookSecret string `envconfig:"TEAMCART_PAYMENTS_WEBHOOK_SECRET"`
}

// OutboxConfig tunes the relay that moves outbox rows onto Redis channels.
type OutboxConfig struct {
	BatchSize      int `envconfig:"TEAMCART_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TEAMCART_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TEAMCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TEAMCART_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	LockTTL time.Duration `envconfig:"TEAMCART_CRON_LOCK_TTL" default:"2m"`
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
