package config

// EnvPrefix namespaces envconfig lookups; the explicit tags act as the resolved keys.
const EnvPrefix = "TEAMCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	LockedExpiryExpired   = "expired"
	LockedExpiryCancelled = "cancelled"
)

const (
	EnvAppEnv              = "TEAMCART_APP_ENV"
	EnvPort                = "TEAMCART_APP_PORT"
	EnvDBDSN               = "TEAMCART_DB_DSN"
	EnvDBHost              = "TEAMCART_DB_HOST"
	EnvDBUser              = "TEAMCART_DB_USER"
	EnvDBName              = "TEAMCART_DB_NAME"
	EnvRedisURL            = "TEAMCART_REDIS_URL"
	EnvJWTSecret           = "TEAMCART_JWT_SECRET"
	EnvJWTIssuer           = "TEAMCART_JWT_ISSUER"
	EnvShareTokenSecret    = "TEAMCART_SHARE_TOKEN_SECRET"
	EnvTeamCartTTL         = "TEAMCART_TTL"
	EnvRetryBudget         = "TEAMCART_RETRY_BUDGET"
	EnvLockedExpiryOutcome = "TEAMCART_LOCKED_EXPIRY_OUTCOME"
	EnvSweepInterval       = "TEAMCART_SWEEP_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
