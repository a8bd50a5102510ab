package config

// EnvPrefix is passed to envconfig.Process. Field tags carry fully
// qualified names, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names shared by Load, tests and tooling.
const (
	EnvAppEnv = "SETTLECORE_APP_ENV"
	EnvPort   = "SETTLECORE_APP_PORT"

	EnvDBDSN      = "SETTLECORE_DB_DSN"
	EnvDBHost     = "SETTLECORE_DB_HOST"
	EnvDBPort     = "SETTLECORE_DB_PORT"
	EnvDBUser     = "SETTLECORE_DB_USER"
	EnvDBPassword = "SETTLECORE_DB_PASSWORD"
	EnvDBName     = "SETTLECORE_DB_NAME"
	EnvDBSSLMode  = "SETTLECORE_DB_SSLMODE"

	EnvRedisURL = "SETTLECORE_REDIS_URL"

	EnvJWTSecret  = "SETTLECORE_JWT_SECRET"
	EnvJWTIssuer  = "SETTLECORE_JWT_ISSUER"
	EnvJWTExpMins = "SETTLECORE_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "SETTLECORE_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic = "SETTLECORE_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "SETTLECORE_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubWalletTopic = "SETTLECORE_PUBSUB_WALLET_TOPIC"
	EnvPubSubWalletSub   = "SETTLECORE_PUBSUB_WALLET_SUBSCRIPTION"

	EnvPlatformAccountID = "SETTLECORE_PLATFORM_ACCOUNT_ID"
)

// legacyDBEnvVars are the discrete connection vars accepted when
// SETTLECORE_DB_DSN is not set.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
