package config

const (
	EnvPrefix = "EVENTREG"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv   = "EVENTREG_APP_ENV"
	EnvPort     = "EVENTREG_APP_PORT"
	EnvLogLevel = "EVENTREG_LOG_LEVEL"

	EnvDBDSN    = "EVENTREG_DB_DSN"
	EnvDBDriver = "EVENTREG_DB_DRIVER"
	EnvDBHost   = "EVENTREG_DB_HOST"
	EnvDBUser   = "EVENTREG_DB_USER"
	EnvDBName   = "EVENTREG_DB_NAME"

	EnvRedisURL = "EVENTREG_REDIS_URL"

	EnvJWTSecret = "EVENTREG_JWT_SECRET"
	EnvJWTIssuer = "EVENTREG_JWT_ISSUER"

	EnvGCPProjectID = "EVENTREG_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic = "EVENTREG_PUBSUB_ORDERS_TOPIC"

	EnvGatewayBaseURL       = "EVENTREG_GATEWAY_BASE_URL"
	EnvGatewayAPIKey        = "EVENTREG_GATEWAY_API_KEY"
	EnvGatewayWebhookSecret = "EVENTREG_GATEWAY_WEBHOOK_SECRET"
	EnvGatewayReturnURL     = "EVENTREG_GATEWAY_RETURN_URL"

	EnvWebhookFailureThreshold = "EVENTREG_WEBHOOK_FAILURE_THRESHOLD"
	EnvReminderDays            = "EVENTREG_RECONCILIATION_REMINDER_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
