package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic      = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubBillingTopic     = "STOREFRONT_PUBSUB_BILLING_TOPIC"
	EnvPubSubNotificationsSub = "STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvAsaasAPIKey       = "STOREFRONT_ASAAS_API_KEY"
	EnvAsaasWebhookToken = "STOREFRONT_ASAAS_WEBHOOK_TOKEN"
	EnvAsaasBaseURL      = "STOREFRONT_ASAAS_BASE_URL"

	EnvBoletoDueDays    = "STOREFRONT_PAYMENTS_BOLETO_DUE_DAYS"
	EnvPixDueDays       = "STOREFRONT_PAYMENTS_PIX_DUE_DAYS"
	EnvCardDueDays      = "STOREFRONT_PAYMENTS_CARD_DUE_DAYS"
	EnvPaymentsTimezone = "STOREFRONT_PAYMENTS_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
