package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Asaas         AsaasConfig
	Payments      PaymentsConfig
	CustomerCache CustomerCacheConfig
	Cron          CronConfig
	Resend        ResendConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT" default:"10"`
	RetryLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_RETRY" default:"5"`
	WebhookMaxBytes int64         `envconfig:"STOREFRONT_WEBHOOK_MAX_BYTES" default:"1048576"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	SessionCheck   bool `envconfig:"STOREFRONT_SESSION_CHECK" default:"true"`
	NotifyByEmail  bool `envconfig:"STOREFRONT_NOTIFY_BY_EMAIL" default:"true"`
	AllowCardRetry bool `envconfig:"STOREFRONT_ALLOW_CARD_RETRY" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"STOREFRONT_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	ConsumerLease         time.Duration `envconfig:"STOREFRONT_EVENTING_CONSUMER_LEASE" default:"5m"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" required:"true"`
	BillingTopic             string `envconfig:"STOREFRONT_PUBSUB_BILLING_TOPIC" required:"true"`
	NotificationSubscription string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	MaxOutstanding           int    `envconfig:"STOREFRONT_PUBSUB_MAX_OUTSTANDING" default:"50"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// AsaasConfig holds the payment provider credentials and endpoint.
type AsaasConfig struct {
	BaseURL              string        `envconfig:"STOREFRONT_ASAAS_BASE_URL" default:"https://sandbox.asaas.com/api/v3"`
	APIKey               string        `envconfig:"STOREFRONT_ASAAS_API_KEY" required:"true"`
	WebhookToken         string        `envconfig:"STOREFRONT_ASAAS_WEBHOOK_TOKEN" required:"true"`
	WebhookSigningSecret string        `envconfig:"STOREFRONT_ASAAS_WEBHOOK_SIGNING_SECRET"`
	Timeout              time.Duration `envconfig:"STOREFRONT_ASAAS_TIMEOUT" default:"15s"`
	UserAgent            string        `envconfig:"STOREFRONT_ASAAS_USER_AGENT" default:"storefront-backend"`
}

// PaymentsConfig drives due date and description rules per payment method.
type PaymentsConfig struct {
	BoletoDueDays     int    `envconfig:"STOREFRONT_PAYMENTS_BOLETO_DUE_DAYS" default:"1"`
	PixDueDays        int    `envconfig:"STOREFRONT_PAYMENTS_PIX_DUE_DAYS" default:"0"`
	CreditCardDueDays int    `envconfig:"STOREFRONT_PAYMENTS_CARD_DUE_DAYS" default:"0"`
	DescriptionPrefix string `envconfig:"STOREFRONT_PAYMENTS_DESCRIPTION_PREFIX" default:"Pedido"`
	Timezone          string `envconfig:"STOREFRONT_PAYMENTS_TIMEZONE" default:"America/Sao_Paulo"`
}

func (p PaymentsConfig) validate() error {
	for name, days := range map[string]int{
		EnvBoletoDueDays: p.BoletoDueDays,
		EnvPixDueDays:    p.PixDueDays,
		EnvCardDueDays:   p.CreditCardDueDays,
	} {
		if days < 0 {
			return fmt.Errorf("%s must be zero or positive", name)
		}
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvPaymentsTimezone, err)
	}
	return nil
}

type CustomerCacheConfig struct {
	Size int           `envconfig:"STOREFRONT_CUSTOMER_CACHE_SIZE" default:"4096"`
	TTL  time.Duration `envconfig:"STOREFRONT_CUSTOMER_CACHE_TTL" default:"10m"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	ReconcileLimit    int           `envconfig:"STOREFRONT_CRON_RECONCILE_LIMIT" default:"200"`
	ReconcileMinAge   time.Duration `envconfig:"STOREFRONT_CRON_RECONCILE_MIN_AGE" default:"30m"`
	ReconcileLookback time.Duration `envconfig:"STOREFRONT_CRON_RECONCILE_LOOKBACK" default:"168h"`
	StaleReleaseDays  int           `envconfig:"STOREFRONT_CRON_STALE_RELEASE_DAYS" default:"7"`
	OutboxRetention   int           `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetention      int           `envconfig:"STOREFRONT_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

type ResendConfig struct {
	APIKey      string `envconfig:"STOREFRONT_RESEND_API_KEY"`
	DefaultFrom string `envconfig:"STOREFRONT_RESEND_FROM_EMAIL" default:"pedidos@example.com"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverSQLite)
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
