package config

import (
	"fmt"
	"net/url"
	"strconv"
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
	FeatureFlags   FeatureFlagsConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
	Gateway        GatewayConfig
	Checkout       CheckoutConfig
	Webhook        WebhookConfig
	Reconciliation ReconciliationConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Reconciliation.ReminderOffsets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTREG_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTREG_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVENTREG_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVENTREG_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"EVENTREG_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"EVENTREG_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTREG_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables the listener.
	MetricsAddr string `envconfig:"EVENTREG_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTREG_DB_DSN"`
	Driver string `envconfig:"EVENTREG_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTREG_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTREG_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTREG_DB_USER"`
	LegacyPassword string `envconfig:"EVENTREG_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTREG_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTREG_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTREG_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTREG_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTREG_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTREG_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"EVENTREG_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTREG_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTREG_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTREG_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTREG_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTREG_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTREG_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTREG_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTREG_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTREG_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig governs the bearer tokens accepted on the admin surface.
type JWTConfig struct {
	Secret            string `envconfig:"EVENTREG_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTREG_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTREG_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVENTREG_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTREG_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EVENTREG_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVENTREG_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"EVENTREG_PUBSUB_ORDERS_TOPIC" required:"true"`
	NotificationTopic string `envconfig:"EVENTREG_PUBSUB_NOTIFICATION_TOPIC" default:"er-notification-events"`
	RegistrationTopic string `envconfig:"EVENTREG_PUBSUB_REGISTRATION_TOPIC" default:"er-participant-registrations"`
}

// Topics lists every configured topic name.
func (p PubSubConfig) Topics() []string {
	topics := make([]string, 0, 3)
	for _, topic := range []string{p.OrdersTopic, p.NotificationTopic, p.RegistrationTopic} {
		if strings.TrimSpace(topic) != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EVENTREG_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EVENTREG_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EVENTREG_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EVENTREG_OUTBOX_RETENTION" default:"720h"`
}

// GatewayConfig describes the hosted payment gateway.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"EVENTREG_GATEWAY_BASE_URL" required:"true"`
	APIKey        string        `envconfig:"EVENTREG_GATEWAY_API_KEY" required:"true"`
	WebhookSecret string        `envconfig:"EVENTREG_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"EVENTREG_GATEWAY_TIMEOUT" default:"10s"`
	ReturnURL     string        `envconfig:"EVENTREG_GATEWAY_RETURN_URL" required:"true"`
	Currency      string        `envconfig:"EVENTREG_GATEWAY_CURRENCY" default:"PHP"`
}

type CheckoutConfig struct {
	RateLimitWindow   time.Duration `envconfig:"EVENTREG_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP    int           `envconfig:"EVENTREG_CHECKOUT_RATE_LIMIT_IP_LIMIT" default:"10"`
	RateLimitPerEmail int           `envconfig:"EVENTREG_CHECKOUT_RATE_LIMIT_EMAIL_LIMIT" default:"5"`
	IdempotencyTTL    time.Duration `envconfig:"EVENTREG_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

type WebhookConfig struct {
	FailureThreshold    int `envconfig:"EVENTREG_WEBHOOK_FAILURE_THRESHOLD" default:"3"`
	RetryAlertThreshold int `envconfig:"EVENTREG_WEBHOOK_RETRY_ALERT_THRESHOLD" default:"5"`
}

type ReconciliationConfig struct {
	Interval      time.Duration `envconfig:"EVENTREG_RECONCILIATION_INTERVAL" default:"5m"`
	LockTTL       time.Duration `envconfig:"EVENTREG_RECONCILIATION_LOCK_TTL" default:"10m"`
	Lookback      time.Duration `envconfig:"EVENTREG_RECONCILIATION_LOOKBACK" default:"336h"`
	PaymentWindow time.Duration `envconfig:"EVENTREG_RECONCILIATION_PAYMENT_WINDOW" default:"120h"`
	ReminderDays  string        `envconfig:"EVENTREG_RECONCILIATION_REMINDER_DAYS" default:"1,3"`
	SessionGrace  time.Duration `envconfig:"EVENTREG_RECONCILIATION_SESSION_GRACE" default:"5m"`
}

// ReminderOffsets parses ReminderDays into ascending, de-duplicated day offsets.
func (r ReconciliationConfig) ReminderOffsets() ([]int, error) {
	seen := map[int]struct{}{}
	offsets := []int{}
	for _, raw := range strings.Split(r.ReminderDays, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		day, err := strconv.Atoi(raw)
		if err != nil || day <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q", EnvReminderDays, raw)
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		offsets = append(offsets, day)
	}
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j] < offsets[j-1]; j-- {
			offsets[j], offsets[j-1] = offsets[j-1], offsets[j]
		}
	}
	return offsets, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:eventreg.db?cache=shared"
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
