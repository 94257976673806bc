package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Jobs          JobsConfig
	Inference     InferenceConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Stripe        StripeConfig
	Outbox        OutboxConfig
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
	Env          string `envconfig:"COUT_APP_ENV" required:"true"`
	Port         string `envconfig:"COUT_APP_PORT" required:"true"`
	MetricsPort  string `envconfig:"COUT_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"COUT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COUT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COUT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COUT_DB_DSN"`
	Driver string `envconfig:"COUT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COUT_DB_HOST"`
	LegacyPort     int    `envconfig:"COUT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COUT_DB_USER"`
	LegacyPassword string `envconfig:"COUT_DB_PASSWORD"`
	LegacyName     string `envconfig:"COUT_DB_NAME"`
	LegacySSLMode  string `envconfig:"COUT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COUT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COUT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COUT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COUT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COUT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COUT_REDIS_ADDR"`
	Password     string        `envconfig:"COUT_REDIS_PASSWORD"`
	DB           int           `envconfig:"COUT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COUT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COUT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COUT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COUT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COUT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"COUT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"COUT_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"COUT_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"COUT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COUT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COUT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COUT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COUT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COUT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COUT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"COUT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"COUT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"COUT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"COUT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"COUT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COUT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COUT_AUTO_MIGRATE" default:"false"`
}

type JobsConfig struct {
	MaxPromptLen   int           `envconfig:"COUT_JOBS_MAX_PROMPT_LEN" default:"5000"`
	DefaultCost    int           `envconfig:"COUT_JOBS_DEFAULT_COST" default:"1"`
	ProcessTimeout time.Duration `envconfig:"COUT_JOBS_PROCESS_TIMEOUT" default:"60s"`
}

type InferenceConfig struct {
	Provider string        `envconfig:"COUT_INFERENCE_PROVIDER" default:"mock"`
	BaseURL  string        `envconfig:"COUT_INFERENCE_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey   string        `envconfig:"COUT_INFERENCE_API_KEY"`
	Timeout  time.Duration `envconfig:"COUT_INFERENCE_TIMEOUT" default:"30s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COUT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"COUT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COUT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	JobsTopic        string `envconfig:"COUT_PUBSUB_JOBS_TOPIC" required:"true"`
	JobsSubscription string `envconfig:"COUT_PUBSUB_JOBS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize           int           `envconfig:"COUT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS      int           `envconfig:"COUT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts         int           `envconfig:"COUT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	EventIdempotencyTTL time.Duration `envconfig:"COUT_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey             string        `envconfig:"COUT_STRIPE_API_KEY"`
	Secret             string        `envconfig:"COUT_STRIPE_SECRET"`
	Env                string        `envconfig:"COUT_STRIPE_ENV" default:"test"`
	WebhookEventTTL    time.Duration `envconfig:"COUT_STRIPE_WEBHOOK_EVENT_TTL" default:"720h"`
	CheckoutSuccessURL string        `envconfig:"COUT_STRIPE_CHECKOUT_SUCCESS_URL" default:"https://app.cout.dev/billing?checkout=success"`
	CheckoutCancelURL  string        `envconfig:"COUT_STRIPE_CHECKOUT_CANCEL_URL" default:"https://app.cout.dev/billing?checkout=cancelled"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
