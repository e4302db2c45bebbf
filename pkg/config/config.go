package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	Payments  PaymentsConfig
	Realtime  RealtimeConfig
	Cron      CronConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(cfg.App.IsProd()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLESIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLESIDE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLESIDE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLESIDE_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"TABLESIDE_PUBLIC_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"TABLESIDE_DB_DSN"`
	Driver string `envconfig:"TABLESIDE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLESIDE_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLESIDE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLESIDE_DB_USER"`
	LegacyPassword string `envconfig:"TABLESIDE_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLESIDE_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLESIDE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLESIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLESIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLESIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLESIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which statements are logged as warnings.
	SlowQuery time.Duration `envconfig:"TABLESIDE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLESIDE_REDIS_URL"`
	Address      string        `envconfig:"TABLESIDE_REDIS_ADDR"`
	Password     string        `envconfig:"TABLESIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLESIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLESIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLESIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLESIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLESIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLESIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
	CartTTL      time.Duration `envconfig:"TABLESIDE_REDIS_CART_TTL" default:"72h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TABLESIDE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLESIDE_JWT_ISSUER" default:"tableside"`
	ExpirationMinutes int    `envconfig:"TABLESIDE_JWT_EXPIRATION_MINUTES" default:"720"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TABLESIDE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TABLESIDE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TABLESIDE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TABLESIDE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TABLESIDE_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"TABLESIDE_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginLimit       int           `envconfig:"TABLESIDE_RATE_LIMIT_LOGIN_LIMIT" default:"10"`
	WaiterCallWindow time.Duration `envconfig:"TABLESIDE_RATE_LIMIT_WAITER_CALL_WINDOW" default:"1m"`
	WaiterCallLimit  int           `envconfig:"TABLESIDE_RATE_LIMIT_WAITER_CALL_LIMIT" default:"3"`
	CallbackWindow   time.Duration `envconfig:"TABLESIDE_RATE_LIMIT_CALLBACK_WINDOW" default:"1m"`
	CallbackLimit    int           `envconfig:"TABLESIDE_RATE_LIMIT_CALLBACK_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"TABLESIDE_AUTO_MIGRATE" default:"false"`
	MemoryRealtime  bool `envconfig:"TABLESIDE_MEMORY_REALTIME" default:"false"`
	AllowSelfSignup bool `envconfig:"TABLESIDE_ALLOW_SELF_SIGNUP" default:"true"`
	ExposeMetrics   bool `envconfig:"TABLESIDE_EXPOSE_METRICS" default:"true"`
}

// PaymentsConfig holds process-wide payment settings. Gateway credentials are
// stored per restaurant, not here.
type PaymentsConfig struct {
	CallbackBaseURL    string        `envconfig:"TABLESIDE_PAYMENTS_CALLBACK_BASE_URL"`
	ReturnURL          string        `envconfig:"TABLESIDE_PAYMENTS_RETURN_URL"`
	VerifyTimeout      time.Duration `envconfig:"TABLESIDE_PAYMENTS_VERIFY_TIMEOUT" default:"30s"`
	GatewayTimeout     time.Duration `envconfig:"TABLESIDE_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	MpesaCallbackToken string        `envconfig:"TABLESIDE_MPESA_CALLBACK_TOKEN"`
	ServiceKey         string        `envconfig:"TABLESIDE_SERVICE_KEY" required:"true"`
	WebhookDedupeTTL   time.Duration `envconfig:"TABLESIDE_WEBHOOK_DEDUPE_TTL" default:"168h"`
	DefaultCurrency    string        `envconfig:"TABLESIDE_DEFAULT_CURRENCY" default:"KES"`
}

// validate rejects a production config without the M-Pesa callback token:
// without it anyone can post a success callback for a known reference.
func (p PaymentsConfig) validate(prod bool) error {
	if p.VerifyTimeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvVerifyTimeout)
	}
	if prod && strings.TrimSpace(p.MpesaCallbackToken) == "" {
		return fmt.Errorf("%s is required in production", EnvCallbackToken)
	}
	if p.CallbackBaseURL != "" {
		if _, err := url.ParseRequestURI(p.CallbackBaseURL); err != nil {
			return fmt.Errorf("%s is not a valid url: %w", EnvCallbackBaseURL, err)
		}
	}
	return nil
}

type RealtimeConfig struct {
	SubscriberBuffer int           `envconfig:"TABLESIDE_REALTIME_SUBSCRIBER_BUFFER" default:"32"`
	BoardDebounce    time.Duration `envconfig:"TABLESIDE_REALTIME_BOARD_DEBOUNCE" default:"250ms"`
	PingInterval     time.Duration `envconfig:"TABLESIDE_REALTIME_PING_INTERVAL" default:"30s"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"TABLESIDE_CRON_INTERVAL" default:"1h"`
	LockTTL               time.Duration `envconfig:"TABLESIDE_CRON_LOCK_TTL" default:"55m"`
	JobTimeout            time.Duration `envconfig:"TABLESIDE_CRON_JOB_TIMEOUT" default:"10m"`
	WaiterCallRetention   time.Duration `envconfig:"TABLESIDE_CRON_WAITER_CALL_RETENTION" default:"72h"`
	NotificationRetention time.Duration `envconfig:"TABLESIDE_CRON_NOTIFICATION_RETENTION" default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TABLESIDE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
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
