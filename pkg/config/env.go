package config

// EnvPrefix is handed to envconfig; every tag already carries the full name.
const EnvPrefix = "TABLESIDE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "TABLESIDE_APP_ENV"
	EnvPort            = "TABLESIDE_APP_PORT"
	EnvDBDSN           = "TABLESIDE_DB_DSN"
	EnvDBHost          = "TABLESIDE_DB_HOST"
	EnvDBUser          = "TABLESIDE_DB_USER"
	EnvDBName          = "TABLESIDE_DB_NAME"
	EnvRedisURL        = "TABLESIDE_REDIS_URL"
	EnvJWTSecret       = "TABLESIDE_JWT_SECRET"
	EnvServiceKey      = "TABLESIDE_SERVICE_KEY"
	EnvVerifyTimeout   = "TABLESIDE_PAYMENTS_VERIFY_TIMEOUT"
	EnvCallbackBaseURL = "TABLESIDE_PAYMENTS_CALLBACK_BASE_URL"
	EnvCallbackToken   = "TABLESIDE_MPESA_CALLBACK_TOKEN"
	EnvCORSOrigins     = "TABLESIDE_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
