package config

// EnvPrefix is the envconfig prefix; individual fields pin full names.
const EnvPrefix = "cout"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "COUT_DB_DSN"
	EnvDBHost = "COUT_DB_HOST"
	EnvDBUser = "COUT_DB_USER"
	EnvDBName = "COUT_DB_NAME"
)

const (
	EnvAppEnv                 = "COUT_APP_ENV"
	EnvPort                   = "COUT_APP_PORT"
	EnvRedisURL               = "COUT_REDIS_URL"
	EnvJWTSecret              = "COUT_JWT_SECRET"
	EnvJWTIssuer              = "COUT_JWT_ISSUER"
	EnvJWTExpMins             = "COUT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "COUT_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "COUT_GCP_PROJECT_ID"
	EnvPubSubJobsTopic        = "COUT_PUBSUB_JOBS_TOPIC"
	EnvPubSubJobsSub          = "COUT_PUBSUB_JOBS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
