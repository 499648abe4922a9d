package config

// EnvPrefix namespaces every environment variable consumed by the service.
const EnvPrefix = "STUDIOSTAY"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "STUDIOSTAY_APP_ENV"
	EnvPort   = "STUDIOSTAY_APP_PORT"
	EnvDBDSN  = "STUDIOSTAY_DB_DSN"
	EnvDBHost = "STUDIOSTAY_DB_HOST"
	EnvDBUser = "STUDIOSTAY_DB_USER"
	EnvDBName = "STUDIOSTAY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
