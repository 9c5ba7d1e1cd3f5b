package config

const (
	EnvPrefix = "EVDEX"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "EVDEX_DB_DSN"
	EnvDBHost = "EVDEX_DB_HOST"
	EnvDBUser = "EVDEX_DB_USER"
	EnvDBName = "EVDEX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
