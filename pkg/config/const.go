package config

const (
	// EnvPrefix namespaces every environment variable consumed by the app.
	EnvPrefix = "shopline"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SHOPLINE_DB_DSN"
	EnvDBHost = "SHOPLINE_DB_HOST"
	EnvDBUser = "SHOPLINE_DB_USER"
	EnvDBName = "SHOPLINE_DB_NAME"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
