package config

// EnvPrefix is passed to envconfig; individual fields carry fully-qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "PLAYPASS_DB_DSN"
	EnvDBHost = "PLAYPASS_DB_HOST"
	EnvDBUser = "PLAYPASS_DB_USER"
	EnvDBName = "PLAYPASS_DB_NAME"

	EnvSigningKeys          = "PLAYPASS_SIGNING_KEYS"
	EnvSigningActiveVersion = "PLAYPASS_SIGNING_ACTIVE_VERSION"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
