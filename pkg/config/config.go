package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Rewards      RewardsConfig
	Moderation   ModerationConfig
	Images       ImagesConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	Env          string `envconfig:"EVDEX_APP_ENV" required:"true"`
	Port         string `envconfig:"EVDEX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVDEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVDEX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVDEX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVDEX_DB_DSN"`
	Driver string `envconfig:"EVDEX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVDEX_DB_HOST"`
	LegacyPort     int    `envconfig:"EVDEX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVDEX_DB_USER"`
	LegacyPassword string `envconfig:"EVDEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVDEX_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVDEX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVDEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVDEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVDEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVDEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVDEX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVDEX_REDIS_ADDR"`
	Password     string        `envconfig:"EVDEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVDEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVDEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVDEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVDEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVDEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVDEX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig carries only what is needed to verify tokens minted by the
// upstream identity service; this backend never issues them.
type JWTConfig struct {
	Secret string `envconfig:"EVDEX_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"EVDEX_JWT_ISSUER" required:"true"`
}

// RewardsConfig controls contributor credit issuance.
type RewardsConfig struct {
	ApprovalCredit int `envconfig:"EVDEX_REWARDS_APPROVAL_CREDIT" default:"10"`
}

// ModerationConfig tunes the duplicate detector and proposal clustering.
type ModerationConfig struct {
	RejectionCommentMinLen int `envconfig:"EVDEX_MODERATION_REJECTION_COMMENT_MIN_LEN" default:"10"`
	DuplicateYearWindow    int `envconfig:"EVDEX_MODERATION_DUPLICATE_YEAR_WINDOW" default:"2"`
	ClusterYearWindow      int `envconfig:"EVDEX_MODERATION_CLUSTER_YEAR_WINDOW" default:"2"`
}

// ImagesConfig locates the staged and durable prefixes the file-staging
// collaborator moves image objects between.
type ImagesConfig struct {
	StagedPrefix  string `envconfig:"EVDEX_IMAGES_STAGED_PREFIX" default:"staged/"`
	DurablePrefix string `envconfig:"EVDEX_IMAGES_DURABLE_PREFIX" default:"images/"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVDEX_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVDEX_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EVDEX_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVDEX_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ModerationTopic        string `envconfig:"EVDEX_PUBSUB_MODERATION_TOPIC" default:"evdex-moderation-events"`
	ModerationSubscription string `envconfig:"EVDEX_PUBSUB_MODERATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVDEX_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVDEX_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVDEX_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"EVDEX_CRON_INTERVAL" default:"24h"`
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
