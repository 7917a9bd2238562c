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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Carrier      CarrierConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SHOPLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLINE_DB_DSN"`
	Driver string `envconfig:"SHOPLINE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOPLINE_DB_HOST"`
	Port     int    `envconfig:"SHOPLINE_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPLINE_DB_USER"`
	Password string `envconfig:"SHOPLINE_DB_PASSWORD"`
	Name     string `envconfig:"SHOPLINE_DB_NAME"`
	SSLMode  string `envconfig:"SHOPLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLINE_REDIS_URL"`
	Address      string        `envconfig:"SHOPLINE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPLINE_JWT_ISSUER" default:"shopline"`
	ExpirationMinutes int    `envconfig:"SHOPLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the payment-gateway credentials and call limits.
type GatewayConfig struct {
	SigningSecret string        `envconfig:"SHOPLINE_GATEWAY_SIGNING_SECRET" required:"true"`
	Currency      string        `envconfig:"SHOPLINE_GATEWAY_CURRENCY" default:"INR"`
	CallTimeout   time.Duration `envconfig:"SHOPLINE_GATEWAY_CALL_TIMEOUT" default:"10s"`
}

// CarrierConfig holds the shipping-carrier call limits.
type CarrierConfig struct {
	CallTimeout time.Duration `envconfig:"SHOPLINE_CARRIER_CALL_TIMEOUT" default:"15s"`
	PickupSite  string        `envconfig:"SHOPLINE_CARRIER_PICKUP_SITE" default:"primary-warehouse"`
}

type CheckoutConfig struct {
	TaxRateBasisPoints int           `envconfig:"SHOPLINE_CHECKOUT_TAX_RATE_BPS" default:"0"`
	CancelWindow       time.Duration `envconfig:"SHOPLINE_CHECKOUT_CANCEL_WINDOW" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"SHOPLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"SHOPLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"SHOPLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Stream         string `envconfig:"SHOPLINE_OUTBOX_STREAM" default:"shopline.order-events"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPLINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range componentDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
