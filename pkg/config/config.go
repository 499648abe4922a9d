package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Password    PasswordConfig
	Booking     BookingConfig
	Monetbil    MonetbilConfig
	PawaPay     PawaPayConfig
	Poller      PollerConfig
	StatusCache StatusCacheConfig
	Webhook     WebhookConfig
	Notifier    NotifierConfig
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
	Env          string `envconfig:"STUDIOSTAY_APP_ENV" required:"true"`
	Port         string `envconfig:"STUDIOSTAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STUDIOSTAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STUDIOSTAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STUDIOSTAY_DB_DSN"`
	Driver string `envconfig:"STUDIOSTAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STUDIOSTAY_DB_HOST"`
	LegacyPort     int    `envconfig:"STUDIOSTAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STUDIOSTAY_DB_USER"`
	LegacyPassword string `envconfig:"STUDIOSTAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"STUDIOSTAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"STUDIOSTAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STUDIOSTAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STUDIOSTAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STUDIOSTAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STUDIOSTAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STUDIOSTAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STUDIOSTAY_REDIS_ADDR"`
	Password     string        `envconfig:"STUDIOSTAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"STUDIOSTAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STUDIOSTAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STUDIOSTAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STUDIOSTAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STUDIOSTAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STUDIOSTAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type PasswordConfig struct {
	ArgonMemoryKB     int `envconfig:"STUDIOSTAY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime         int `envconfig:"STUDIOSTAY_ARGON_TIME" default:"3"`
	ArgonParallelism  int `envconfig:"STUDIOSTAY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen      int `envconfig:"STUDIOSTAY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen       int `envconfig:"STUDIOSTAY_ARGON_KEY_LEN" default:"32"`
	TempPasswordChars int `envconfig:"STUDIOSTAY_TEMP_PASSWORD_CHARS" default:"12"`
}

// BookingConfig carries pricing knobs applied when a quote is computed
// server-side. Percentages are whole numbers (12 means 12%).
type BookingConfig struct {
	ServiceFeePercent int    `envconfig:"STUDIOSTAY_BOOKING_SERVICE_FEE_PERCENT" default:"12"`
	TaxPercent        int    `envconfig:"STUDIOSTAY_BOOKING_TAX_PERCENT" default:"5"`
	Currency          string `envconfig:"STUDIOSTAY_BOOKING_CURRENCY" default:"XAF"`
}

type MonetbilConfig struct {
	ServiceKey    string `envconfig:"STUDIOSTAY_MONETBIL_SERVICE_KEY"`
	ServiceSecret string `envconfig:"STUDIOSTAY_MONETBIL_SERVICE_SECRET"`
	BaseURL       string `envconfig:"STUDIOSTAY_MONETBIL_BASE_URL" default:"https://api.monetbil.com/payment/v1"`
	NotifyURL     string `envconfig:"STUDIOSTAY_MONETBIL_NOTIFY_URL"`
}

type PawaPayConfig struct {
	APIToken string `envconfig:"STUDIOSTAY_PAWAPAY_API_TOKEN"`
	BaseURL  string `envconfig:"STUDIOSTAY_PAWAPAY_BASE_URL" default:"https://api.sandbox.pawapay.cloud"`
}

type PollerConfig struct {
	Interval time.Duration `envconfig:"STUDIOSTAY_POLLER_INTERVAL" default:"5s"`
	Horizon  time.Duration `envconfig:"STUDIOSTAY_POLLER_HORIZON" default:"5m"`

	// SimulateSuccessAfter turns on the age-based status fallback when a
	// provider cannot be queried. Zero disables simulation entirely.
	SimulateSuccessAfter time.Duration `envconfig:"STUDIOSTAY_POLLER_SIMULATE_SUCCESS_AFTER" default:"0"`
}

type StatusCacheConfig struct {
	TTL time.Duration `envconfig:"STUDIOSTAY_STATUS_CACHE_TTL" default:"24h"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STUDIOSTAY_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type NotifierConfig struct {
	FromEmail string `envconfig:"STUDIOSTAY_NOTIFIER_FROM_EMAIL" default:"bookings@studiostay.app"`
	Enabled   bool   `envconfig:"STUDIOSTAY_NOTIFIER_ENABLED" default:"true"`
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
