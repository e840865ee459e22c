package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	authConfig "github.com/iurnickita/warehouse/internal/auth/config"
	handlerConfig "github.com/iurnickita/warehouse/internal/handler/config"
	loggerConfig "github.com/iurnickita/warehouse/internal/logger/config"
	serviceConfig "github.com/iurnickita/warehouse/internal/service/config"
	storeConfig "github.com/iurnickita/warehouse/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config
	Auth    authConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
	// IssueToken выпустить токен для сотрудника и выйти
	IssueToken string
}

func GetConfig() (Config, error) {
	// .env необязателен
	_ = godotenv.Load()
	return parse(os.Args[1:], os.LookupEnv)
}

func parse(args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("warehouse", flag.ContinueOnError)

	fs.StringVar(&cfg.Handler.ServerAddr, "a", "localhost:8080", "server address")
	fs.StringVar(&cfg.Handler.RateLimit, "rate-limit", "100-S", "requests per client address, empty to disable")
	fs.StringVar(&cfg.Store.DBDsn, "d", "", "PostgreSQL DSN, empty for in-memory store")
	fs.StringVar(&cfg.Logger.LogLevel, "l", "info", "log level")
	fs.BoolVar(&cfg.Logger.Development, "dev", false, "console log output")
	fs.StringVar(&cfg.Auth.JWTSecret, "jwt-secret", "", "JWT signing secret, empty disables authentication")
	fs.DurationVar(&cfg.Auth.TokenTTL, "token-ttl", 12*time.Hour, "issued token lifetime")
	fs.StringVar(&cfg.Service.RedisAddr, "redis", "", "Redis address for cache and locks")
	fs.DurationVar(&cfg.Service.LockTTL, "lock-ttl", 30*time.Second, "shipment lock lifetime")
	fs.DurationVar(&cfg.Service.ReportInterval, "report-interval", time.Minute, "failed releases report interval")
	fs.StringVar(&cfg.Service.Billing.StorageRatePerBox, "storage-rate", "0.500", "default storage rate per box per day")
	fs.StringVar(&cfg.Service.Billing.TaxRate, "tax-rate", "0", "default tax rate, percent")
	fs.IntVar(&cfg.Service.Billing.GracePeriodDays, "grace-days", 0, "default free storage days")
	fs.StringVar(&cfg.Service.Billing.Currency, "currency", "KWD", "default currency")
	fs.StringVar(&cfg.Service.Billing.MinimumCharge, "minimum-charge", "0", "default minimum storage charge")
	fs.BoolVar(&cfg.Service.Billing.RequireIDVerification, "require-id", false, "require collector ID on release")
	fs.BoolVar(&cfg.Service.Billing.RequireReleasePhotos, "require-photos", false, "require release photos")
	fs.StringVar(&cfg.IssueToken, "issue-token", "", "print a token for the user code and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	env := envReader{lookup: lookupEnv}
	env.str("RUN_ADDRESS", &cfg.Handler.ServerAddr)
	env.str("RATE_LIMIT", &cfg.Handler.RateLimit)
	env.str("DATABASE_URI", &cfg.Store.DBDsn)
	env.str("LOG_LEVEL", &cfg.Logger.LogLevel)
	env.boolean("LOG_DEV", &cfg.Logger.Development)
	env.str("JWT_SECRET", &cfg.Auth.JWTSecret)
	env.duration("TOKEN_TTL", &cfg.Auth.TokenTTL)
	env.str("REDIS_ADDR", &cfg.Service.RedisAddr)
	env.duration("LOCK_TTL", &cfg.Service.LockTTL)
	env.duration("REPORT_INTERVAL", &cfg.Service.ReportInterval)
	env.str("STORAGE_RATE_PER_BOX", &cfg.Service.Billing.StorageRatePerBox)
	env.str("TAX_RATE", &cfg.Service.Billing.TaxRate)
	env.integer("GRACE_PERIOD_DAYS", &cfg.Service.Billing.GracePeriodDays)
	env.str("CURRENCY", &cfg.Service.Billing.Currency)
	env.str("MINIMUM_CHARGE", &cfg.Service.Billing.MinimumCharge)
	env.boolean("REQUIRE_ID_VERIFICATION", &cfg.Service.Billing.RequireIDVerification)
	env.boolean("REQUIRE_RELEASE_PHOTOS", &cfg.Service.Billing.RequireReleasePhotos)
	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, nil
}

// envReader запоминает первую ошибку разбора.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	e.parse(key, func(v string) (err error) {
		*dst, err = strconv.Atoi(v)
		return
	})
}

func (e *envReader) boolean(key string, dst *bool) {
	e.parse(key, func(v string) (err error) {
		*dst, err = strconv.ParseBool(v)
		return
	})
}

func (e *envReader) duration(key string, dst *time.Duration) {
	e.parse(key, func(v string) (err error) {
		*dst, err = time.ParseDuration(v)
		return
	})
}

func (e *envReader) parse(key string, fn func(string) error) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	if err := fn(v); err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}
