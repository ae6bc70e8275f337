package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Godswillamos0/escrow-api/internal/bankdirectory"
	"github.com/Godswillamos0/escrow-api/internal/cache/rediscache"
	"github.com/Godswillamos0/escrow-api/internal/httpapi"
	"github.com/Godswillamos0/escrow-api/internal/notify"
	"github.com/Godswillamos0/escrow-api/internal/paystack"
	"github.com/Godswillamos0/escrow-api/internal/store/gormstore"
	"github.com/Godswillamos0/escrow-api/internal/store/pgstore"
	"github.com/Godswillamos0/escrow-api/internal/telemetry"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagEnvFile = "env-file"

	configKeyDatabaseURL        = "database_url"
	configKeyListenAddr         = "http_listen_addr"
	configKeyStoreDriver        = "store_driver"
	configKeyRedisURL           = "redis_url"
	configKeyPaystackSecretKey  = "paystack_secret_key"
	configKeyPaystackBaseURL    = "paystack_base_url"
	configKeyGatewayTimeout     = "gateway_timeout"
	configKeyConfirmationPolicy = "confirmation_policy"
	configKeySessionSigningKey  = "session_signing_key"
	configKeySessionIssuer      = "session_issuer"
	configKeySessionCookieName  = "session_cookie_name"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeyAdminRole          = "admin_role"
	configKeyDefaultCurrency    = "default_currency"

	defaultDatabaseURL        = "sqlite:///tmp/escrow.db"
	defaultListenAddr         = ":8080"
	defaultPaystackBaseURL    = "https://api.paystack.co"
	defaultGatewayTimeout     = 10 * time.Second
	defaultConfirmationPolicy = "single"
	defaultCurrency           = "NGN"
	defaultEnvFile            = ".env"
	defaultStoreDriver        = storeDriverGorm

	driverPostgres = "postgres"
	driverSQLite   = "sqlite"

	storeDriverGorm = "gorm"
	storeDriverPgx  = "pgx"
)

type runtimeConfig struct {
	DatabaseURL        string
	StoreDriver        string
	RedisURL           string
	PaystackSecretKey  string
	PaystackBaseURL    string
	GatewayTimeout     time.Duration
	ConfirmationPolicy ledger.ConfirmationPolicy
	DefaultCurrency    ledger.Currency
	HTTP               httpapi.Config
}

type configBinding struct {
	flag         string
	key          string
	env          string
	defaultValue string
	usage        string
}

var configBindings = []configBinding{
	{flag: "database-url", key: configKeyDatabaseURL, env: "DATABASE_URL", defaultValue: defaultDatabaseURL, usage: "PostgreSQL URL or SQLite path"},
	{flag: "http-listen-addr", key: configKeyListenAddr, env: "HTTP_LISTEN_ADDR", defaultValue: defaultListenAddr, usage: "HTTP listen address"},
	{flag: "store-driver", key: configKeyStoreDriver, env: "STORE_DRIVER", defaultValue: defaultStoreDriver, usage: "Ledger store implementation (gorm or pgx; pgx requires PostgreSQL)"},
	{flag: "redis-url", key: configKeyRedisURL, env: "REDIS_URL", usage: "Redis URL for the bank directory cache (empty disables caching)"},
	{flag: "paystack-secret-key", key: configKeyPaystackSecretKey, env: "PAYSTACK_SECRET_KEY", usage: "Paystack secret key, also used to verify webhooks"},
	{flag: "paystack-base-url", key: configKeyPaystackBaseURL, env: "PAYSTACK_BASE_URL", defaultValue: defaultPaystackBaseURL, usage: "Paystack API base URL"},
	{flag: "gateway-timeout", key: configKeyGatewayTimeout, env: "GATEWAY_TIMEOUT", defaultValue: defaultGatewayTimeout.String(), usage: "Per-call payment gateway timeout"},
	{flag: "confirmation-policy", key: configKeyConfirmationPolicy, env: "CONFIRMATION_POLICY", defaultValue: defaultConfirmationPolicy, usage: "Escrow release policy (single or dual)"},
	{flag: "session-signing-key", key: configKeySessionSigningKey, env: "SESSION_SIGNING_KEY", usage: "HS256 key for session cookies"},
	{flag: "session-issuer", key: configKeySessionIssuer, env: "SESSION_ISSUER", usage: "Expected session issuer"},
	{flag: "session-cookie-name", key: configKeySessionCookieName, env: "SESSION_COOKIE_NAME", usage: "Session cookie name"},
	{flag: "allowed-origins", key: configKeyAllowedOrigins, env: "ALLOWED_ORIGINS", usage: "Comma-separated CORS origins"},
	{flag: "admin-role", key: configKeyAdminRole, env: "ADMIN_ROLE", usage: "Session role granting admin routes"},
	{flag: "default-currency", key: configKeyDefaultCurrency, env: "DEFAULT_CURRENCY", defaultValue: defaultCurrency, usage: "Currency for new wallets"},
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "escrowd",
		Short:         "Escrow and wallet HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, viper.New(), cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagEnvFile, defaultEnvFile, "Optional dotenv file loaded before the environment")
	for _, binding := range configBindings {
		cmd.Flags().String(binding.flag, binding.defaultValue, binding.usage)
	}
	return cmd
}

func loadConfig(cmd *cobra.Command, config *viper.Viper, cfg *runtimeConfig) error {
	if err := loadEnvFile(cmd.Flags().Lookup(flagEnvFile).Value.String()); err != nil {
		return err
	}

	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	for _, binding := range configBindings {
		if err := config.BindEnv(binding.key, binding.env); err != nil {
			return err
		}
		if err := config.BindPFlag(binding.key, cmd.Flags().Lookup(binding.flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = config.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	storeDriver, err := resolveStoreDriver(config.GetString(configKeyStoreDriver), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	cfg.StoreDriver = storeDriver
	cfg.RedisURL = strings.TrimSpace(config.GetString(configKeyRedisURL))
	cfg.PaystackSecretKey = strings.TrimSpace(config.GetString(configKeyPaystackSecretKey))
	if cfg.PaystackSecretKey == "" {
		return fmt.Errorf("paystack secret key is required")
	}
	cfg.PaystackBaseURL = config.GetString(configKeyPaystackBaseURL)
	if cfg.PaystackBaseURL == "" {
		cfg.PaystackBaseURL = defaultPaystackBaseURL
	}
	cfg.GatewayTimeout = config.GetDuration(configKeyGatewayTimeout)
	if cfg.GatewayTimeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	policy, err := ledger.ParseConfirmationPolicy(config.GetString(configKeyConfirmationPolicy))
	if err != nil {
		return err
	}
	cfg.ConfirmationPolicy = policy
	currency, err := ledger.ParseCurrency(config.GetString(configKeyDefaultCurrency))
	if err != nil {
		return err
	}
	cfg.DefaultCurrency = currency

	cfg.HTTP = httpapi.Config{
		ListenAddr:        config.GetString(configKeyListenAddr),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(config.GetString(configKeyAllowedOrigins)),
		SessionSigningKey: config.GetString(configKeySessionSigningKey),
		SessionIssuer:     config.GetString(configKeySessionIssuer),
		SessionCookieName: config.GetString(configKeySessionCookieName),
		AdminRole:         config.GetString(configKeyAdminRole),
		WebhookSecret:     cfg.PaystackSecretKey,
	}
	return cfg.HTTP.Validate()
}

// resolveStoreDriver validates the store selection against the database URL.
func resolveStoreDriver(raw string, databaseURL string) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(raw))
	if driver == "" {
		driver = defaultStoreDriver
	}
	switch driver {
	case storeDriverGorm:
		return driver, nil
	case storeDriverPgx:
		databaseDriver, _, err := resolveDriver(databaseURL)
		if err != nil {
			return "", err
		}
		if databaseDriver != driverPostgres {
			return "", fmt.Errorf("store driver %q requires a postgres database url", driver)
		}
		return driver, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", raw)
	}
}

// loadEnvFile loads path into the process environment when it exists.
// Variables already set take precedence.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	gateway, err := paystack.NewClient(cfg.PaystackSecretKey,
		paystack.WithBaseURL(cfg.PaystackBaseURL),
		paystack.WithObserver(metrics),
	)
	if err != nil {
		return fmt.Errorf("paystack client: %w", err)
	}

	directoryOptions := []bankdirectory.Option{bankdirectory.WithLogger(logger)}
	if cfg.RedisURL != "" {
		cache, err := rediscache.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = cache.Close() }()
		directoryOptions = append(directoryOptions, bankdirectory.WithCache(cache))
	}
	directory, err := bankdirectory.New(gateway, directoryOptions...)
	if err != nil {
		return fmt.Errorf("bank directory: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, gormDB)
	if err != nil {
		return err
	}
	defer closeStore()

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(store, clock,
		ledger.WithGateway(gateway),
		ledger.WithGatewayTimeout(cfg.GatewayTimeout),
		ledger.WithNotifier(notify.NewLogNotifier(logger)),
		ledger.WithOperationLogger(telemetry.NewOperationLogger(logger, metrics)),
		ledger.WithConfirmationPolicy(cfg.ConfirmationPolicy),
		ledger.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	handler, err := httpapi.NewHandler(logger, service, directory, cfg.HTTP)
	if err != nil {
		return fmt.Errorf("http handler init: %w", err)
	}
	logger.Info("escrowd starting",
		zap.String("database_driver", driver),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("redis_cache", cfg.RedisURL != ""),
		zap.String("confirmation_policy", cfg.ConfirmationPolicy.String()),
	)
	return httpapi.Run(ctx, handler, registry)
}

// openStore returns the ledger store for cfg.StoreDriver. The schema is
// always created through gorm first.
func openStore(ctx context.Context, cfg *runtimeConfig, gormDB *gorm.DB) (ledger.Store, func(), error) {
	if cfg.StoreDriver != storeDriverPgx {
		return gormstore.New(gormDB), func() {}, nil
	}
	pool, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx store: %w", err)
	}
	return pgstore.New(pool), pool.Close, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "escrow.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema creates or updates the tables on either driver.
func prepareSchema(db *gorm.DB, driver string) error {
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate %s: %w", driver, err)
	}
	return nil
}
