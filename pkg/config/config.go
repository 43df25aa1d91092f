package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config      = viper.New()
	backendAddr = "127.0.0.1:8500"
	backendPath = "development" // e.g., app/<env>/<service_name>
	configType  = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Asynq struct {
		Concurrency int            `mapstructure:"CONCURRENCY"`
		Queues      map[string]int `mapstructure:"QUEUES"`
	} `mapstructure:"ASYNQ"`
	Mpesa struct {
		Environment       string        `mapstructure:"ENVIRONMENT"`
		BaseURL           string        `mapstructure:"BASE_URL"`
		ConsumerKey       string        `mapstructure:"CONSUMER_KEY"`
		ConsumerSecret    string        `mapstructure:"CONSUMER_SECRET"`
		ShortCode         string        `mapstructure:"SHORT_CODE"`
		TillNumber        string        `mapstructure:"TILL_NUMBER"`
		PassKey           string        `mapstructure:"PASS_KEY"`
		TransactionType   string        `mapstructure:"TRANSACTION_TYPE"`
		InitiatorName     string        `mapstructure:"INITIATOR_NAME"`
		InitiatorPassword string        `mapstructure:"INITIATOR_PASSWORD"`
		CertificatePath   string        `mapstructure:"CERTIFICATE_PATH"`
		CallbackURL       string        `mapstructure:"CALLBACK_URL"`
		B2CResultURL      string        `mapstructure:"B2C_RESULT_URL"`
		B2CTimeoutURL     string        `mapstructure:"B2C_TIMEOUT_URL"`
		Timeout           time.Duration `mapstructure:"TIMEOUT"`
		TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	} `mapstructure:"MPESA"`
	Referral struct {
		Tier1Rate decimal.Decimal `mapstructure:"TIER1_RATE"`
		Tier2Rate decimal.Decimal `mapstructure:"TIER2_RATE"`
		LockTTL   time.Duration   `mapstructure:"LOCK_TTL"`
	} `mapstructure:"REFERRAL"`
	Payment struct {
		MinDeposit decimal.Decimal `mapstructure:"MIN_DEPOSIT"`
	} `mapstructure:"PAYMENT"`
	Intake struct {
		MaxBodyBytes  int64         `mapstructure:"MAX_BODY_BYTES"`
		SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
		StaleAfter    time.Duration `mapstructure:"STALE_AFTER"`
		SweepBatch    int           `mapstructure:"SWEEP_BATCH"`
	} `mapstructure:"INTAKE"`
	Auth struct {
		SigningKey string        `mapstructure:"SIGNING_KEY"`
		Issuer     string        `mapstructure:"ISSUER"`
		TokenTTL   time.Duration `mapstructure:"TOKEN_TTL"`
	} `mapstructure:"AUTH"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
	Admin struct {
		Username string `mapstructure:"USERNAME"`
		Email    string `mapstructure:"EMAIL"`
		Password string `mapstructure:"PASSWORD"`
	} `mapstructure:"ADMIN"`
	InitialDeposit decimal.Decimal `mapstructure:"INITIAL_DEPOSIT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("app_name", "referralpay")
	v.SetDefault("http_server.addr", ":8080")
	v.SetDefault("http_server.read_timeout", 15*time.Second)
	v.SetDefault("http_server.write_timeout", 15*time.Second)
	v.SetDefault("http_server.idle_timeout", 60*time.Second)
	v.SetDefault("grpc_server.addr", ":9090")
	v.SetDefault("database.type", "postgres")
	v.SetDefault("asynq.concurrency", 10)
	v.SetDefault("asynq.queues", map[string]int{"critical": 10, "default": 5, "low": 3})
	v.SetDefault("mpesa.environment", "sandbox")
	v.SetDefault("mpesa.transaction_type", "CustomerBuyGoodsOnline")
	v.SetDefault("mpesa.timeout", 30*time.Second)
	v.SetDefault("mpesa.token_ttl", 55*time.Minute)
	v.SetDefault("referral.tier1_rate", "0.30")
	v.SetDefault("referral.tier2_rate", "0.10")
	v.SetDefault("referral.lock_ttl", 10*time.Second)
	v.SetDefault("payment.min_deposit", "50")
	v.SetDefault("intake.max_body_bytes", 1<<20)
	v.SetDefault("intake.sweep_interval", time.Minute)
	v.SetDefault("intake.stale_after", 5*time.Minute)
	v.SetDefault("intake.sweep_batch", 100)
	v.SetDefault("auth.issuer", "referralpay")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
}

func unmarshal(v *viper.Viper, cfg *Config) error {
	return v.Unmarshal(cfg, viper.DecodeHook(decimalHook()))
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed read config", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := unmarshal(config, &cfg); err != nil {
		zap.L().Error("failed unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := overlaySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

// Source picks where configuration comes from: a remote key/value store when
// REMOTE_CONFIG_PROVIDER is set, the local file and environment otherwise.
func Source() fx.Option {
	if _, ok := remoteSource(); ok {
		return RemoteModule
	}
	return Module
}

type remote struct {
	provider string
	addr     string
	path     string
}

func remoteSource() (remote, bool) {
	r := remote{provider: os.Getenv("REMOTE_CONFIG_PROVIDER"), addr: backendAddr, path: backendPath}
	if r.provider == "" {
		return r, false
	}
	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		r.addr = v
	}
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		r.path = v
	}
	return r, true
}

// LoadRemote reads the config document once at startup. Secrets are never
// stored remotely and always come from vault.
func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("remote config requires vault for secrets")
		os.Exit(1)
	}

	src, _ := remoteSource()
	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(src.provider, src.addr, src.path); err != nil {
		zap.L().Error("failed add remote config provider", zap.String("provider", src.provider), zap.Error(err))
		os.Exit(1)
	}
	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed read remote config", zap.String("addr", src.addr), zap.String("path", src.path), zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := unmarshal(config, &cfg); err != nil {
		zap.L().Error("failed unmarshal remote config", zap.Error(err))
		os.Exit(1)
	}

	if err := overlaySecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	return &cfg
}

func overlaySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.Auth.SigningKey = get("auth_signing_key", cfg.Auth.SigningKey)
	cfg.Mpesa.ConsumerKey = get("mpesa_consumer_key", cfg.Mpesa.ConsumerKey)
	cfg.Mpesa.ConsumerSecret = get("mpesa_consumer_secret", cfg.Mpesa.ConsumerSecret)
	cfg.Mpesa.PassKey = get("mpesa_pass_key", cfg.Mpesa.PassKey)
	cfg.Mpesa.InitiatorPassword = get("mpesa_initiator_password", cfg.Mpesa.InitiatorPassword)
	cfg.Minio.SecretKey = get("minio_secret_key", cfg.Minio.SecretKey)
	return nil
}
