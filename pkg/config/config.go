package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port         int `mapstructure:"port"`
	BodyLimitMiB int `mapstructure:"body_limit_mib"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | memory
	URL          string `mapstructure:"url"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogQueries   bool   `mapstructure:"log_queries"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Type          string         `mapstructure:"type"` // local | s3 | supabase
	LocalPath     string         `mapstructure:"local_path"`
	SignedURLTTL  time.Duration  `mapstructure:"signed_url_ttl"`
	MaxFileMiB    int            `mapstructure:"max_file_mib"`
	S3            S3Config       `mapstructure:"s3"`
	Supabase      SupabaseConfig `mapstructure:"supabase"`
	BreakerErrors uint32         `mapstructure:"breaker_errors"`
	BreakerReset  time.Duration  `mapstructure:"breaker_reset"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
	Bucket string `mapstructure:"bucket"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// BootstrapConfig seeds the first administrator when the email is not taken.
type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
	AdminName     string `mapstructure:"admin_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bufete-backend")
	v.SetDefault("app.environment", "dev")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.body_limit_mib", 12)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("jwt.ttl", 7*24*time.Hour)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage/files")
	v.SetDefault("storage.signed_url_ttl", time.Minute)
	v.SetDefault("storage.max_file_mib", 10)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.breaker_errors", 5)
	v.SetDefault("storage.breaker_reset", 30*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("bootstrap.admin_name", "Administrator")
}

// Load reads .env, an optional config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Allow common env vars without APP_ prefix
	_ = v.BindEnv("http.port", "PORT", "APP_HTTP_PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER", "APP_DATABASE_DRIVER")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET", "APP_JWT_SECRET")
	_ = v.BindEnv("logging.level", "LOG_LEVEL", "APP_LOGGING_LEVEL")
	_ = v.BindEnv("app.environment", "APP_ENV", "APP_APP_ENVIRONMENT")
	_ = v.BindEnv("storage.type", "STORAGE_TYPE", "APP_STORAGE_TYPE")
	_ = v.BindEnv("storage.local_path", "STORAGE_LOCAL_PATH")
	_ = v.BindEnv("storage.s3.bucket", "AWS_S3_BUCKET")
	_ = v.BindEnv("storage.s3.region", "AWS_REGION")
	_ = v.BindEnv("storage.s3.access_key", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.supabase.url", "SUPABASE_URL")
	_ = v.BindEnv("storage.supabase.key", "SUPABASE_SERVICE_KEY")
	_ = v.BindEnv("storage.supabase.bucket", "SUPABASE_BUCKET")
	_ = v.BindEnv("bootstrap.admin_email", "ADMIN_EMAIL")
	_ = v.BindEnv("bootstrap.admin_password", "ADMIN_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (DATABASE_URL) is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret (JWT_SECRET) is required")
	}
	return nil
}
