package config // package config loads application configuration from the environment

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; an optional YAML file named by CONFIG_FILE is
// read first and the environment overrides it.
type Config struct {
	Env  string `yaml:"env" env:"APP_ENV" env-default:"dev"`     // application environment (dev/test/prod)
	Port string `yaml:"port" env:"APP_PORT" env-default:"8090"` // port of the local companion server

	APIBaseURL  string        `yaml:"api_base_url" env:"API_BASE_URL" env-required:"true"`  // booking platform REST API
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"15s"`    // per-request timeout for API calls
	ExpirySkew  time.Duration `yaml:"token_expiry_skew" env:"TOKEN_EXPIRY_SKEW" env-default:"0s"` // treat tokens as expired this early

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`

	// CredentialStore selects the durable store: file, redis, sql or memory.
	CredentialStore      string        `yaml:"credential_store" env:"CREDENTIAL_STORE" env-default:"file"`
	CredentialFile       string        `yaml:"credential_file" env:"CREDENTIAL_FILE" env-default:".fleet/credentials.json"`
	CredentialPassphrase string        `yaml:"-" env:"CREDENTIAL_PASSPHRASE"` // seals the file store when set
	CredentialPrefix     string        `yaml:"credential_prefix" env:"CREDENTIAL_PREFIX" env-default:"fleet:session"`
	CredentialTTL        time.Duration `yaml:"credential_ttl" env:"CREDENTIAL_TTL" env-default:"0s"` // redis only; 0 keeps keys forever

	// Database settings for the sql credential store.
	DBDriver string `yaml:"db_driver" env:"DB_DRIVER" env-default:"sqlite"` // sqlite or mysql
	DBPath   string `yaml:"db_path" env:"DB_PATH" env-default:".fleet/client.db"`
	DBUser   string `yaml:"db_user" env:"DB_USER"`
	DBPass   string `yaml:"-" env:"DB_PASS"`
	DBHost   string `yaml:"db_host" env:"DB_HOST" env-default:"localhost"`
	DBPort   string `yaml:"db_port" env:"DB_PORT" env-default:"3306"`
	DBName   string `yaml:"db_name" env:"DB_NAME"`

	StripeSecretKey string `yaml:"-" env:"STRIPE_SECRET_KEY"` // card confirmation; empty disables card payments

	// Login throttling, enforced through Redis when RATE_LIMIT_REDIS is set
	// or the credential store already uses Redis.
	RateLimitRedis bool          `yaml:"rate_limit_redis" env:"RATE_LIMIT_REDIS" env-default:"false"`
	LoginLimit     int           `yaml:"login_limit" env:"LOGIN_RATE_LIMIT" env-default:"10"`
	LoginWindow    time.Duration `yaml:"login_window" env:"LOGIN_RATE_WINDOW" env-default:"1m"`

	RabbitMQURL  string `yaml:"rabbitmq_url" env:"RABBITMQ_URL"` // empty selects the log publisher
	ReceiptsPath string `yaml:"receipts_path" env:"RECEIPTS_PATH" env-default:"logs/receipts.log"`
}

// Load reads .env (when present), the optional CONFIG_FILE and the
// environment, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env is fine; real env vars still apply

	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is like Load but halts the program on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func (c Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	switch c.CredentialStore {
	case "file", "redis", "sql", "memory":
	default:
		return fmt.Errorf("invalid CREDENTIAL_STORE %q", c.CredentialStore)
	}
	if c.LoginLimit < 0 || c.LoginWindow < 0 {
		return fmt.Errorf("login rate limit must not be negative")
	}
	if c.CredentialStore == "sql" {
		switch c.DBDriver {
		case "sqlite":
		case "mysql":
			if c.DBUser == "" || c.DBName == "" {
				return fmt.Errorf("DB_USER and DB_NAME are required for mysql")
			}
		default:
			return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
		}
	}
	return nil
}

// Helper functions shared with redis.go.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}
