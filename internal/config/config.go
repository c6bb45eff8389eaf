package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Postgres PostgresConfig `envPrefix:"DB_"`
	Orders   OrdersConfig   `envPrefix:"ORDER_"`
	Auth     AuthConfig     `envPrefix:"ADMIN_"`
}

type AppConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool          `env:"LOG_PRETTY" envDefault:"false"`
	Timezone       string        `env:"TIMEZONE" envDefault:"America/Toronto"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	location *time.Location
}

// Location is the business time zone used to match orders to calendar days.
// It is resolved from Timezone by Config.Validate and defaults to UTC.
func (a AppConfig) Location() *time.Location {
	if a.location == nil {
		return time.UTC
	}
	return a.location
}

type PostgresConfig struct {
	Host            string        `env:"HOST,required"`
	Port            string        `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER,required"`
	Password        string        `env:"PASSWORD,required"`
	DBName          string        `env:"NAME,required"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"30m"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"migrations"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

type OrdersConfig struct {
	TaxRate decimal.Decimal `env:"TAX_RATE" envDefault:"0.13"`
}

// AuthConfig enables basic auth on the API when both fields are set.
type AuthConfig struct {
	Username     string `env:"USERNAME"`
	PasswordHash string `env:"PASSWORD_HASH"`
}

func (a AuthConfig) Enabled() bool {
	return a.Username != "" && a.PasswordHash != ""
}

// NewConfig loads an optional .env file from the working directory and then
// parses the process environment.
func NewConfig() (*Config, error) {
	return Load(".env")
}

func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	c.App.location = loc

	if c.Orders.TaxRate.IsNegative() || c.Orders.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("ORDER_TAX_RATE must be in [0, 1), got %s", c.Orders.TaxRate)
	}

	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD_HASH must be set together")
	}

	return nil
}
