// Package config loads service settings from defaults, an optional YAML
// file, an optional .env file and PIPEERP_* environment variables, in that
// order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Business BusinessConfig `yaml:"business"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// LoginRateLimit is the number of login attempts allowed per client IP per minute.
	LoginRateLimit int `yaml:"login_rate_limit"`
	// APIRateLimit is the number of API requests allowed per client IP per minute.
	APIRateLimit int `yaml:"api_rate_limit"`
	// SecureCookies marks the session cookie Secure; enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type SessionConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type BusinessConfig struct {
	CompanyName            string `yaml:"company_name"`
	DefaultTaxRate         string `yaml:"default_tax_rate"`
	FiscalYearStartMonth   int    `yaml:"fiscal_year_start_month"`
	QuotationValidityDays  int    `yaml:"quotation_validity_days"`
	DefaultPaymentTermDays int    `yaml:"default_payment_terms_days"`
	DocumentNumberDigits   int    `yaml:"document_number_digits"`
	AdminPassword          string `yaml:"admin_password"`
}

// TaxRate parses DefaultTaxRate. Validate guarantees it parses.
func (b BusinessConfig) TaxRate() decimal.Decimal {
	d, err := decimal.NewFromString(b.DefaultTaxRate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type JobsConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":9000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    time.Minute,
			LoginRateLimit: 5,
			APIRateLimit:   600,
		},
		Database: DatabaseConfig{Path: "pipeerp.db", MaxOpenConns: 10},
		Log:      LogConfig{Level: "info", Format: "json"},
		Session:  SessionConfig{TTL: 24 * time.Hour, IdleTimeout: 30 * time.Minute},
		Business: BusinessConfig{
			CompanyName:            "PipeERP",
			DefaultTaxRate:         "0.18",
			FiscalYearStartMonth:   4,
			QuotationValidityDays:  30,
			DefaultPaymentTermDays: 30,
			DocumentNumberDigits:   4,
		},
		Jobs: JobsConfig{SweepInterval: time.Hour},
	}
}

// Load builds a Config. path may be empty; a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("PIPEERP_ADDR", &c.Server.Addr)
	str("PIPEERP_DB_PATH", &c.Database.Path)
	str("PIPEERP_LOG_LEVEL", &c.Log.Level)
	str("PIPEERP_LOG_FORMAT", &c.Log.Format)
	str("PIPEERP_TAX_RATE", &c.Business.DefaultTaxRate)
	str("PIPEERP_COMPANY_NAME", &c.Business.CompanyName)
	str("PIPEERP_ADMIN_PASSWORD", &c.Business.AdminPassword)
	return errors.Join(
		num("PIPEERP_FISCAL_START_MONTH", &c.Business.FiscalYearStartMonth),
		num("PIPEERP_DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns),
		dur("PIPEERP_SESSION_TTL", &c.Session.TTL),
		dur("PIPEERP_SESSION_IDLE_TIMEOUT", &c.Session.IdleTimeout),
		dur("PIPEERP_SWEEP_INTERVAL", &c.Jobs.SweepInterval),
	)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	rate, err := decimal.NewFromString(c.Business.DefaultTaxRate)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("business.default_tax_rate must be a number between 0 and 1, got %q", c.Business.DefaultTaxRate))
	}
	if m := c.Business.FiscalYearStartMonth; m < 1 || m > 12 {
		errs = append(errs, fmt.Errorf("business.fiscal_year_start_month must be 1-12, got %d", m))
	}
	if c.Business.QuotationValidityDays <= 0 {
		errs = append(errs, errors.New("business.quotation_validity_days must be positive"))
	}
	if c.Business.DefaultPaymentTermDays < 0 {
		errs = append(errs, errors.New("business.default_payment_terms_days must not be negative"))
	}
	if d := c.Business.DocumentNumberDigits; d < 3 || d > 8 {
		errs = append(errs, fmt.Errorf("business.document_number_digits must be 3-8, got %d", d))
	}
	for name, d := range map[string]time.Duration{
		"session.ttl":          c.Session.TTL,
		"session.idle_timeout": c.Session.IdleTimeout,
		"jobs.sweep_interval":  c.Jobs.SweepInterval,
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Server.LoginRateLimit <= 0 {
		errs = append(errs, errors.New("server.login_rate_limit must be positive"))
	}
	if c.Server.APIRateLimit <= 0 {
		errs = append(errs, errors.New("server.api_rate_limit must be positive"))
	}
	return errors.Join(errs...)
}
