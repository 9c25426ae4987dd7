package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TIMEBILL_DATABASE_PATH
const EnvPrefix = "TIMEBILL"

type Config struct {
	// Database settings
	Database DatabaseConfig `yaml:"database" toml:"database"`

	// Invoice settings
	Invoice InvoiceConfig `yaml:"invoice" toml:"invoice"`

	// User info for invoices; ID is the local owner identity
	User UserConfig `yaml:"user" toml:"user"`

	// HTTP API settings
	Server ServerConfig `yaml:"server" toml:"server"`

	// How the API resolves request owners
	Identity IdentityConfig `yaml:"identity" toml:"identity"`
}

type DatabaseConfig struct {
	Path      string `yaml:"path" toml:"path"`           // Path to SQLite database
	Encrypted bool   `yaml:"encrypted" toml:"encrypted"` // Open with SQLCipher using the keyring key
}

type InvoiceConfig struct {
	DefaultDueDays          int    `yaml:"default_due_days" toml:"default_due_days"`                   // Days until invoice due
	DefaultTaxRate          string `yaml:"default_tax_rate" toml:"default_tax_rate"`                   // Fraction as decimal text ("0.0825" = 8.25%)
	OutputDir               string `yaml:"output_dir" toml:"output_dir"`                               // Directory for generated PDFs
	NumberPrefix            string `yaml:"number_prefix" toml:"number_prefix"`                         // Invoice number prefix (e.g., "INV")
	PaymentTerms            string `yaml:"payment_terms" toml:"payment_terms"`                         // Default payment terms text
	StrictStatusTransitions bool   `yaml:"strict_status_transitions" toml:"strict_status_transitions"` // Enforce the status transition table
}

type UserConfig struct {
	ID      string `yaml:"id" toml:"id"`
	Name    string `yaml:"name" toml:"name"`
	Email   string `yaml:"email" toml:"email"`
	Address string `yaml:"address" toml:"address"`
	Phone   string `yaml:"phone" toml:"phone"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr" toml:"addr"`
	MetricsEnabled bool   `yaml:"metrics_enabled" toml:"metrics_enabled"`
	RequestTimeout string `yaml:"request_timeout" toml:"request_timeout"` // Go duration, e.g. "30s"
}

type IdentityConfig struct {
	Header             string `yaml:"header" toml:"header"`
	SharedSecretHeader string `yaml:"shared_secret_header" toml:"shared_secret_header"`
	SharedSecret       string `yaml:"shared_secret" toml:"shared_secret"`
}

// DefaultDir returns ~/.config/timebill
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		return filepath.Join(".", ".config", "timebill")
	}
	return filepath.Join(homeDir, ".config", "timebill")
}

// DefaultConfigPath returns ~/.config/timebill/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := DefaultDir()

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "timebill.db"),
		},
		Invoice: InvoiceConfig{
			DefaultDueDays: 30,
			DefaultTaxRate: "0",
			OutputDir:      filepath.Join(dir, "invoices"),
			NumberPrefix:   "INV",
			PaymentTerms:   "Net 30",
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			MetricsEnabled: true,
			RequestTimeout: "30s",
		},
		Identity: IdentityConfig{
			Header:             "X-Owner-ID",
			SharedSecretHeader: "X-Gateway-Secret",
		},
	}
}

// Load loads config from the given path, or defaults if the file doesn't
// exist, then applies environment overrides. Files ending in .toml are TOML;
// anything else is YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	case isTOML(path):
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// applyEnv overlays TIMEBILL_* variables onto the loaded values
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	text := map[string]*string{
		"database.path":                 &c.Database.Path,
		"invoice.default_tax_rate":      &c.Invoice.DefaultTaxRate,
		"invoice.output_dir":            &c.Invoice.OutputDir,
		"invoice.number_prefix":         &c.Invoice.NumberPrefix,
		"invoice.payment_terms":         &c.Invoice.PaymentTerms,
		"user.id":                       &c.User.ID,
		"user.name":                     &c.User.Name,
		"user.email":                    &c.User.Email,
		"server.addr":                   &c.Server.Addr,
		"server.request_timeout":        &c.Server.RequestTimeout,
		"identity.header":               &c.Identity.Header,
		"identity.shared_secret_header": &c.Identity.SharedSecretHeader,
		"identity.shared_secret":        &c.Identity.SharedSecret,
	}
	for key, dst := range text {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	bools := map[string]*bool{
		"database.encrypted":                &c.Database.Encrypted,
		"invoice.strict_status_transitions": &c.Invoice.StrictStatusTransitions,
		"server.metrics_enabled":            &c.Server.MetricsEnabled,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("invoice.default_due_days") {
		c.Invoice.DefaultDueDays = v.GetInt("invoice.default_due_days")
	}
}

// Validate checks the values the services depend on
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if c.Invoice.DefaultDueDays < 0 {
		return fmt.Errorf("invoice.default_due_days must not be negative, got %d", c.Invoice.DefaultDueDays)
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Invoice.NumberPrefix) == "" {
		return errors.New("invoice.number_prefix is required")
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	return nil
}

// TaxRate parses the default tax rate
func (c *Config) TaxRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Invoice.DefaultTaxRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invoice.default_tax_rate %q is not a decimal: %w", raw, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("invoice.default_tax_rate must not be negative, got %s", raw)
	}
	return rate, nil
}

// RequestTimeout parses the server request timeout
func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.Server.RequestTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("server.request_timeout: %w", err)
	}
	return d, nil
}

// Save writes the config to the given path in the format its extension names
func (c *Config) Save(path string) error {
	// Create parent directories if they don't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isTOML(path) {
		return toml.NewEncoder(f).Encode(c)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// EnsureDirectories creates all necessary directories (for database, invoices, etc.)
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0700); err != nil {
		return err
	}
	return os.MkdirAll(c.Invoice.OutputDir, 0755)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
