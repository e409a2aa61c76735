package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/orbit"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var categoryNumberRe = regexp.MustCompile(`^\d{3}$`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	Taxonomy TaxonomyConfig    `yaml:"taxonomy"`
	Watcher  WatcherConfig     `yaml:"watcher"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Taxonomy.Validate(); err != nil {
		return err
	}
	if err := c.Watcher.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration. When LogFile is
// set, logs are also written to a file rotated by size.
type ApplicationConfig struct {
	LogLevel   slog.Level `yaml:"log_level"`
	LogFile    string     `yaml:"log_file"`
	MaxSizeMB  int        `yaml:"max_size_mb"`
	MaxBackups int        `yaml:"max_backups"`
	MaxAgeDays int        `yaml:"max_age_days"`
	HTTP       HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory. TemplatesDir is
// vault-relative; documents inside it are never reconciled.
type VaultConfig struct {
	Path         string `yaml:"path"`
	TemplatesDir string `yaml:"templates_dir"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// TaxonomyConfig holds the category list and numbering rules. Strict refuses
// to guess a category for unresolvable references.
type TaxonomyConfig struct {
	Categories []models.Category `yaml:"categories"`
	Increment  int               `yaml:"increment"`
	Strict     bool              `yaml:"strict"`
}

// Validate validates the taxonomy configuration.
func (c *TaxonomyConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Categories, validation.Required),
		validation.Field(&c.Increment, validation.Required, validation.Min(1), validation.Max(99)),
	); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		if err := validation.ValidateStruct(cat,
			validation.Field(&cat.Number, validation.Required, validation.Match(categoryNumberRe)),
			validation.Field(&cat.Name, validation.Required),
		); err != nil {
			return fmt.Errorf("taxonomy: category %d: %w", i, err)
		}
		if seen[cat.Number] {
			return fmt.Errorf("taxonomy: duplicate category number %s", cat.Number)
		}
		seen[cat.Number] = true
	}
	return nil
}

// WatcherConfig holds the reconciliation timing.
type WatcherConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	MinAge   time.Duration `yaml:"min_age"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.MinAge, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// DefaultCategories is the stock ORBIT taxonomy.
func DefaultCategories() []models.Category {
	return []models.Category{
		{Number: "000", Name: "Origins"},
		{Number: "100", Name: "Self"},
		{Number: "200", Name: "Health"},
		{Number: "300", Name: "Philosophy"},
		{Number: "400", Name: "Expression"},
		{Number: "500", Name: "Culture"},
		{Number: "600", Name: "People"},
		{Number: "700", Name: "Environment"},
		{Number: "800", Name: "Work_systems"},
		{Number: "900", Name: "Meta_resources"},
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:   slog.LevelInfo,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:         "./vault",
			TemplatesDir: "templates",
		},
		Taxonomy: TaxonomyConfig{
			Categories: DefaultCategories(),
			Increment:  10,
		},
		Watcher: WatcherConfig{
			Debounce: orbit.DefaultDebounce,
			MinAge:   orbit.DefaultMinAge,
		},
		SQLite: SQLiteConfig{
			Path: "./orbit.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
