// Package config loads application settings and the target-store catalog.
//
// Settings come from a YAML file, STORECLONE_* environment variables and
// built-in defaults, in that order of precedence (environment wins). The
// store catalog is a separate CUE file checked against an embedded schema.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/translate"
)

// EnvPrefix prefixes every environment override (STORECLONE_SOURCE_TOKEN).
const EnvPrefix = "STORECLONE"

// Config is the application configuration.
type Config struct {
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Source      SourceConfig      `mapstructure:"source"`
	StoresFile  string            `mapstructure:"stores_file" validate:"required"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Run         RunConfig         `mapstructure:"run"`
	Translation TranslationConfig `mapstructure:"translation"`
	Log         LogConfig         `mapstructure:"log"`
}

// LedgerConfig locates the ledger database and its sheets.
type LedgerConfig struct {
	Path         string `mapstructure:"path" validate:"required"`
	Sheet        string `mapstructure:"sheet" validate:"required"`
	ArchiveSheet string `mapstructure:"archive_sheet" validate:"required,nefield=Sheet"`
}

// SourceConfig is the store products are copied from.
type SourceConfig struct {
	URL        string        `mapstructure:"url" validate:"required,url"`
	Token      string        `mapstructure:"token" validate:"required"`
	APIVersion string        `mapstructure:"api_version" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RetryConfig tunes the retry policy shared by ledger and platform calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

// RunConfig holds orchestrator defaults.
type RunConfig struct {
	MinSales       int           `mapstructure:"min_sales" validate:"gte=1"`
	WindowDays     int           `mapstructure:"window_days" validate:"gte=1,lte=366"`
	ProductDelay   time.Duration `mapstructure:"product_delay" validate:"gte=0"`
	MaxProducts    int           `mapstructure:"max_products" validate:"gte=0"`
	SourceLanguage string        `mapstructure:"source_language" validate:"required"`
	Instruction    string        `mapstructure:"instruction"`
	Methods        MethodsConfig `mapstructure:"methods"`
}

// MethodsConfig selects a translation provider per field group.
type MethodsConfig struct {
	Title       string `mapstructure:"title" validate:"oneof=dictionary google deepl chatgpt deepseek"`
	Description string `mapstructure:"description" validate:"oneof=dictionary google deepl chatgpt deepseek"`
	Variants    string `mapstructure:"variants" validate:"oneof=dictionary google deepl chatgpt deepseek"`
}

// TranslationConfig configures in-process translation providers.
type TranslationConfig struct {
	// Dictionary is a YAML glossary for the dictionary provider.
	Dictionary string `mapstructure:"dictionary"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output" validate:"required"`
}

var defaults = map[string]any{
	"ledger.path":             "storeclone.db",
	"ledger.sheet":            "Sheet1",
	"ledger.archive_sheet":    "Sheet2",
	"source.url":              "",
	"source.token":            "",
	"source.api_version":      "2024-01",
	"source.timeout":          30 * time.Second,
	"stores_file":             "stores.cue",
	"retry.max_attempts":      3,
	"retry.base_delay":        2 * time.Second,
	"retry.max_delay":         30 * time.Second,
	"run.min_sales":           1,
	"run.window_days":         7,
	"run.product_delay":       2 * time.Second,
	"run.max_products":        0,
	"run.source_language":     "auto",
	"run.instruction":         "",
	"run.methods.title":       string(translate.DefaultMethods.Title),
	"run.methods.description": string(translate.DefaultMethods.Description),
	"run.methods.variants":    string(translate.DefaultMethods.Variants),
	"translation.dictionary":  "",
	"log.level":               "info",
	"log.format":              "console",
	"log.output":              "stderr",
}

// Load reads path (or ./storeclone.yaml when path is empty and the file
// exists), applies environment overrides and defaults, and returns the
// result without validating it. Call Validate or ValidateLedger before use.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("storeclone")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks every section. Runs that talk to the source store need it.
func (c *Config) Validate() error {
	return validationError(validate.Struct(c))
}

// ValidateLedger checks only what ledger maintenance commands need.
func (c *Config) ValidateLedger() error {
	return validationError(validate.StructPartial(c,
		"Ledger.Path", "Ledger.Sheet", "Ledger.ArchiveSheet",
		"StoresFile",
		"Log.Level", "Log.Format", "Log.Output",
	))
}

// TranslateMethods converts the configured provider names.
func (c *Config) TranslateMethods() (translate.Methods, error) {
	var m translate.Methods
	var err error
	if m.Title, err = commerce.ParseMethod(c.Run.Methods.Title); err != nil {
		return m, fmt.Errorf("run.methods.title: %w", err)
	}
	if m.Description, err = commerce.ParseMethod(c.Run.Methods.Description); err != nil {
		return m, fmt.Errorf("run.methods.description: %w", err)
	}
	if m.Variants, err = commerce.ParseMethod(c.Run.Methods.Variants); err != nil {
		return m, fmt.Errorf("run.methods.variants: %w", err)
	}
	return m, nil
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

// ValidationError lists every failed rule.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Param != "" {
			parts[i] = fmt.Sprintf("%s (%s=%s)", f.Field, f.Tag, f.Param)
		} else {
			parts[i] = fmt.Sprintf("%s (%s)", f.Field, f.Tag)
		}
	}
	return "invalid config: " + strings.Join(parts, ", ")
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: strings.TrimPrefix(fe.StructNamespace(), "Config."),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
