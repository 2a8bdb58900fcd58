package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storeclone/internal/commerce"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleYAML = `
ledger:
  path: /var/lib/storeclone/ledger.db
source:
  url: https://source.example.com
  token: shpat_source
retry:
  max_attempts: 5
  base_delay: 500ms
run:
  min_sales: 3
  methods:
    title: deepl
log:
  format: json
`

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "storeclone.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/storeclone/ledger.db", cfg.Ledger.Path)
	assert.Equal(t, "Sheet1", cfg.Ledger.Sheet)
	assert.Equal(t, "Sheet2", cfg.Ledger.ArchiveSheet)
	assert.Equal(t, "https://source.example.com", cfg.Source.URL)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 3, cfg.Run.MinSales)
	assert.Equal(t, 7, cfg.Run.WindowDays)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)

	require.NoError(t, cfg.Validate())

	m, err := cfg.TranslateMethods()
	require.NoError(t, err)
	assert.Equal(t, commerce.MethodDeepL, m.Title)
	assert.Equal(t, commerce.MethodDeepSeek, m.Description)
	assert.Equal(t, commerce.MethodGoogle, m.Variants)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORECLONE_SOURCE_TOKEN", "shpat_env")
	t.Setenv("STORECLONE_RUN_MAX_PRODUCTS", "4")
	t.Setenv("STORECLONE_RUN_PRODUCT_DELAY", "0s")

	cfg, err := Load(writeFile(t, "storeclone.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "shpat_env", cfg.Source.Token)
	assert.Equal(t, 4, cfg.Run.MaxProducts)
	assert.Equal(t, time.Duration(0), cfg.Run.ProductDelay)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "storeclone.db", cfg.Ledger.Path)
	assert.Equal(t, "stores.cue", cfg.StoresFile)

	require.NoError(t, cfg.ValidateLedger())

	err = cfg.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, fieldNames(verr), "Source.URL")
	assert.Contains(t, fieldNames(verr), "Source.Token")
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"same sheets", "ledger:\n  archive_sheet: Sheet1\n", "Ledger.ArchiveSheet"},
		{"too many attempts", "retry:\n  max_attempts: 11\n", "Retry.MaxAttempts"},
		{"max below base", "retry:\n  base_delay: 10s\n  max_delay: 1s\n", "Retry.MaxDelay"},
		{"zero min sales", "run:\n  min_sales: 0\n", "Run.MinSales"},
		{"unknown method", "run:\n  methods:\n    variants: babel\n", "Run.Methods.Variants"},
		{"bad level", "log:\n  level: loud\n", "Log.Level"},
		{"bad url", "source:\n  url: not a url\n", "Source.URL"},
	}

	base := "source:\n  url: https://source.example.com\n  token: t\n"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.yaml
			if tt.field != "Source.URL" {
				body = base + tt.yaml
			}
			cfg, err := Load(writeFile(t, "c.yaml", body))
			require.NoError(t, err)

			err = cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, fieldNames(verr), tt.field)
			assert.Contains(t, verr.Error(), "invalid config: ")
		})
	}
}

func TestValidateLedger_IgnoresSource(t *testing.T) {
	cfg, err := Load(writeFile(t, "c.yaml", "log:\n  format: xml\n"))
	require.NoError(t, err)

	err = cfg.ValidateLedger()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Log.Format"}, fieldNames(verr))
}

func fieldNames(e *ValidationError) []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Field
	}
	return out
}
