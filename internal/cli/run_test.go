package cli

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/translate"
)

func TestRunCommand_EndToEnd(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec("run", "--min-sales", "2")
	require.NoError(t, err, out)

	assert.Contains(t, out, "(window 2024-03-04..2024-03-10)")
	assert.Contains(t, out, "Discovered 1, added 1, processed 1 products")
	assert.Contains(t, out, "Pairs: 2 succeeded, 0 failed, 0 skipped")
	assert.Contains(t, out, "Archived: 1001")
	assert.Contains(t, out, "PENDING -> DONE_ES")
	assert.Contains(t, out, "PENDING -> DONE_DE")

	assert.Equal(t, "shpat_source", env.connected[sourceURL])
	assert.Equal(t, "shpat_es", env.connected[esURL])
	assert.Equal(t, "shpat_de", env.connected[deURL])

	es, ok := env.targets[esURL].Product("3000")
	require.True(t, ok)
	assert.Equal(t, "[es] Brand | Linen Shirt", es.Title)
	require.Len(t, es.Variants, 1)
	assert.Equal(t, "49.99", es.Variants[0].Price)
	assert.False(t, commerce.HasTag(es.Tags, commerce.CloneMarkerTag))

	de, ok := env.targets[deURL].Product("2000")
	require.True(t, ok)
	assert.Equal(t, "23.50", de.Variants[0].Price)
	assert.Equal(t, []string{"2000"}, env.targets[deURL].Collection("4411"))

	out, err = env.exec("run", "--min-sales", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Discovered 1, added 0, processed 0 products")
	assert.Len(t, env.targets[esURL].Products(), 1)
}

func TestRunCommand_FailuresExitOne(t *testing.T) {
	env := newCLIEnv(t)
	env.translator.FailField(commerce.FieldTitle, errors.New("quota exceeded"))

	out, err := env.exec("run", "--min-sales", "2", "--store", "store_es")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 product/store pairs failed")
	assert.Contains(t, out, "PENDING -> ERROR_TRANSLATING")
	assert.Contains(t, out, "quota exceeded")

	out, err = env.exec("ledger", "reset", "1001", "--store", "store_es")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1001/store_es: ERROR_TRANSLATING -> PENDING")

	env.translator.FailField(commerce.FieldTitle, nil)
	out, err = env.exec("run", "--skip-discovery", "--store", "store_es")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PENDING -> DONE_ES")
}

func TestRunCommand_ProductIDsSkipDiscovery(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.exec("discover", "--add")
	require.NoError(t, err)
	queries := len(env.orders.Queries())

	out, err := env.exec("run", "--product-id", "1001")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Discovered 0, added 0, processed 1 products")
	assert.Len(t, env.orders.Queries(), queries, "run with --product-id must not list orders")
}

func TestRunCommand_MaxProducts(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec("run", "--max-products", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Discovered 2, added 2, processed 1 products")
	assert.Contains(t, out, "product limit reached")
}

func TestRunCommand_JSON(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec("--format", "json", "run", "--min-sales", "2")
	require.NoError(t, err, out)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			Succeeded int      `json:"succeeded"`
			Archived  []string `json:"archived"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 2, resp.Data.Succeeded)
	assert.Equal(t, []string{"1001"}, resp.Data.Archived)
}

func TestRunCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*cliEnv)
		args    []string
		wantErr string
	}{
		{
			name:    "missing provider",
			setup:   func(e *cliEnv) { e.providers = translate.Providers{} },
			args:    []string{"run"},
			wantErr: `no translation provider for method "dictionary"`,
		},
		{
			name:    "unknown store",
			args:    []string{"run", "--skip-discovery", "--store", "store_fr"},
			wantErr: "store_fr",
		},
		{
			name:    "half window",
			args:    []string{"run", "--from", "2024-03-01"},
			wantErr: "--from and --to must be given together",
		},
		{
			name:    "reversed window",
			args:    []string{"run", "--from", "2024-03-10", "--to", "2024-03-01"},
			wantErr: "invalid window",
		},
		{
			name: "invalid config",
			setup: func(e *cliEnv) {
				data, err := os.ReadFile(e.configPath)
				if err != nil {
					panic(err)
				}
				bad := strings.Replace(string(data), "level: debug", "level: loud", 1)
				if err := os.WriteFile(e.configPath, []byte(bad), 0o644); err != nil {
					panic(err)
				}
			},
			args:    []string{"run"},
			wantErr: "invalid config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			_, err := env.exec(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
