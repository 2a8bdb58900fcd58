package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/config"
	"github.com/roach88/storeclone/internal/testutil"
	"github.com/roach88/storeclone/internal/translate"
)

// fakeStore serves products and orders from memory.
type fakeStore struct {
	*testutil.Platform
	*testutil.Orders
}

const (
	sourceURL = "https://source.example.com"
	deURL     = "https://de.example.com"
	esURL     = "https://es.example.com"
)

// cliEnv is a config file, a store catalog and in-memory stores wired
// into the command tree through Deps.
type cliEnv struct {
	dir        string
	configPath string
	source     *testutil.Platform
	orders     *testutil.Orders
	targets    map[string]*testutil.Platform
	translator *testutil.Translator
	providers  translate.Providers
	connected  map[string]string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	e := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "storeclone.yaml"),
		source:     testutil.NewPlatform(1),
		targets: map[string]*testutil.Platform{
			deURL: testutil.NewPlatform(2000),
			esURL: testutil.NewPlatform(3000),
		},
		translator: testutil.NewTranslator(),
		connected:  make(map[string]string),
	}
	e.providers = translate.Providers{commerce.MethodDictionary: e.translator}

	e.source.Seed(commerce.Product{
		ID:     "1001",
		Handle: "linen-shirt",
		Title:  "Brand | Linen Shirt",
		Tags:   []string{"linen"},
		Variants: []commerce.Variant{
			{ID: "50", Price: "23.50"},
		},
	})
	e.orders = testutil.NewOrders([]commerce.Order{
		{ID: "9001", LineItems: []commerce.LineItem{{ProductID: "1001", Title: "Brand | Linen Shirt", Quantity: 2}}},
		{ID: "9002", LineItems: []commerce.LineItem{{ProductID: "1002", Title: "Brand | Canvas Tote", Quantity: 1}}},
	})

	cfg := fmt.Sprintf(`ledger:
  path: %s
source:
  url: %s
  token: shpat_source
stores_file: %s
run:
  methods:
    title: dictionary
    description: dictionary
    variants: dictionary
log:
  level: debug
`, filepath.Join(dir, "ledger.db"), sourceURL, filepath.Join(dir, "stores.cue"))
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0o644))

	catalog := fmt.Sprintf(`stores: [
	{key: "store_es", url: %q, token_env: "ES_TOKEN", language: "es", price_multiplier: 2},
	{key: "store_de", url: %q, token: "shpat_de", language: "de", collection_id: "4411"},
]
`, esURL, deURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.cue"), []byte(catalog), 0o644))
	return e
}

func (e *cliEnv) deps() *Deps {
	return &Deps{
		Connect: func(storeURL, token string, _ config.SourceConfig, _ *zap.Logger) (Platform, error) {
			e.connected[storeURL] = token
			if storeURL == sourceURL {
				return fakeStore{e.source, e.orders}, nil
			}
			p, ok := e.targets[storeURL]
			if !ok {
				return nil, fmt.Errorf("no store at %s", storeURL)
			}
			return fakeStore{p, testutil.NewOrders()}, nil
		},
		Translators: func(*config.Config) (translate.Providers, error) {
			return e.providers, nil
		},
		Getenv: func(key string) string {
			if key == "ES_TOKEN" {
				return "shpat_es"
			}
			return ""
		},
		Now:       func() time.Time { return time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC) },
		Sleep:     func(context.Context, time.Duration) error { return nil },
		LogWriter: io.Discard,
	}
}

// exec runs the command tree with --config pointing at the env.
func (e *cliEnv) exec(args ...string) (string, error) {
	cmd := NewRootCommandWith(e.deps())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
