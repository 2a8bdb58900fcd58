package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"
)

//go:embed catalog.cue
var catalogSchema string

// Store is one entry of the target-store catalog.
type Store struct {
	Key             string  `json:"key"`
	URL             string  `json:"url"`
	Token           string  `json:"token,omitempty"`
	TokenEnv        string  `json:"token_env,omitempty"`
	Language        string  `json:"language"`
	PriceMultiplier float64 `json:"price_multiplier"`
	CollectionID    string  `json:"collection_id,omitempty"`
}

// Multiplier returns the price multiplier as a decimal.
func (s Store) Multiplier() decimal.Decimal {
	return decimal.NewFromFloat(s.PriceMultiplier)
}

// ResolveToken returns the inline token, or the value of TokenEnv.
func (s Store) ResolveToken(getenv func(string) string) (string, error) {
	if s.Token != "" {
		return s.Token, nil
	}
	if s.TokenEnv == "" {
		return "", fmt.Errorf("store %s: neither token nor token_env is set", s.Key)
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	tok := getenv(s.TokenEnv)
	if tok == "" {
		return "", fmt.Errorf("store %s: environment variable %s is empty", s.Key, s.TokenEnv)
	}
	return tok, nil
}

// Catalog is the validated list of target stores, sorted by key.
type Catalog struct {
	Stores []Store
}

// Keys returns the store keys in order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.Stores))
	for i, s := range c.Stores {
		keys[i] = s.Key
	}
	return keys
}

// Store returns the entry for key.
func (c *Catalog) Store(key string) (Store, bool) {
	for _, s := range c.Stores {
		if s.Key == key {
			return s, true
		}
	}
	return Store{}, false
}

// LoadCatalog reads and validates a CUE store catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store catalog: %w", err)
	}
	return ParseCatalog(src, path)
}

// ParseCatalog validates src against the catalog schema. filename is used
// in error positions only.
func ParseCatalog(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(catalogSchema, cue.Filename("catalog.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("parse store catalog: %w", err)
	}

	value := schema.Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid store catalog: %w", err)
	}

	storesVal := value.LookupPath(cue.ParsePath("stores"))
	if !storesVal.Exists() {
		return nil, fmt.Errorf("invalid store catalog: no stores")
	}
	iter, err := storesVal.List()
	if err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}

	cat := &Catalog{}
	seen := make(map[string]bool)
	for iter.Next() {
		var s Store
		if err := iter.Value().Decode(&s); err != nil {
			return nil, fmt.Errorf("decode store %s: %w", iter.Selector(), err)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("invalid store catalog: store %s listed twice", s.Key)
		}
		seen[s.Key] = true
		cat.Stores = append(cat.Stores, s)
	}
	if len(cat.Stores) == 0 {
		return nil, fmt.Errorf("invalid store catalog: no stores")
	}

	sort.Slice(cat.Stores, func(i, j int) bool { return cat.Stores[i].Key < cat.Stores[j].Key })
	return cat, nil
}
