package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Fixed leading columns.
const (
	ColProductID = 0
	ColTitle     = 1
	ColSales     = 2

	fixedColumns    = 3
	columnsPerStore = 3
)

// StoreColumns holds the zero-based column indices of one store's triple.
type StoreColumns struct {
	Status int
	GID    int
	Title  int
}

// Schema is the versioned ledger layout for a fixed set of target stores.
// Stores are laid out in sorted key order, so adding a store shifts the
// columns of every store that sorts after it.
type Schema struct {
	stores []string
	index  map[string]int
}

// NewSchema builds the layout for the given store keys.
func NewSchema(storeKeys []string) (Schema, error) {
	if len(storeKeys) == 0 {
		return Schema{}, errors.New("ledger schema: no target stores")
	}

	keys := make([]string, 0, len(storeKeys))
	seen := make(map[string]bool, len(storeKeys))
	suffixes := make(map[string]string, len(storeKeys))
	for _, k := range storeKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			return Schema{}, errors.New("ledger schema: empty store key")
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		suffix := Suffix(k)
		if other, dup := suffixes[suffix]; dup {
			return Schema{}, fmt.Errorf("ledger schema: stores %q and %q share column suffix %q", other, k, suffix)
		}
		suffixes[suffix] = k
		keys = append(keys, k)
	}
	sort.Strings(keys)

	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return Schema{stores: keys, index: index}, nil
}

// MustSchema is NewSchema for fixed test inputs.
func MustSchema(storeKeys ...string) Schema {
	s, err := NewSchema(storeKeys)
	if err != nil {
		panic(err)
	}
	return s
}

// Suffix returns the column suffix for a store key: the last "_" segment,
// upper-cased ("store_es" becomes "ES").
func Suffix(storeKey string) string {
	if i := strings.LastIndex(storeKey, "_"); i >= 0 {
		storeKey = storeKey[i+1:]
	}
	return strings.ToUpper(storeKey)
}

// Stores returns the store keys in column order.
func (s Schema) Stores() []string {
	out := make([]string, len(s.stores))
	copy(out, s.stores)
	return out
}

// Has reports whether the store key is part of the layout.
func (s Schema) Has(storeKey string) bool {
	_, ok := s.index[storeKey]
	return ok
}

// Columns returns the column triple for a store.
func (s Schema) Columns(storeKey string) (StoreColumns, bool) {
	i, ok := s.index[storeKey]
	if !ok {
		return StoreColumns{}, false
	}
	base := fixedColumns + i*columnsPerStore
	return StoreColumns{Status: base, GID: base + 1, Title: base + 2}, true
}

// Width is the number of columns in the header.
func (s Schema) Width() int {
	return fixedColumns + len(s.stores)*columnsPerStore
}

// Header returns the expected header row.
func (s Schema) Header() []string {
	h := make([]string, 0, s.Width())
	h = append(h, "Product ID", "Product Title", "Sales Count")
	for _, k := range s.stores {
		suffix := Suffix(k)
		h = append(h,
			"Status "+suffix,
			"Cloned GID "+suffix,
			"Cloned Title "+suffix,
		)
	}
	return h
}

// Matches reports whether an existing header row equals the expected one.
// Trailing blank cells are ignored.
func (s Schema) Matches(actual []string) bool {
	want := s.Header()
	end := len(actual)
	for end > 0 && strings.TrimSpace(actual[end-1]) == "" {
		end--
	}
	if end != len(want) {
		return false
	}
	for i := range want {
		if strings.TrimSpace(actual[i]) != want[i] {
			return false
		}
	}
	return true
}
