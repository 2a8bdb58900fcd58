package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storeclone/internal/status"
)

// DefaultNow is the scenario clock when a scenario does not set one.
const DefaultNow = "2024-03-11T09:00:00Z"

// Scenario is one end-to-end workflow test: a source store, target stores,
// an initial ledger, a sequence of steps and the assertions checked after
// the last step.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Now         string      `yaml:"now,omitempty"`
	RunID       string      `yaml:"run_id,omitempty"`
	Stores      []StoreDef  `yaml:"stores"`
	Source      SourceDef   `yaml:"source"`
	Ledger      []RowDef    `yaml:"ledger,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions,omitempty"`
}

// StoreDef describes a target store.
type StoreDef struct {
	Key          string       `yaml:"key"`
	Language     string       `yaml:"language"`
	Multiplier   string       `yaml:"multiplier,omitempty"`
	CollectionID string       `yaml:"collection_id,omitempty"`
	FirstID      int64        `yaml:"first_id,omitempty"`
	Products     []ProductDef `yaml:"products,omitempty"`

	// Phantom stores acknowledge creates without keeping the product.
	Phantom bool `yaml:"phantom,omitempty"`
}

// SourceDef is the catalog and order history of the source store.
type SourceDef struct {
	Products []ProductDef `yaml:"products"`
	Orders   []OrderDef   `yaml:"orders,omitempty"`
}

// ProductDef is a product seeded into a store.
type ProductDef struct {
	ID          string       `yaml:"id"`
	Handle      string       `yaml:"handle"`
	Title       string       `yaml:"title"`
	BodyHTML    string       `yaml:"body_html,omitempty"`
	Vendor      string       `yaml:"vendor,omitempty"`
	ProductType string       `yaml:"product_type,omitempty"`
	Tags        []string     `yaml:"tags,omitempty"`
	Options     []OptionDef  `yaml:"options,omitempty"`
	Variants    []VariantDef `yaml:"variants,omitempty"`
}

// OptionDef is a product option.
type OptionDef struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// VariantDef is a product variant.
type VariantDef struct {
	ID        string `yaml:"id"`
	Option1   string `yaml:"option1,omitempty"`
	Option2   string `yaml:"option2,omitempty"`
	Option3   string `yaml:"option3,omitempty"`
	Price     string `yaml:"price"`
	CompareAt string `yaml:"compare_at,omitempty"`
}

// OrderDef is a paid source order. Every order falls inside the run window.
type OrderDef struct {
	ID    string    `yaml:"id"`
	Items []ItemDef `yaml:"items"`
}

// ItemDef is one order line.
type ItemDef struct {
	ProductID string `yaml:"product_id"`
	Title     string `yaml:"title"`
	Quantity  int    `yaml:"quantity"`
}

// RowDef is a ledger row present before the first step.
type RowDef struct {
	ProductID string             `yaml:"product_id"`
	Title     string             `yaml:"title"`
	Sales     int                `yaml:"sales"`
	Stores    map[string]CellDef `yaml:"stores,omitempty"`
}

// CellDef is one store's status triple on a seeded row.
type CellDef struct {
	Status string `yaml:"status"`
	GID    string `yaml:"gid,omitempty"`
	Title  string `yaml:"title,omitempty"`
}

// Step is exactly one of Run, Reset or Fail.
type Step struct {
	Run   *RunStep   `yaml:"run,omitempty"`
	Reset *ResetStep `yaml:"reset,omitempty"`
	Fail  *FailStep  `yaml:"fail,omitempty"`
}

// RunStep runs the orchestrator once.
type RunStep struct {
	ProductIDs    []string   `yaml:"product_ids,omitempty"`
	Stores        []string   `yaml:"stores,omitempty"`
	SkipDiscovery bool       `yaml:"skip_discovery,omitempty"`
	MinSales      int        `yaml:"min_sales,omitempty"`
	From          string     `yaml:"from,omitempty"`
	To            string     `yaml:"to,omitempty"`
	Expect        *RunExpect `yaml:"expect,omitempty"`
}

// RunExpect checks the report of a run step. Nil counts are not checked.
type RunExpect struct {
	Succeeded *int `yaml:"succeeded,omitempty"`
	Failed    *int `yaml:"failed,omitempty"`
	Skipped   *int `yaml:"skipped,omitempty"`

	// Error is a substring the run error must contain. Empty means the run
	// must not return an error.
	Error string `yaml:"error,omitempty"`
}

// ResetStep sends a pair back to PENDING the way an operator would.
type ResetStep struct {
	ProductID  string `yaml:"product_id"`
	Store      string `yaml:"store"`
	ClearClone bool   `yaml:"clear_clone,omitempty"`
}

// FailStep injects failures.
//
// Target "translator" fails every request for Field until a later step with
// Clear set. Any other target ("source" or a store key) fails the next Count
// calls of Method, with an HTTP Status when one is given.
type FailStep struct {
	Target string `yaml:"target"`
	Field  string `yaml:"field,omitempty"`
	Method string `yaml:"method,omitempty"`
	Status int    `yaml:"status,omitempty"`
	Count  int    `yaml:"count,omitempty"`
	Clear  bool   `yaml:"clear,omitempty"`
}

// Assertion types.
const (
	AssertStatus       = "status"
	AssertArchived     = "archived"
	AssertNotArchived  = "not_archived"
	AssertProductCount = "product_count"
	AssertProduct      = "product"
	AssertCollection   = "collection"
)

// Assertion checks the final ledger or a target store. Product assertions
// locate the clone through the GID the ledger recorded for the pair.
type Assertion struct {
	Type      string   `yaml:"type"`
	ProductID string   `yaml:"product_id,omitempty"`
	Store     string   `yaml:"store,omitempty"`
	Expect    string   `yaml:"expect,omitempty"`
	Count     *int     `yaml:"count,omitempty"`
	Handle    string   `yaml:"handle,omitempty"`
	Title     string   `yaml:"title,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Prices    []string `yaml:"prices,omitempty"`
	Contains  []string `yaml:"contains,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", s.Name, err)
	}
	return &s, nil
}

// Clock returns the scenario's fixed wall clock.
func (s *Scenario) Clock() time.Time {
	now := s.Now
	if now == "" {
		now = DefaultNow
	}
	t, _ := time.Parse(time.RFC3339, now)
	return t.UTC()
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if len(s.Stores) == 0 {
		return fmt.Errorf("at least one store is required")
	}
	keys := make(map[string]bool, len(s.Stores))
	for i, st := range s.Stores {
		if st.Key == "" || st.Language == "" {
			return fmt.Errorf("stores[%d]: key and language are required", i)
		}
		if keys[st.Key] {
			return fmt.Errorf("stores[%d]: duplicate key %q", i, st.Key)
		}
		keys[st.Key] = true
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, row := range s.Ledger {
		if row.ProductID == "" {
			return fmt.Errorf("ledger[%d]: product_id is required", i)
		}
		for key, cell := range row.Stores {
			if !keys[key] {
				return fmt.Errorf("ledger[%d]: unknown store %q", i, key)
			}
			if _, err := status.Parse(cell.Status); err != nil {
				return fmt.Errorf("ledger[%d].%s: %w", i, key, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, keys); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, keys); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, keys map[string]bool) error {
	n := 0
	for _, set := range []bool{step.Run != nil, step.Reset != nil, step.Fail != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of run, reset or fail is required")
	}

	switch {
	case step.Run != nil:
		for _, key := range step.Run.Stores {
			if !keys[key] {
				return fmt.Errorf("run: unknown store %q", key)
			}
		}
		if (step.Run.From == "") != (step.Run.To == "") {
			return fmt.Errorf("run: from and to must be set together")
		}
	case step.Reset != nil:
		if step.Reset.ProductID == "" || step.Reset.Store == "" {
			return fmt.Errorf("reset: product_id and store are required")
		}
	case step.Fail != nil:
		f := step.Fail
		switch {
		case f.Target == "translator":
			if f.Field == "" {
				return fmt.Errorf("fail: field is required for the translator")
			}
		case f.Target == "source" || keys[f.Target]:
			if f.Method == "" {
				return fmt.Errorf("fail: method is required for %s", f.Target)
			}
			if f.Count < 0 {
				return fmt.Errorf("fail: count must be non-negative")
			}
		default:
			return fmt.Errorf("fail: unknown target %q", f.Target)
		}
	}
	return nil
}

func validateAssertion(a Assertion, keys map[string]bool) error {
	needStore := func() error {
		if !keys[a.Store] {
			return fmt.Errorf("%s: unknown store %q", a.Type, a.Store)
		}
		return nil
	}

	switch a.Type {
	case AssertStatus:
		if a.ProductID == "" || a.Expect == "" {
			return fmt.Errorf("status: product_id and expect are required")
		}
		return needStore()
	case AssertArchived, AssertNotArchived:
		if a.ProductID == "" {
			return fmt.Errorf("%s: product_id is required", a.Type)
		}
	case AssertProductCount:
		if a.Count == nil {
			return fmt.Errorf("product_count: count is required")
		}
		return needStore()
	case AssertProduct:
		if a.ProductID == "" {
			return fmt.Errorf("product: product_id is required")
		}
		return needStore()
	case AssertCollection:
		return needStore()
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
