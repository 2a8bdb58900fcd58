package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/discovery"
	"github.com/roach88/storeclone/internal/engine"
	"github.com/roach88/storeclone/internal/ledger"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
	"github.com/roach88/storeclone/internal/store"
	"github.com/roach88/storeclone/internal/testutil"
)

// Sheet names used by scenario ledgers.
const (
	ActiveSheet  = "Sheet1"
	ArchiveSheet = "Sheet2"
)

// SourceFirstID is the id the source store would give to created products.
// Scenarios never create products in the source.
const SourceFirstID = 1

// Sheet is a snapshot of one ledger sheet.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Result is the outcome of running a scenario.
type Result struct {
	Name    string
	Pass    bool
	Errors  []string
	Reports []*engine.Report

	// Sheets holds the active and archive sheets after the last step.
	Sheets []Sheet

	// Targets holds every target store keyed by store key.
	Targets map[string]*testutil.Platform

	transcript []string
}

func (r *Result) failf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) note(format string, args ...any) {
	r.transcript = append(r.transcript, fmt.Sprintf(format, args...))
}

// Options tunes a scenario run.
type Options struct {
	// Logger receives engine logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// harness owns the fakes and the orchestrator of one scenario. Every step
// goes through the same orchestrator so outcome sequence numbers keep
// increasing across runs.
type harness struct {
	scenario   *Scenario
	store      *store.Store
	ledger     *ledger.Ledger
	source     *testutil.Platform
	orders     *testutil.Orders
	translator *testutil.Translator
	targets    map[string]*testutil.Platform
	orch       *engine.Orchestrator
	clock      *testutil.FakeClock
}

// Run executes a scenario against the real orchestrator, an in-memory
// ledger and in-memory stores.
//
// The returned error covers setup problems only. Failed expectations and
// assertions are reported through Result.Pass and Result.Errors.
func Run(ctx context.Context, s *Scenario, opts ...Options) (*Result, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	h, err := setup(ctx, s, o.Logger)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := &Result{Name: s.Name, Targets: h.targets}
	for i, step := range s.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, name := range []string{ActiveSheet, ArchiveSheet} {
		header, rows, err := h.store.ReadAll(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		result.Sheets = append(result.Sheets, Sheet{Name: name, Header: header, Rows: rows})
	}

	for i, a := range s.Assertions {
		if err := h.check(ctx, a); err != nil {
			result.failf("assertions[%d] %s: %v", i, a.Type, err)
		}
	}
	result.Pass = len(result.Errors) == 0
	return result, nil
}

func setup(ctx context.Context, s *Scenario, logger *zap.Logger) (*harness, error) {
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	h := &harness{
		scenario:   s,
		store:      st,
		source:     testutil.NewPlatform(SourceFirstID),
		translator: testutil.NewTranslator(),
		targets:    make(map[string]*testutil.Platform, len(s.Stores)),
		clock:      testutil.NewFakeClock(s.Clock()),
	}
	if err := h.build(ctx, logger); err != nil {
		st.Close()
		return nil, err
	}
	return h, nil
}

func (h *harness) build(ctx context.Context, logger *zap.Logger) error {
	s := h.scenario
	policy := retry.New(
		retry.WithJitter(func() float64 { return 0 }),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
		retry.WithLogger(logger),
	)

	sourceProducts, err := toProducts(s.Source.Products)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	h.source.Seed(sourceProducts...)
	h.orders = testutil.NewOrders(toOrders(s.Source.Orders, h.clock.Now()))

	keys := make([]string, 0, len(s.Stores))
	targets := make([]engine.Target, 0, len(s.Stores))
	for i, def := range s.Stores {
		first := def.FirstID
		if first == 0 {
			first = 2000 + 1000*int64(i)
		}
		p := testutil.NewPlatform(first)
		p.Phantom = def.Phantom
		seeded, err := toProducts(def.Products)
		if err != nil {
			return fmt.Errorf("store %s: %w", def.Key, err)
		}
		p.Seed(seeded...)
		h.targets[def.Key] = p

		mult := decimal.NewFromInt(1)
		if def.Multiplier != "" {
			if mult, err = decimal.NewFromString(def.Multiplier); err != nil {
				return fmt.Errorf("store %s: multiplier: %w", def.Key, err)
			}
		}
		keys = append(keys, def.Key)
		targets = append(targets, engine.Target{
			Key:          def.Key,
			Language:     def.Language,
			Multiplier:   mult,
			CollectionID: def.CollectionID,
			Platform:     p,
		})
	}

	schema, err := ledger.NewSchema(keys)
	if err != nil {
		return err
	}
	h.ledger = ledger.New(h.store, schema,
		ledger.WithRetry(policy),
		ledger.WithSheets(ActiveSheet, ArchiveSheet),
		ledger.WithLogger(logger),
	)
	if err := h.seedLedger(ctx); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}

	h.orch, err = engine.New(h.ledger, h.source, h.translator, targets,
		engine.WithDiscoverer(discovery.New(h.orders, discovery.WithRetry(policy), discovery.WithLogger(logger))),
		engine.WithRetry(policy),
		engine.WithLogger(logger),
		engine.WithNow(h.clock.Now),
		engine.WithRunIDs(testutil.NewFixedRunID(s.RunID)),
		engine.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return err
}

func (h *harness) seedLedger(ctx context.Context) error {
	if _, err := h.ledger.EnsureHeader(ctx); err != nil {
		return err
	}
	if len(h.scenario.Ledger) == 0 {
		return nil
	}

	rows := make([]commerce.SoldProduct, len(h.scenario.Ledger))
	for i, r := range h.scenario.Ledger {
		rows[i] = commerce.SoldProduct{ProductID: r.ProductID, Title: r.Title, SalesCount: r.Sales}
	}
	if _, err := h.ledger.AddCandidates(ctx, rows); err != nil {
		return err
	}
	for _, r := range h.scenario.Ledger {
		for key, cell := range r.Stores {
			st, err := status.Parse(cell.Status)
			if err != nil {
				return err
			}
			u := ledger.Update{Status: st, GID: cell.GID, Title: cell.Title}
			if err := h.ledger.UpdateStore(ctx, r.ProductID, key, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Run != nil:
		return h.run(ctx, i, step.Run, result)
	case step.Reset != nil:
		prev, err := h.ledger.Reset(ctx, step.Reset.ProductID, step.Reset.Store, step.Reset.ClearClone)
		if err != nil {
			result.note("reset %s/%s failed: %v", step.Reset.ProductID, step.Reset.Store, err)
			result.failf("steps[%d] reset: %v", i, err)
			return nil
		}
		result.note("reset %s/%s %s -> %s", step.Reset.ProductID, step.Reset.Store, prev, status.Pending)
	case step.Fail != nil:
		h.inject(step.Fail, result)
	}
	return nil
}

func (h *harness) run(ctx context.Context, i int, rs *RunStep, result *Result) error {
	req := engine.RunRequest{
		ProductIDs:    rs.ProductIDs,
		Stores:        rs.Stores,
		MinSales:      rs.MinSales,
		SkipDiscovery: rs.SkipDiscovery,
	}
	if rs.From != "" {
		w, err := discovery.NewWindow(rs.From, rs.To)
		if err != nil {
			return err
		}
		req.Window = w
	}

	report, err := h.orch.Run(ctx, req)
	result.Reports = append(result.Reports, report)
	result.note("%s", runLine(len(result.Reports), report))
	for _, o := range report.Outcomes {
		result.note("%s", outcomeLine(o))
	}
	if err != nil {
		result.note("  error: %v", err)
	}

	exp := rs.Expect
	if exp == nil {
		exp = &RunExpect{}
	}
	switch {
	case exp.Error == "" && err != nil:
		result.failf("steps[%d] run: unexpected error: %v", i, err)
	case exp.Error != "" && err == nil:
		result.failf("steps[%d] run: expected error containing %q", i, exp.Error)
	case exp.Error != "" && !strings.Contains(err.Error(), exp.Error):
		result.failf("steps[%d] run: error %q does not contain %q", i, err, exp.Error)
	}
	checkCount(result, i, "succeeded", exp.Succeeded, report.Succeeded)
	checkCount(result, i, "failed", exp.Failed, report.Failed)
	checkCount(result, i, "skipped", exp.Skipped, report.Skipped)

	// Keep runs on distinct days so default windows move forward.
	h.clock.Advance(24 * time.Hour)
	return nil
}

func checkCount(result *Result, step int, name string, want *int, got int) {
	if want != nil && *want != got {
		result.failf("steps[%d] run: %s = %d, want %d", step, name, got, *want)
	}
}

func (h *harness) inject(f *FailStep, result *Result) {
	if f.Target == "translator" {
		field := commerce.FieldType(f.Field)
		if f.Clear {
			h.translator.FailField(field, nil)
			result.note("clear translator %s", f.Field)
			return
		}
		h.translator.FailField(field, fmt.Errorf("injected %s failure", f.Field))
		result.note("fail translator %s", f.Field)
		return
	}

	p := h.source
	if f.Target != "source" {
		p = h.targets[f.Target]
	}
	count := f.Count
	if count == 0 {
		count = 1
	}
	errs := make([]error, count)
	for i := range errs {
		if f.Status != 0 {
			errs[i] = &commerce.StatusError{Op: f.Method, StatusCode: f.Status}
		} else {
			errs[i] = errors.New("injected " + f.Method + " failure")
		}
	}
	p.FailNext(f.Method, errs...)
	if f.Status != 0 {
		result.note("fail %s %s x%d (http %d)", f.Target, f.Method, count, f.Status)
	} else {
		result.note("fail %s %s x%d", f.Target, f.Method, count)
	}
}

func toProducts(defs []ProductDef) ([]commerce.Product, error) {
	out := make([]commerce.Product, 0, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("products[%d]: id is required", i)
		}
		p := commerce.Product{
			ID:          d.ID,
			Handle:      d.Handle,
			Title:       d.Title,
			BodyHTML:    d.BodyHTML,
			Vendor:      d.Vendor,
			ProductType: d.ProductType,
			Tags:        d.Tags,
			Status:      "active",
		}
		for _, o := range d.Options {
			p.Options = append(p.Options, commerce.Option{Name: o.Name, Values: o.Values})
		}
		for _, v := range d.Variants {
			p.Variants = append(p.Variants, commerce.Variant{
				ID:             v.ID,
				Option1:        v.Option1,
				Option2:        v.Option2,
				Option3:        v.Option3,
				Price:          v.Price,
				CompareAtPrice: v.CompareAt,
			})
		}
		out = append(out, p)
	}
	return out, nil
}

// toOrders places every order one day before now so it falls inside the
// default discovery window.
func toOrders(defs []OrderDef, now time.Time) []commerce.Order {
	created := now.Add(-24 * time.Hour)
	out := make([]commerce.Order, len(defs))
	for i, d := range defs {
		o := commerce.Order{ID: d.ID, CreatedAt: created}
		for _, it := range d.Items {
			o.LineItems = append(o.LineItems, commerce.LineItem{ProductID: it.ProductID, Title: it.Title, Quantity: it.Quantity})
		}
		out[i] = o
	}
	return out
}
