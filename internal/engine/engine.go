package engine

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
	"github.com/roach88/storeclone/internal/guard"
	"github.com/roach88/storeclone/internal/ledger"
	"github.com/roach88/storeclone/internal/replicate"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
	"github.com/roach88/storeclone/internal/translate"
)

// Target is one destination store as the orchestrator sees it.
type Target struct {
	Key          string
	Language     string
	Multiplier   decimal.Decimal
	CollectionID string
	Platform     commerce.Platform
}

// Orchestrator sequences the phases of every (product, store) pair.
//
// Thread-safety: Run may be called from several goroutines at once. Runs
// share the injected guard, so a product being worked on by one run is
// skipped by the others.
type Orchestrator struct {
	ledger     *ledger.Ledger
	source     commerce.Platform
	translator commerce.Translator
	targets    map[string]Target

	discoverer *discovery.Discoverer
	cloner     *replicate.Cloner
	localizer  *translate.Localizer
	guard      *guard.InFlight
	runIDs     RunIDGenerator
	seq        *Sequence
	retry      *retry.Policy
	logger     *zap.Logger

	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
	delay       time.Duration
	maxProducts int
	sourceLang  string
	instruction string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDiscoverer enables the discovery phase.
func WithDiscoverer(d *discovery.Discoverer) Option {
	return func(o *Orchestrator) { o.discoverer = d }
}

// WithCloner replaces the default replication phase.
func WithCloner(c *replicate.Cloner) Option {
	return func(o *Orchestrator) { o.cloner = c }
}

// WithLocalizer replaces the default translation phase.
func WithLocalizer(l *translate.Localizer) Option {
	return func(o *Orchestrator) { o.localizer = l }
}

// WithGuard sets the in-flight guard. Orchestrators that must not work on
// the same product at once have to share one.
func WithGuard(g *guard.InFlight) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithRunIDs sets the run id source.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *Orchestrator) { o.runIDs = g }
}

// WithRetry sets the retry policy for the default phases and for finalize.
func WithRetry(p *retry.Policy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithNow sets the wall clock used for reports and the default window.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProductDelay pauses between products.
func WithProductDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithSleep replaces the pause between products.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = f }
}

// WithMaxProducts limits how many products one run works on. Zero is unlimited.
func WithMaxProducts(n int) Option {
	return func(o *Orchestrator) { o.maxProducts = n }
}

// WithSourceLanguage sets the language passed to translators ("auto" by default).
func WithSourceLanguage(lang string) Option {
	return func(o *Orchestrator) { o.sourceLang = lang }
}

// WithInstruction sets the custom instruction passed to translators.
func WithInstruction(s string) Option {
	return func(o *Orchestrator) { o.instruction = s }
}

// New creates an Orchestrator. targets must cover exactly the stores of the
// ledger schema.
func New(l *ledger.Ledger, source commerce.Platform, translator commerce.Translator, targets []Target, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		ledger:     l,
		source:     source,
		translator: translator,
		targets:    make(map[string]Target, len(targets)),
		guard:      guard.New(),
		runIDs:     UUIDv7Generator{},
		seq:        NewSequence(),
		retry:      retry.New(),
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
		sourceLang: "auto",
	}
	for _, opt := range opts {
		opt(o)
	}

	if l == nil || source == nil {
		return nil, configError("ledger and source platform are required")
	}
	schema := l.Schema()
	for _, t := range targets {
		switch {
		case !schema.Has(t.Key):
			return nil, configError("store %q has no ledger columns", t.Key)
		case t.Platform == nil:
			return nil, configError("store %q has no platform", t.Key)
		case t.Multiplier.IsNegative():
			return nil, configError("store %q has a negative price multiplier", t.Key)
		}
		if _, dup := o.targets[t.Key]; dup {
			return nil, configError("store %q configured twice", t.Key)
		}
		if t.Multiplier.IsZero() {
			t.Multiplier = decimal.NewFromInt(1)
		}
		o.targets[t.Key] = t
	}
	for _, key := range schema.Stores() {
		if _, ok := o.targets[key]; !ok {
			return nil, configError("ledger store %q has no target configuration", key)
		}
	}

	if o.cloner == nil {
		o.cloner = replicate.New(replicate.WithRetry(o.retry), replicate.WithLogger(o.logger))
	}
	if o.localizer == nil {
		if translator == nil {
			return nil, configError("a translator is required")
		}
		o.localizer = translate.NewLocalizer(translator, translate.WithRetry(o.retry), translate.WithLogger(o.logger))
	}
	return o, nil
}

// RunRequest selects the work of one run.
type RunRequest struct {
	// ProductIDs restricts the run to these products. Empty means every
	// active ledger row. Discovery is skipped when ids are given.
	ProductIDs []string

	// Stores restricts the run to these store keys. Empty means all.
	Stores []string

	// Window is the discovery window. The zero value means the seven days
	// ending yesterday.
	Window discovery.Window

	MinSales      int
	SkipDiscovery bool
}

// pairPlan is the work decided for one (product, store) pair.
type pairPlan struct {
	store  string
	action Action
	fields ledger.StoreFields
}

type productPlan struct {
	productID string
	pairs     []pairPlan
}

// Run executes one pass over the ledger.
//
// The returned report is never nil. A non-nil error means the run stopped
// early: configuration, discovery and ledger failures abort the run, as does
// context cancellation. Failures of individual pairs are recorded in the
// ledger and in the report instead.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Report, error) {
	report := &Report{RunID: o.runIDs.Generate(), StartedAt: o.now()}
	log := o.logger.With(zap.String("run_id", report.RunID))
	defer func() { report.FinishedAt = o.now() }()

	stores, err := o.selectStores(req.Stores)
	if err != nil {
		return report, err
	}

	log.Info("run starting", zap.Strings("stores", stores), zap.Int("requested", len(req.ProductIDs)))

	if _, err := o.ledger.EnsureHeader(ctx); err != nil {
		return report, ledgerError("", "", "ensure header", err)
	}

	if o.discoverer != nil && !req.SkipDiscovery && len(req.ProductIDs) == 0 {
		if err := o.discover(ctx, req, report, log); err != nil {
			return report, err
		}
	}

	plans, err := o.plan(ctx, req.ProductIDs, stores, report)
	if err != nil {
		return report, err
	}
	log.Info("filter complete", zap.Int("products", len(plans)), zap.Int("skipped", report.Skipped))

	quota := newProductQuota(o.maxProducts)
	for i, p := range plans {
		if quota.Full() {
			o.skipAll(plans[i:], ReasonQuota, report)
			log.Info("product limit reached", zap.String("quota", quota.String()))
			break
		}
		if i > 0 && o.delay > 0 {
			if err := o.sleep(ctx, o.delay); err != nil {
				o.skipAll(plans[i:], ReasonCancelled, report)
				return report, fmt.Errorf("run %s cancelled: %w", report.RunID, err)
			}
		}
		if err := ctx.Err(); err != nil {
			o.skipAll(plans[i:], ReasonCancelled, report)
			return report, fmt.Errorf("run %s cancelled: %w", report.RunID, err)
		}
		if err := o.runProduct(ctx, p, quota, report, log); err != nil {
			return report, err
		}
	}

	archived, err := o.ledger.ArchiveCompleted(context.WithoutCancel(ctx))
	if err != nil {
		return report, ledgerError("", "", "archive sweep", err)
	}
	report.Archived = append(report.Archived, archived...)

	log.Info("run finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("archived", len(report.Archived)),
	)
	return report, nil
}

func (o *Orchestrator) selectStores(requested []string) ([]string, error) {
	all := o.ledger.Schema().Stores()
	if len(requested) == 0 {
		return all, nil
	}
	seen := make(map[string]bool, len(requested))
	for _, key := range requested {
		key = strings.TrimSpace(key)
		if _, ok := o.targets[key]; !ok {
			return nil, configError("unknown store %q", key)
		}
		seen[key] = true
	}
	// Keep ledger column order.
	var out []string
	for _, key := range all {
		if seen[key] {
			out = append(out, key)
		}
	}
	return out, nil
}

func (o *Orchestrator) discover(ctx context.Context, req RunRequest, report *Report, log *zap.Logger) error {
	w := req.Window
	if w.From.IsZero() && w.To.IsZero() {
		w = discovery.LastDays(o.now(), discovery.DefaultWindowDays)
	}
	report.Window = w.String()

	sold, err := o.discoverer.SoldProducts(ctx, w, req.MinSales)
	if err != nil {
		return &RunError{Code: ErrCodeDiscovery, Message: "discover sold products in " + w.String(), Err: err}
	}
	report.Discovered = len(sold)

	added, err := o.ledger.AddCandidates(ctx, sold)
	if err != nil {
		return ledgerError("", "", "add candidates", err)
	}
	report.Added = added
	log.Info("discovery complete", zap.String("window", w.String()), zap.Int("sold", len(sold)), zap.Int("added", len(added)))
	return nil
}

// plan is the Filter step: it reads the ledger once and decides the action
// of every requested pair. runProduct decides again from a fresh read once
// it holds the product.
func (o *Orchestrator) plan(ctx context.Context, requested []string, stores []string, report *Report) ([]productPlan, error) {
	recs, err := o.ledger.Records(ctx)
	if err != nil {
		return nil, ledgerError("", "", "read ledger", err)
	}
	archivedRecs, err := o.ledger.Archived(ctx)
	if err != nil {
		return nil, ledgerError("", "", "read archive", err)
	}

	byID := make(map[string]ledger.Record, len(recs))
	var order []string
	for _, r := range recs {
		if _, dup := byID[r.ProductID]; dup {
			continue
		}
		byID[r.ProductID] = r
		order = append(order, r.ProductID)
	}
	archived := make(map[string]bool, len(archivedRecs))
	for _, r := range archivedRecs {
		archived[r.ProductID] = true
	}

	if len(requested) > 0 {
		order = dedupe(requested)
	}

	var plans []productPlan
	for _, id := range order {
		if archived[id] {
			report.add(Outcome{Seq: o.seq.Next(), ProductID: id, Action: ActionSkip, Reason: ReasonArchived})
			continue
		}
		rec, ok := byID[id]
		if !ok {
			report.add(Outcome{Seq: o.seq.Next(), ProductID: id, Action: ActionSkip, Reason: ReasonNotInLedger})
			continue
		}

		p := productPlan{productID: id}
		for _, key := range stores {
			f := rec.Store(key)
			action, reason := decide(f)
			if action == ActionSkip {
				report.add(Outcome{
					Seq: o.seq.Next(), ProductID: id, Store: key, Action: ActionSkip,
					From: rawStatus(f), GID: f.GID, Reason: reason,
				})
				continue
			}
			p.pairs = append(p.pairs, pairPlan{store: key, action: action, fields: f})
		}
		if len(p.pairs) > 0 {
			plans = append(plans, p)
		}
	}
	return plans, nil
}

// decide maps a pair's ledger fields to the next action.
func decide(f ledger.StoreFields) (Action, string) {
	switch {
	case f.Blocking():
		return ActionSkip, ReasonBlocked
	case f.TerminalSuccess():
		return ActionSkip, ReasonTerminal
	}
	switch f.Status.Phase {
	case status.PhasePending:
		if f.GID != "" {
			return ActionResume, ""
		}
		return ActionClone, ""
	case status.PhaseCloned:
		return ActionTranslate, ""
	}
	return ActionSkip, ReasonPhaseMismatch
}

func (o *Orchestrator) skipAll(plans []productPlan, reason string, report *Report) {
	for _, p := range plans {
		for _, pair := range p.pairs {
			report.add(Outcome{
				Seq: o.seq.Next(), ProductID: p.productID, Store: pair.store, Action: ActionSkip,
				From: rawStatus(pair.fields), GID: pair.fields.GID, Reason: reason,
			})
		}
	}
}

func (o *Orchestrator) runProduct(ctx context.Context, planned productPlan, quota *productQuota, report *Report, log *zap.Logger) error {
	log = log.With(zap.String("product_id", planned.productID))

	if !o.guard.TryAcquire(planned.productID) {
		log.Info("product already in flight, skipping")
		o.skipAll([]productPlan{planned}, ReasonInFlight, report)
		return nil
	}
	defer o.guard.Release(planned.productID)

	p, err := o.replan(ctx, planned, report)
	if err != nil {
		return err
	}
	if len(p.pairs) == 0 {
		log.Info("row changed since planning, nothing left to do")
		return nil
	}
	if !quota.Take() {
		o.skipAll([]productPlan{p}, ReasonQuota, report)
		return nil
	}
	report.Processed++

	done := false
	for i, pair := range p.pairs {
		if ctx.Err() != nil {
			o.skipAll([]productPlan{{productID: p.productID, pairs: p.pairs[i:]}}, ReasonCancelled, report)
			return nil
		}
		out, err := o.runPair(ctx, p.productID, pair, log.With(zap.String("store", pair.store)))
		if err != nil {
			report.add(out)
			return err
		}
		if out.To != "" && status.MustParse(out.To).Phase == status.PhaseDone {
			done = true
			if o.finalize(ctx, p.productID, pair.store, out.GID, log) {
				report.Finalized = append(report.Finalized, p.productID+"/"+pair.store)
			}
		}
		report.add(out)
	}

	if !done {
		return nil
	}
	moved, err := o.ledger.ArchiveIfComplete(context.WithoutCancel(ctx), p.productID)
	if err != nil {
		return ledgerError(p.productID, "", "archive", err)
	}
	if moved {
		report.Archived = append(report.Archived, p.productID)
	}
	return nil
}

// replan re-reads the product's row and decides each planned pair again, so
// work finished by an overlapping run is not repeated.
func (o *Orchestrator) replan(ctx context.Context, planned productPlan, report *Report) (productPlan, error) {
	fresh := productPlan{productID: planned.productID}

	rec, err := o.ledger.Find(ctx, planned.productID)
	if errors.Is(err, ledger.ErrNotFound) {
		o.skipAll([]productPlan{planned}, ReasonNotInLedger, report)
		return fresh, nil
	}
	if err != nil {
		return fresh, ledgerError(planned.productID, "", "re-read row", err)
	}

	for _, pair := range planned.pairs {
		f := rec.Store(pair.store)
		action, reason := decide(f)
		if action == ActionSkip {
			report.add(Outcome{
				Seq: o.seq.Next(), ProductID: planned.productID, Store: pair.store, Action: ActionSkip,
				From: rawStatus(f), GID: f.GID, Reason: reason,
			})
			continue
		}
		fresh.pairs = append(fresh.pairs, pairPlan{store: pair.store, action: action, fields: f})
	}
	return fresh, nil
}

// pairRun tracks one pair through its phases so a panic can still be
// recorded against the last written status.
type pairRun struct {
	o         *Orchestrator
	productID string
	store     string
	cur       status.Status
	gid       string
	log       *zap.Logger

	// cause is why the pair failed, when it did.
	cause error
}

// runPair drives one pair from its planned action to the end of the
// translation phase. Only ledger failures are returned as errors.
func (o *Orchestrator) runPair(ctx context.Context, productID string, pair pairPlan, log *zap.Logger) (out Outcome, err error) {
	work := context.WithoutCancel(ctx)
	r := &pairRun{o: o, productID: productID, store: pair.store, cur: pair.fields.Status, gid: pair.fields.GID, log: log}
	out = Outcome{
		Seq:       o.seq.Next(),
		ProductID: productID,
		Store:     pair.store,
		Action:    pair.action,
		From:      rawStatus(pair.fields),
	}

	defer func() {
		if rec := recover(); rec != nil {
			cause := fmt.Errorf("panic: %v", rec)
			log.Error("pair processing panicked", zap.Error(cause), zap.Stack("stack"))
			out.Error = cause.Error()
			exc := status.Of(status.PhaseErrorException)
			if status.CanTransition(r.cur, exc) {
				err = r.write(work, exc, "", "")
			}
			out.To, out.GID = r.cur.String(), r.gid
		}
	}()

	err = r.run(work, pair.action)
	out.To, out.GID = r.cur.String(), r.gid
	if r.cause != nil {
		out.Error = r.cause.Error()
	}
	return out, err
}

// run records a pair failure in r.cause and returns only ledger errors,
// which must abort the run.
func (r *pairRun) run(ctx context.Context, action Action) error {
	o := r.o
	t := o.targets[r.store]

	switch action {
	case ActionClone:
		res := o.cloner.Clone(ctx, o.source, t.Platform, replicate.Request{
			SourceProductID: r.productID,
			StoreKey:        r.store,
			Multiplier:      t.Multiplier,
		})
		if err := r.write(ctx, status.Of(res.Phase), res.GID, res.Title); err != nil {
			return r.fail(err)
		}
		if res.Phase != status.PhaseCloned {
			r.cause = res.Err
			return nil
		}
	case ActionResume:
		res := o.cloner.Finish(ctx, t.Platform, r.gid, t.Multiplier)
		if err := r.write(ctx, status.Of(res.Phase), res.GID, res.Title); err != nil {
			return r.fail(err)
		}
		if res.Phase != status.PhaseCloned {
			r.cause = res.Err
			return nil
		}
	}

	if r.gid == "" {
		missing := status.Of(status.PhaseErrorCloneMissing)
		if err := r.write(ctx, missing, "", ""); err != nil {
			return r.fail(err)
		}
		r.cause = fmt.Errorf("%s is CLONED without a GID", r.store)
		return nil
	}

	res := o.localizer.Localize(ctx, t.Platform, translate.Request{
		GID:             r.gid,
		SourceProductID: r.productID,
		SourceLang:      o.sourceLang,
		TargetLang:      t.Language,
		Instruction:     o.instruction,
	})
	to := status.Of(res.Phase)
	if res.Phase == status.PhaseDone {
		to = status.Done(ledger.Suffix(r.store))
	}
	if err := r.write(ctx, to, "", res.Title); err != nil {
		return r.fail(err)
	}
	r.cause = res.Err
	return nil
}

// write records a status change after checking it against the transition graph.
func (r *pairRun) write(ctx context.Context, to status.Status, gid, title string) error {
	if !status.CanTransition(r.cur, to) {
		return &RunError{
			Code:      ErrCodeTransition,
			Message:   fmt.Sprintf("refusing %s -> %s, %s moves to %v", r.cur, to, r.cur.Phase, status.Next(r.cur.Phase)),
			ProductID: r.productID,
			Store:     r.store,
		}
	}
	err := r.o.ledger.UpdateStore(ctx, r.productID, r.store, ledger.Update{Status: to, GID: gid, Title: title})
	if err != nil {
		return ledgerError(r.productID, r.store, "write status "+to.String(), err)
	}
	r.log.Info("status written", zap.String("from", r.cur.String()), zap.String("status", to.String()), zap.String("gid", gid))
	r.cur = to
	if gid != "" {
		r.gid = gid
	}
	return nil
}

// fail turns a rejected transition into a pair failure and passes any other
// error through as fatal.
func (r *pairRun) fail(err error) error {
	if IsTransitionError(err) {
		r.log.Error("status transition rejected", zap.Error(err))
		r.cause = err
		return nil
	}
	return err
}

// finalize adds a translated clone to its store's collection. Failures are
// logged and do not change the pair's status.
func (o *Orchestrator) finalize(ctx context.Context, productID, storeKey, gid string, log *zap.Logger) bool {
	t := o.targets[storeKey]
	if t.CollectionID == "" || gid == "" {
		return false
	}
	err := o.retry.Do(context.WithoutCancel(ctx), "engine.add_to_collection", func(ctx context.Context) error {
		return t.Platform.AddToCollection(ctx, commerce.ProductIDFromGID(gid), t.CollectionID)
	})
	switch {
	case err == nil, errors.Is(err, commerce.ErrAlreadyInCollection):
		log.Debug("added to collection", zap.String("collection_id", t.CollectionID))
		return true
	default:
		log.Warn("add to collection failed", zap.String("product_id", productID), zap.String("collection_id", t.CollectionID), zap.Error(err))
		return false
	}
}

func rawStatus(f ledger.StoreFields) string {
	if f.Invalid {
		return f.RawStatus
	}
	return f.Status.String()
}

func isBlockingString(s string) bool {
	if s == "" {
		return false
	}
	st, err := status.Parse(s)
	if err != nil {
		return true
	}
	return st.IsBlocking()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
