package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/config"
	"github.com/roach88/storeclone/internal/discovery"
	"github.com/roach88/storeclone/internal/engine"
	"github.com/roach88/storeclone/internal/ledger"
	"github.com/roach88/storeclone/internal/logging"
	"github.com/roach88/storeclone/internal/replicate"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/shopify"
	"github.com/roach88/storeclone/internal/store"
	"github.com/roach88/storeclone/internal/translate"
)

// Platform is a store client that can also list orders.
type Platform interface {
	commerce.Platform
	commerce.OrderSource
}

// Deps are the collaborators commands are built from. Tests replace them.
type Deps struct {
	// Connect returns the client for one store.
	Connect func(storeURL, token string, src config.SourceConfig, logger *zap.Logger) (Platform, error)

	// Translators returns the provider registered for each method.
	Translators func(cfg *config.Config) (translate.Providers, error)

	Getenv func(string) string
	Now    func() time.Time

	// Sleep replaces waits between retries and between products.
	Sleep func(context.Context, time.Duration) error

	// LogWriter receives logs instead of the configured output when set.
	LogWriter io.Writer
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Connect == nil {
		out.Connect = connectShopify
	}
	if out.Translators == nil {
		out.Translators = defaultTranslators
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

func connectShopify(storeURL, token string, src config.SourceConfig, logger *zap.Logger) (Platform, error) {
	return shopify.New(shopify.Config{
		StoreURL:   storeURL,
		Token:      token,
		APIVersion: src.APIVersion,
		Timeout:    src.Timeout,
	}, shopify.WithLogger(logger))
}

// defaultTranslators registers the in-process providers. Only the
// dictionary provider ships with the binary.
func defaultTranslators(cfg *config.Config) (translate.Providers, error) {
	providers := translate.Providers{}
	if cfg.Translation.Dictionary != "" {
		d, err := translate.LoadDictionary(cfg.Translation.Dictionary)
		if err != nil {
			return nil, err
		}
		providers[commerce.MethodDictionary] = d
	}
	return providers, nil
}

// app is the per-command environment: configuration, logger and ledger.
type app struct {
	deps    *Deps
	cfg     *config.Config
	catalog *config.Catalog
	logger  *zap.Logger
	retry   *retry.Policy
	ledger  *ledger.Ledger
	closers []func() error
}

// openApp loads configuration and opens the ledger. full validates every
// section; ledger maintenance commands pass false and skip the source
// store settings.
func openApp(opts *RootOptions, full bool) (a *app, err error) {
	a = &app{deps: opts.deps}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if full {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateLedger()
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	if opts.deps.LogWriter != nil {
		a.logger, err = logging.NewWriter(opts.deps.LogWriter, cfg.Log.Format, level)
	} else {
		var closeLog func() error
		a.logger, closeLog, err = logging.New(logging.Config{Level: level, Format: cfg.Log.Format, Output: cfg.Log.Output})
		if closeLog != nil {
			a.closers = append(a.closers, closeLog)
		}
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}

	a.catalog, err = config.LoadCatalog(cfg.StoresFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load store catalog", err)
	}
	schema, err := ledger.NewSchema(a.catalog.Keys())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build ledger schema", err)
	}

	retryOpts := []retry.Option{
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithBaseDelay(cfg.Retry.BaseDelay),
		retry.WithMaxDelay(cfg.Retry.MaxDelay),
		retry.WithLogger(a.logger.Named("retry")),
	}
	if opts.deps.Sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleep(opts.deps.Sleep))
	}
	a.retry = retry.New(retryOpts...)

	st, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger", err)
	}
	a.closers = append(a.closers, st.Close)

	a.ledger = ledger.New(st, schema,
		ledger.WithRetry(a.retry),
		ledger.WithSheets(cfg.Ledger.Sheet, cfg.Ledger.ArchiveSheet),
		ledger.WithLogger(a.logger.Named("ledger")),
	)
	return a, nil
}

// Close releases the ledger and flushes the logger, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) source() (Platform, error) {
	p, err := a.deps.Connect(a.cfg.Source.URL, a.cfg.Source.Token, a.cfg.Source, a.logger.Named("source"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "connect source store", err)
	}
	return p, nil
}

func (a *app) discoverer(src commerce.OrderSource) *discovery.Discoverer {
	return discovery.New(src,
		discovery.WithRetry(a.retry),
		discovery.WithLogger(a.logger.Named("discovery")),
	)
}

// targets connects every catalog store.
func (a *app) targets() ([]engine.Target, error) {
	out := make([]engine.Target, 0, len(a.catalog.Stores))
	for _, s := range a.catalog.Stores {
		token, err := s.ResolveToken(a.deps.Getenv)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "resolve store token", err)
		}
		p, err := a.deps.Connect(s.URL, token, a.cfg.Source, a.logger.Named(s.Key))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("connect %s", s.Key), err)
		}
		out = append(out, engine.Target{
			Key:          s.Key,
			Language:     s.Language,
			Multiplier:   s.Multiplier(),
			CollectionID: s.CollectionID,
			Platform:     p,
		})
	}
	return out, nil
}

// orchestrator wires the full pipeline.
func (a *app) orchestrator() (*engine.Orchestrator, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	targets, err := a.targets()
	if err != nil {
		return nil, err
	}

	methods, err := a.cfg.TranslateMethods()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	providers, err := a.deps.Translators(a.cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load translation providers", err)
	}
	if missing, ok := providers.Supports(methods.List()...); !ok {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("no translation provider for method %q; adjust run.methods", missing))
	}

	opts := []engine.Option{
		engine.WithDiscoverer(a.discoverer(src)),
		engine.WithCloner(replicate.New(
			replicate.WithRetry(a.retry),
			replicate.WithLogger(a.logger.Named("replicate")),
		)),
		engine.WithLocalizer(translate.NewLocalizer(providers,
			translate.WithMethods(methods),
			translate.WithRetry(a.retry),
			translate.WithLogger(a.logger.Named("translate")),
		)),
		engine.WithRetry(a.retry),
		engine.WithLogger(a.logger.Named("engine")),
		engine.WithNow(a.deps.Now),
		engine.WithProductDelay(a.cfg.Run.ProductDelay),
		engine.WithMaxProducts(a.cfg.Run.MaxProducts),
		engine.WithSourceLanguage(a.cfg.Run.SourceLanguage),
		engine.WithInstruction(a.cfg.Run.Instruction),
	}
	if a.deps.Sleep != nil {
		opts = append(opts, engine.WithSleep(a.deps.Sleep))
	}

	orch, err := engine.New(a.ledger, src, providers, targets, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build orchestrator", err)
	}
	return orch, nil
}

// window returns the discovery window from --from/--to, or the configured
// number of days ending yesterday.
func (a *app) window(from, to string) (discovery.Window, error) {
	switch {
	case from == "" && to == "":
		return discovery.LastDays(a.deps.Now(), a.cfg.Run.WindowDays), nil
	case from == "" || to == "":
		return discovery.Window{}, NewExitError(ExitCommandError, "--from and --to must be given together")
	}
	w, err := discovery.NewWindow(from, to)
	if err != nil {
		return discovery.Window{}, WrapExitError(ExitCommandError, "invalid window", err)
	}
	return w, nil
}
