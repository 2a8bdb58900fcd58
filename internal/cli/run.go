package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ProductIDs    []string
	Stores        []string
	From          string
	To            string
	MinSales      int
	SkipDiscovery bool
	MaxProducts   int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, replicate and translate products",
		Long: `Run one pass of the pipeline.

Without --product-id the run first adds products sold in the discovery
window to the ledger, then works through every active ledger row. Each
(product, store) pair is cloned, priced and translated according to its
ledger status; finished rows are moved to the archive sheet.

Examples:
  storeclone run
  storeclone run --from 2024-03-04 --to 2024-03-10 --min-sales 3
  storeclone run --product-id 7654321 --store store_es`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ProductIDs, "product-id", nil, "only process these product ids (skips discovery)")
	cmd.Flags().StringSliceVar(&opts.Stores, "store", nil, "only process these store keys")
	cmd.Flags().StringVar(&opts.From, "from", "", "discovery window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "discovery window end, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.MinSales, "min-sales", 0, "minimum units sold (default from config)")
	cmd.Flags().BoolVar(&opts.SkipDiscovery, "skip-discovery", false, "only work through rows already in the ledger")
	cmd.Flags().IntVar(&opts.MaxProducts, "max-products", -1, "stop after this many products (default from config, 0 = unlimited)")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	a, err := openApp(opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.MaxProducts >= 0 {
		a.cfg.Run.MaxProducts = opts.MaxProducts
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	req := engine.RunRequest{
		ProductIDs:    opts.ProductIDs,
		Stores:        opts.Stores,
		MinSales:      a.cfg.Run.MinSales,
		SkipDiscovery: opts.SkipDiscovery,
	}
	if opts.MinSales > 0 {
		req.MinSales = opts.MinSales
	}
	if !opts.SkipDiscovery && len(opts.ProductIDs) == 0 {
		if req.Window, err = a.window(opts.From, opts.To); err != nil {
			return err
		}
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, finishing current product", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	report, runErr := orch.Run(ctx, req)
	if err := opts.formatter(cmd).Success(reportView{report}); err != nil {
		return err
	}

	switch {
	case runErr == nil:
	case engine.IsConfigError(runErr):
		return WrapExitError(ExitCommandError, "run aborted", runErr)
	case errors.Is(runErr, context.Canceled):
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	default:
		return WrapExitError(ExitFailure, "run aborted", runErr)
	}

	if report.HasFailures() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d product/store pairs failed", report.Failed))
	}
	return nil
}
