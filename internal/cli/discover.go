package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/storeclone/internal/commerce"
)

// DiscoverOptions holds flags for the discover command.
type DiscoverOptions struct {
	*RootOptions
	From     string
	To       string
	MinSales int
	Add      bool
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiscoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List products sold in the discovery window",
		Long: `Aggregate paid orders of the source store and list every product that
sold at least --min-sales units. With --add the products are appended to
the ledger as PENDING for every store, skipping ids already in the ledger
or the archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "window end, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.MinSales, "min-sales", 0, "minimum units sold (default from config)")
	cmd.Flags().BoolVar(&opts.Add, "add", false, "append new products to the ledger")

	return cmd
}

type discoverResult struct {
	Window   string                 `json:"window"`
	MinSales int                    `json:"min_sales"`
	Products []commerce.SoldProduct `json:"products"`
	Added    []string               `json:"added,omitempty"`
	add      bool
}

func (r discoverResult) renderText(w io.Writer) error {
	fmt.Fprintf(w, "Window %s, at least %d sold: %d products\n", r.Window, r.MinSales, len(r.Products))
	if len(r.Products) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PRODUCT\tSOLD\tTITLE")
		for _, p := range r.Products {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", p.ProductID, p.SalesCount, p.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if r.add {
		fmt.Fprintf(w, "Added %d new products to the ledger\n", len(r.Added))
	}
	return nil
}

func runDiscover(cmd *cobra.Command, opts *DiscoverOptions) error {
	a, err := openApp(opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.window(opts.From, opts.To)
	if err != nil {
		return err
	}
	minSales := a.cfg.Run.MinSales
	if opts.MinSales > 0 {
		minSales = opts.MinSales
	}

	src, err := a.source()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	products, err := a.discoverer(src).SoldProducts(ctx, w, minSales)
	if err != nil {
		return WrapExitError(ExitFailure, "discover products", err)
	}

	res := discoverResult{Window: w.String(), MinSales: minSales, Products: products, add: opts.Add}
	if opts.Add {
		if _, err := a.ledger.EnsureHeader(ctx); err != nil {
			return WrapExitError(ExitFailure, "prepare ledger", err)
		}
		if res.Added, err = a.ledger.AddCandidates(ctx, products); err != nil {
			return WrapExitError(ExitFailure, "add candidates", err)
		}
	}
	return opts.formatter(cmd).Success(res)
}
