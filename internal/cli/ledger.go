package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/storeclone/internal/ledger"
	"github.com/roach88/storeclone/internal/status"
)

// NewLedgerCommand creates the ledger maintenance command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair the ledger",
	}
	cmd.AddCommand(newLedgerInitCommand(rootOpts))
	cmd.AddCommand(newLedgerListCommand(rootOpts))
	cmd.AddCommand(newLedgerArchiveCommand(rootOpts))
	cmd.AddCommand(newLedgerResetCommand(rootOpts))
	cmd.AddCommand(newLedgerRemoveCommand(rootOpts))
	return cmd
}

func newLedgerInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create both sheets and write the header for the configured stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			header, err := a.ledger.EnsureHeader(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "initialize ledger", err)
			}
			return opts.formatter(cmd).Success(listView{Title: "Ledger columns", Items: header})
		},
	}
}

func newLedgerListCommand(opts *RootOptions) *cobra.Command {
	var archived bool
	var stores []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show ledger rows and their per-store status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			schema := a.ledger.Schema()
			for _, s := range stores {
				if !schema.Has(s) {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q", s))
				}
			}
			if len(stores) == 0 {
				stores = schema.Stores()
			}

			var recs []ledger.Record
			if archived {
				recs, err = a.ledger.Archived(cmd.Context())
			} else {
				recs, err = a.ledger.Records(cmd.Context())
			}
			if err != nil {
				return WrapExitError(ExitFailure, "read ledger", err)
			}
			return opts.formatter(cmd).Success(recordsView{Stores: stores, Records: recs})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list the archive sheet instead")
	cmd.Flags().StringSliceVar(&stores, "store", nil, "only show these stores")
	return cmd
}

func newLedgerArchiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move every completed row to the archive sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.ledger.ArchiveCompleted(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "archive", err)
			}
			return opts.formatter(cmd).Success(listView{Title: "Archived", Items: ids, Empty: "Nothing to archive."})
		},
	}
}

type resetResult struct {
	ProductID  string `json:"product_id"`
	Store      string `json:"store"`
	From       string `json:"from"`
	To         string `json:"to"`
	ClearClone bool   `json:"clear_clone"`
}

func (r resetResult) String() string {
	s := fmt.Sprintf("%s/%s: %s -> %s", r.ProductID, r.Store, r.From, r.To)
	if r.ClearClone {
		s += " (clone cleared)"
	}
	return s
}

func newLedgerResetCommand(opts *RootOptions) *cobra.Command {
	var storeKey string
	var clearClone bool

	cmd := &cobra.Command{
		Use:   "reset <product-id>",
		Short: "Put a failed or skipped product/store pair back to PENDING",
		Long: `Reset is the manual intervention path for pairs in an ERROR_* or SKIPPED_*
status. The next run picks the pair up again: with a recorded clone GID it
re-verifies and re-prices that clone, otherwise it clones from scratch.
Use --clear-clone after deleting a broken clone from the target store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			prev, err := a.ledger.Reset(cmd.Context(), args[0], storeKey, clearClone)
			switch {
			case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrUnknownStore), errors.Is(err, ledger.ErrNotResettable):
				return WrapExitError(ExitCommandError, "reset", err)
			case err != nil:
				return WrapExitError(ExitFailure, "reset", err)
			}
			return opts.formatter(cmd).Success(resetResult{
				ProductID:  args[0],
				Store:      storeKey,
				From:       prev.String(),
				To:         status.Pending.String(),
				ClearClone: clearClone,
			})
		},
	}
	cmd.Flags().StringVar(&storeKey, "store", "", "store key (required)")
	cmd.Flags().BoolVar(&clearClone, "clear-clone", false, "also clear the recorded clone GID and title")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func newLedgerRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Delete a product's active ledger row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ledger.Remove(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					return WrapExitError(ExitCommandError, "remove", err)
				}
				return WrapExitError(ExitFailure, "remove", err)
			}
			return opts.formatter(cmd).Success(fmt.Sprintf("Removed %s", args[0]))
		},
	}
}
