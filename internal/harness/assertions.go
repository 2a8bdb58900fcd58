package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/ledger"
)

// AssertionError is a failed assertion with what was expected and found.
type AssertionError struct {
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func mismatch(expected, actual string) error {
	return &AssertionError{Expected: expected, Actual: actual}
}

func (h *harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertStatus:
		rec, err := h.record(ctx, a.ProductID)
		if err != nil {
			return err
		}
		if got := rec.Store(a.Store).RawStatus; got != a.Expect {
			return mismatch(a.Expect, quoteOr(got, "blank"))
		}
	case AssertArchived, AssertNotArchived:
		archived, err := h.isArchived(ctx, a.ProductID)
		if err != nil {
			return err
		}
		want := a.Type == AssertArchived
		if archived != want {
			return mismatch(fmt.Sprintf("archived=%t", want), fmt.Sprintf("archived=%t", archived))
		}
	case AssertProductCount:
		if got := len(h.targets[a.Store].Products()); got != *a.Count {
			return mismatch(fmt.Sprintf("%d products", *a.Count), fmt.Sprintf("%d", got))
		}
	case AssertProduct:
		return h.checkProduct(ctx, a)
	case AssertCollection:
		return h.checkCollection(ctx, a)
	}
	return nil
}

// record finds a product in the active sheet, then in the archive.
func (h *harness) record(ctx context.Context, productID string) (ledger.Record, error) {
	rec, err := h.ledger.Find(ctx, productID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Record{}, err
	}
	archived, err := h.ledger.Archived(ctx)
	if err != nil {
		return ledger.Record{}, err
	}
	for _, r := range archived {
		if r.ProductID == productID {
			return r, nil
		}
	}
	return ledger.Record{}, mismatch("ledger row "+productID, "none")
}

func (h *harness) isArchived(ctx context.Context, productID string) (bool, error) {
	archived, err := h.ledger.Archived(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range archived {
		if r.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (h *harness) clone(ctx context.Context, a Assertion) (commerce.Product, error) {
	rec, err := h.record(ctx, a.ProductID)
	if err != nil {
		return commerce.Product{}, err
	}
	gid := rec.Store(a.Store).GID
	if gid == "" {
		return commerce.Product{}, mismatch("a clone GID for "+a.ProductID+"/"+a.Store, "none")
	}
	p, ok := h.targets[a.Store].Product(gid)
	if !ok {
		return commerce.Product{}, mismatch(gid+" in "+a.Store, "missing")
	}
	return p, nil
}

func (h *harness) checkProduct(ctx context.Context, a Assertion) error {
	p, err := h.clone(ctx, a)
	if err != nil {
		return err
	}
	var errs []error
	if a.Handle != "" && p.Handle != a.Handle {
		errs = append(errs, mismatch("handle "+a.Handle, p.Handle))
	}
	if a.Title != "" && p.Title != a.Title {
		errs = append(errs, mismatch("title "+quoteOr(a.Title, ""), quoteOr(p.Title, "blank")))
	}
	if a.Tags != nil && !slices.Equal(p.Tags, a.Tags) {
		errs = append(errs, mismatch(fmt.Sprintf("tags %q", a.Tags), fmt.Sprintf("%q", p.Tags)))
	}
	if a.Prices != nil {
		prices := make([]string, len(p.Variants))
		for i, v := range p.Variants {
			prices[i] = v.Price
		}
		if !slices.Equal(prices, a.Prices) {
			errs = append(errs, mismatch(fmt.Sprintf("prices %v", a.Prices), fmt.Sprintf("%v", prices)))
		}
	}
	return errors.Join(errs...)
}

func (h *harness) checkCollection(ctx context.Context, a Assertion) error {
	var collection string
	for _, s := range h.scenario.Stores {
		if s.Key == a.Store {
			collection = s.CollectionID
		}
	}
	members := h.targets[a.Store].Collection(collection)
	if a.Contains == nil && a.ProductID != "" {
		p, err := h.clone(ctx, a)
		if err != nil {
			return err
		}
		if !slices.Contains(members, p.ID) {
			return mismatch(p.ID+" in collection "+collection, fmt.Sprintf("%v", members))
		}
		return nil
	}
	for _, id := range a.Contains {
		if !slices.Contains(members, id) {
			return mismatch(id+" in collection "+collection, fmt.Sprintf("%v", members))
		}
	}
	return nil
}

func quoteOr(s, blank string) string {
	if s == "" {
		return blank
	}
	return fmt.Sprintf("%q", s)
}
