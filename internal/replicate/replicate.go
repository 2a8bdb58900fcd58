// Package replicate implements the replication phase: it copies a source
// product into a target store, verifies the copy and applies the store's
// price multiplier.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/pricing"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
	"github.com/roach88/storeclone/internal/translate"
)

// Request describes one clone job.
type Request struct {
	SourceProductID string
	StoreKey        string
	Multiplier      decimal.Decimal
}

// Outcome is the result of one clone job. GID is set whenever a product was
// created in the target store, even if a later step failed.
type Outcome struct {
	Phase  status.Phase
	GID    string
	Title  string
	Handle string
	Err    error
}

// Cloner runs the replication phase.
type Cloner struct {
	retry  *retry.Policy
	logger *zap.Logger
}

// Option configures a Cloner.
type Option func(*Cloner)

// WithRetry sets the retry policy for platform calls.
func WithRetry(p *retry.Policy) Option {
	return func(c *Cloner) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cloner) { c.logger = logger }
}

// New creates a Cloner.
func New(opts ...Option) *Cloner {
	c := &Cloner{retry: retry.New(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone copies req.SourceProductID from source into target.
//
// The target handle is derived from the source title and id, so a re-run
// computes the same handle and stops at SKIPPED_HANDLE_EXISTS instead of
// creating a duplicate.
func (c *Cloner) Clone(ctx context.Context, source, target commerce.Platform, req Request) Outcome {
	log := c.logger.With(zap.String("product_id", req.SourceProductID), zap.String("store", req.StoreKey))

	src, err := retry.Value(ctx, c.retry, "replicate.fetch_source", func(ctx context.Context) (*commerce.Product, error) {
		return source.FetchProduct(ctx, req.SourceProductID)
	})
	if err != nil {
		log.Warn("source fetch failed", zap.Error(err))
		return Outcome{Phase: status.PhaseErrorFetchingSource, Err: fmt.Errorf("fetch source %s: %w", req.SourceProductID, err)}
	}
	if strings.TrimSpace(src.Title) == "" {
		return Outcome{Phase: status.PhaseErrorMissingData, Err: fmt.Errorf("source %s has no title", req.SourceProductID)}
	}

	handle := translate.Handle(src.Title, req.SourceProductID)

	existing, err := c.lookupHandle(ctx, target, handle)
	switch {
	case err != nil:
		return Outcome{Phase: status.PhaseErrorCloning, Handle: handle, Err: fmt.Errorf("check handle %s: %w", handle, err)}
	case existing != nil:
		log.Info("handle already exists in target", zap.String("handle", handle), zap.String("gid", existing.GID))
		return Outcome{Phase: status.PhaseSkippedHandleExists, Handle: handle}
	}

	payload := clonePayload(src, handle)

	// A retried create first checks whether the previous attempt landed.
	attempt := 0
	created, err := retry.Value(ctx, c.retry, "replicate.create", func(ctx context.Context) (commerce.Created, error) {
		attempt++
		if attempt > 1 {
			if p, err := c.lookupHandle(ctx, target, handle); err == nil && p != nil {
				return commerce.Created{ID: p.ID, GID: p.GID, Handle: p.Handle}, nil
			}
		}
		return target.CreateProduct(ctx, payload)
	})
	if err != nil {
		log.Warn("create failed", zap.Error(err))
		return Outcome{Phase: status.PhaseErrorCloning, Handle: handle, Err: fmt.Errorf("create clone of %s: %w", req.SourceProductID, err)}
	}
	gid := created.GID
	if gid == "" {
		gid = commerce.ProductGID(created.ID)
	}
	log.Info("clone created", zap.String("gid", gid), zap.String("handle", created.Handle))

	out := c.Finish(ctx, target, gid, req.Multiplier)
	out.Title = payload.Title
	if out.Handle == "" {
		out.Handle = handle
	}
	return out
}

// Finish verifies that gid is retrievable from target and applies the price
// multiplier to its variants. Prices are set absolutely, so Finish can be
// re-run on a clone whose previous run stopped halfway.
func (c *Cloner) Finish(ctx context.Context, target commerce.Platform, gid string, multiplier decimal.Decimal) Outcome {
	log := c.logger.With(zap.String("gid", gid))

	clone, err := retry.Value(ctx, c.retry, "replicate.verify", func(ctx context.Context) (*commerce.Product, error) {
		return target.FetchProduct(ctx, gid)
	})
	switch {
	case errors.Is(err, commerce.ErrNotFound):
		log.Warn("clone not retrievable")
		return Outcome{Phase: status.PhaseErrorCloneMissing, GID: gid, Err: fmt.Errorf("verify %s: %w", gid, err)}
	case err != nil:
		return Outcome{Phase: status.PhaseErrorCloning, GID: gid, Err: fmt.Errorf("verify %s: %w", gid, err)}
	}

	out := Outcome{Phase: status.PhaseCloned, GID: gid, Title: clone.Title, Handle: clone.Handle}

	if !pricing.NeedsAdjustment(multiplier) {
		return out
	}
	if err := c.applyPrices(ctx, target, clone.Variants, multiplier); err != nil {
		log.Warn("price update failed", zap.Error(err))
		out.Phase = status.PhaseErrorCloning
		out.Err = fmt.Errorf("price %s: %w", gid, err)
	}
	return out
}

func (c *Cloner) applyPrices(ctx context.Context, target commerce.Platform, variants []commerce.Variant, multiplier decimal.Decimal) error {
	var errs []error
	for _, v := range variants {
		q, err := pricing.Transform(v.Price, multiplier)
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", v.ID, err))
			continue
		}
		err = c.retry.Do(ctx, "replicate.update_price", func(ctx context.Context) error {
			return target.UpdateVariantPrice(ctx, v.ID, q.PriceString(), q.CompareAtString())
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", v.ID, err))
			continue
		}
		c.logger.Debug("variant priced",
			zap.String("variant_id", v.ID),
			zap.String("from", v.Price),
			zap.String("price", q.PriceString()),
			zap.String("compare_at", q.CompareAtString()),
		)
	}
	return errors.Join(errs...)
}

// lookupHandle returns the target product with handle, or nil when there is none.
func (c *Cloner) lookupHandle(ctx context.Context, target commerce.Platform, handle string) (*commerce.Product, error) {
	p, err := retry.Value(ctx, c.retry, "replicate.lookup_handle", func(ctx context.Context) (*commerce.Product, error) {
		return target.FetchProduct(ctx, handle)
	})
	if errors.Is(err, commerce.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Handle != handle {
		return nil, nil
	}
	return p, nil
}

// clonePayload builds the create request for a copy of src.
func clonePayload(src *commerce.Product, handle string) commerce.Product {
	out := commerce.Product{
		Handle:      handle,
		Title:       src.Title,
		BodyHTML:    src.BodyHTML,
		Vendor:      src.Vendor,
		ProductType: src.ProductType,
		Tags:        commerce.WithTag(src.Tags, commerce.CloneMarkerTag),
		Status:      "active",
	}
	for _, o := range src.Options {
		out.Options = append(out.Options, commerce.Option{Name: o.Name, Values: append([]string(nil), o.Values...)})
	}
	for _, v := range src.Variants {
		v.ID = ""
		v.CompareAtPrice = ""
		out.Variants = append(out.Variants, v)
	}
	for _, img := range src.Images {
		out.Images = append(out.Images, commerce.Image{Src: img.Src, Alt: img.Alt})
	}
	return out
}
