// Package discovery finds products worth cloning by aggregating paid orders
// of the source store over a date window.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/retry"
)

// PageLimit is the number of orders requested per page.
const PageLimit = 250

// DefaultWindowDays is the length of the weekly discovery window.
const DefaultWindowDays = 7

// maxPages bounds pagination in case a source keeps returning cursors.
const maxPages = 10000

// Window is an inclusive range of calendar days in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow parses YYYY-MM-DD dates.
func NewWindow(from, to string) (Window, error) {
	f, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return Window{}, fmt.Errorf("parse from date: %w", err)
	}
	t, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return Window{}, fmt.Errorf("parse to date: %w", err)
	}
	w := Window{From: f, To: t}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// LastDays returns the window of n days ending yesterday, relative to now.
func LastDays(now time.Time, n int) Window {
	today := now.UTC().Truncate(24 * time.Hour)
	return Window{
		From: today.AddDate(0, 0, -n),
		To:   today.AddDate(0, 0, -1),
	}
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if w.To.Before(w.From) {
		return fmt.Errorf("window ends (%s) before it starts (%s)", w.To.Format(time.DateOnly), w.From.Format(time.DateOnly))
	}
	return nil
}

// Start is 00:00:00 UTC of the first day.
func (w Window) Start() time.Time {
	y, m, d := w.From.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// End is 23:59:59 UTC of the last day.
func (w Window) End() time.Time {
	y, m, d := w.To.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func (w Window) String() string {
	return w.From.Format(time.DateOnly) + ".." + w.To.Format(time.DateOnly)
}

// Discoverer aggregates sold products from an order source.
type Discoverer struct {
	source commerce.OrderSource
	retry  *retry.Policy
	logger *zap.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithRetry sets the retry policy used for each page request.
func WithRetry(p *retry.Policy) Option {
	return func(d *Discoverer) { d.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Discoverer) { d.logger = l }
}

// New creates a Discoverer.
func New(source commerce.OrderSource, opts ...Option) *Discoverer {
	d := &Discoverer{
		source: source,
		retry:  retry.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type key struct {
	productID string
	title     string
}

// SoldProducts returns products with at least minSales units sold in paid
// orders inside w. Sales are summed per (product id, line item title). Line
// items without a product id are ignored. Results are ordered by sales count
// descending, then product id.
func (d *Discoverer) SoldProducts(ctx context.Context, w Window, minSales int) ([]commerce.SoldProduct, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if minSales < 1 {
		minSales = 1
	}

	q := commerce.OrderQuery{
		CreatedAtMin:    w.Start(),
		CreatedAtMax:    w.End(),
		FinancialStatus: "paid",
		Limit:           PageLimit,
	}

	counts := make(map[key]int)
	orders := 0
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, errors.New("discovery: too many order pages")
		}
		res, err := retry.Value(ctx, d.retry, "discovery.list_orders", func(ctx context.Context) (commerce.OrderPage, error) {
			return d.source.ListOrders(ctx, q)
		})
		if err != nil {
			return nil, fmt.Errorf("discovery: list orders page %d: %w", page, err)
		}

		for _, o := range res.Orders {
			orders++
			for _, li := range o.LineItems {
				id := strings.TrimSpace(li.ProductID)
				if id == "" {
					continue
				}
				counts[key{productID: id, title: li.Title}] += li.Quantity
			}
		}
		d.logger.Debug("fetched order page", zap.Int("page", page), zap.Int("orders", len(res.Orders)))

		if res.NextPageInfo == "" {
			break
		}
		q.PageInfo = res.NextPageInfo
	}

	out := make([]commerce.SoldProduct, 0, len(counts))
	for k, n := range counts {
		if n < minSales {
			continue
		}
		out = append(out, commerce.SoldProduct{ProductID: k.productID, Title: k.title, SalesCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SalesCount != out[j].SalesCount {
			return out[i].SalesCount > out[j].SalesCount
		}
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Title < out[j].Title
	})

	d.logger.Info("discovery complete",
		zap.Stringer("window", w),
		zap.Int("orders", orders),
		zap.Int("min_sales", minSales),
		zap.Int("products", len(out)),
	)
	return out, nil
}
