// Package ledger is the durable record of per-product, per-store progress.
//
// The ledger lives on two sheets of a Backend: the active sheet and the
// archive sheet, both laid out by a Schema. Every Backend call goes through
// the retry policy; nothing else in the engine talks to the Backend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
)

// Default sheet names.
const (
	DefaultSheet        = "Sheet1"
	DefaultArchiveSheet = "Sheet2"
)

var (
	// ErrNotFound is returned when no active row has the product id.
	ErrNotFound = errors.New("product not in ledger")

	// ErrUnknownStore is returned for store keys outside the schema.
	ErrUnknownStore = errors.New("store not in ledger schema")

	// ErrNotResettable is returned when resetting a pair that is not blocked.
	ErrNotResettable = errors.New("status cannot be reset")
)

// Backend is the tabular storage behind the ledger. Row numbers are 1-based
// with row 1 holding the header. *store.Store implements it.
//
// Row writes carry the product id the row was located by. A backend refuses
// the write when the row's first cell no longer matches, returning an error
// with a RowMoved() bool method that reports true.
type Backend interface {
	EnsureSheet(ctx context.Context, name string) error
	ReadAll(ctx context.Context, sheet string) ([]string, [][]string, error)
	WriteHeader(ctx context.Context, sheet string, header []string) error
	UpdateCells(ctx context.Context, sheet string, row int, key string, cells map[int]string) error
	AppendRows(ctx context.Context, sheet string, rows [][]string) error
	DeleteRow(ctx context.Context, sheet string, row int, key string) error
	MoveRows(ctx context.Context, from, to string, rows []int, keys []string) error
}

// locateAttempts bounds how often a row write is retried after the row moved.
const locateAttempts = 3

// Ledger reads and writes product records.
type Ledger struct {
	backend Backend
	schema  Schema
	retry   *retry.Policy
	sheet   string
	archive string
	logger  *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetry sets the retry policy for backend calls.
func WithRetry(p *retry.Policy) Option {
	return func(l *Ledger) { l.retry = p }
}

// WithSheets overrides the active and archive sheet names.
func WithSheets(active, archive string) Option {
	return func(l *Ledger) {
		if active != "" {
			l.sheet = active
		}
		if archive != "" {
			l.archive = archive
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger over backend.
func New(backend Backend, schema Schema, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		schema:  schema,
		retry:   retry.New(),
		sheet:   DefaultSheet,
		archive: DefaultArchiveSheet,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Schema returns the ledger layout.
func (l *Ledger) Schema() Schema {
	return l.schema
}

// EnsureHeader makes sure both sheets exist and carry the expected header,
// rewriting mismatched headers. It returns the header now in place.
func (l *Ledger) EnsureHeader(ctx context.Context) ([]string, error) {
	want := l.schema.Header()
	for _, sheet := range []string{l.sheet, l.archive} {
		if err := l.retry.Do(ctx, "ledger.ensure_sheet", func(ctx context.Context) error {
			return l.backend.EnsureSheet(ctx, sheet)
		}); err != nil {
			return nil, fmt.Errorf("ensure header: %w", err)
		}

		header, _, err := l.readAll(ctx, sheet)
		if err != nil {
			return nil, fmt.Errorf("ensure header: %w", err)
		}
		if l.schema.Matches(header) {
			continue
		}

		l.logger.Warn("ledger header mismatch, rewriting",
			zap.String("sheet", sheet),
			zap.Strings("found", header),
			zap.Strings("expected", want),
		)
		if err := l.retry.Do(ctx, "ledger.write_header", func(ctx context.Context) error {
			return l.backend.WriteHeader(ctx, sheet, want)
		}); err != nil {
			return nil, fmt.Errorf("ensure header: %w", err)
		}
	}
	return want, nil
}

// Records returns every active row with a product id.
func (l *Ledger) Records(ctx context.Context) ([]Record, error) {
	return l.records(ctx, l.sheet)
}

// Archived returns every archived row with a product id.
func (l *Ledger) Archived(ctx context.Context) ([]Record, error) {
	return l.records(ctx, l.archive)
}

// Find re-reads the active sheet and returns the row for productID.
func (l *Ledger) Find(ctx context.Context, productID string) (Record, error) {
	recs, err := l.Records(ctx)
	if err != nil {
		return Record{}, err
	}
	id := strings.TrimSpace(productID)
	for _, r := range recs {
		if r.ProductID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
}

// Update is a change to one store's status triple.
type Update struct {
	Status status.Status

	// GID and Title are written only when non-empty.
	GID   string
	Title string

	// ClearClone blanks GID and Title.
	ClearClone bool
}

// UpdateStore writes one store's fields for productID as a single batched
// write. The row is located by re-reading the sheet immediately before the
// write, and the write is refused if another writer shifted the row since.
func (l *Ledger) UpdateStore(ctx context.Context, productID, storeKey string, u Update) error {
	cols, ok := l.schema.Columns(storeKey)
	if !ok {
		return fmt.Errorf("update %s: %w: %s", productID, ErrUnknownStore, storeKey)
	}

	cells := map[int]string{cols.Status: u.Status.String()}
	switch {
	case u.ClearClone:
		cells[cols.GID] = ""
		cells[cols.Title] = ""
	default:
		if u.GID != "" {
			cells[cols.GID] = u.GID
		}
		if u.Title != "" {
			cells[cols.Title] = u.Title
		}
	}

	err := l.withRow(ctx, productID, func(rec Record) error {
		return l.retry.Do(ctx, "ledger.update_cells", func(ctx context.Context) error {
			return l.backend.UpdateCells(ctx, l.sheet, rec.Row, rec.ProductID, cells)
		})
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", productID, err)
	}

	l.logger.Debug("ledger updated",
		zap.String("product_id", productID),
		zap.String("store", storeKey),
		zap.String("status", u.Status.String()),
		zap.String("gid", u.GID),
	)
	return nil
}

// AddCandidates appends a PENDING row for every product that is neither
// active nor archived. It returns the ids that were added.
func (l *Ledger) AddCandidates(ctx context.Context, products []commerce.SoldProduct) ([]string, error) {
	if len(products) == 0 {
		return nil, nil
	}

	known, err := l.knownIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("add candidates: %w", err)
	}

	var (
		rows  [][]string
		added []string
	)
	for _, p := range products {
		id := strings.TrimSpace(p.ProductID)
		if id == "" || known[id] {
			continue
		}
		known[id] = true
		p.ProductID = id
		rows = append(rows, encodeCandidate(l.schema, p))
		added = append(added, id)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := l.retry.Do(ctx, "ledger.append_rows", func(ctx context.Context) error {
		return l.backend.AppendRows(ctx, l.sheet, rows)
	}); err != nil {
		return nil, fmt.Errorf("add candidates: %w", err)
	}

	l.logger.Info("added ledger rows", zap.Int("count", len(added)))
	return added, nil
}

// ArchiveIfComplete moves productID's row to the archive when every store is
// terminal-success. It reports whether the row moved.
func (l *Ledger) ArchiveIfComplete(ctx context.Context, productID string) (bool, error) {
	moved := false
	err := l.withRow(ctx, productID, func(rec Record) error {
		if !rec.Complete(l.schema) {
			return nil
		}
		if err := l.move(ctx, []int{rec.Row}, []string{rec.ProductID}); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("archive %s: %w", productID, err)
	}
	if moved {
		l.logger.Info("archived product", zap.String("product_id", productID))
	}
	return moved, nil
}

// ArchiveCompleted moves every complete row to the archive in one atomic
// move and returns the moved product ids.
func (l *Ledger) ArchiveCompleted(ctx context.Context) ([]string, error) {
	var err error
	for attempt := 0; attempt < locateAttempts; attempt++ {
		var recs []Record
		if recs, err = l.Records(ctx); err != nil {
			return nil, fmt.Errorf("archive completed: %w", err)
		}

		var (
			rows []int
			ids  []string
		)
		for _, r := range recs {
			if r.Complete(l.schema) {
				rows = append(rows, r.Row)
				ids = append(ids, r.ProductID)
			}
		}
		if len(rows) == 0 {
			return nil, nil
		}
		if err = l.move(ctx, rows, ids); isRowMoved(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("archive completed: %w", err)
		}
		l.logger.Info("archived completed products", zap.Int("count", len(ids)))
		return ids, nil
	}
	return nil, fmt.Errorf("archive completed: %w", err)
}

// Reset puts a blocked (product, store) pair back to PENDING so the next run
// retries it. clearClone also blanks the recorded GID and title. It returns
// the status that was replaced.
func (l *Ledger) Reset(ctx context.Context, productID, storeKey string, clearClone bool) (status.Status, error) {
	if !l.schema.Has(storeKey) {
		return status.Status{}, fmt.Errorf("reset %s: %w: %s", productID, ErrUnknownStore, storeKey)
	}
	rec, err := l.Find(ctx, productID)
	if err != nil {
		return status.Status{}, fmt.Errorf("reset %s: %w", productID, err)
	}

	f := rec.Store(storeKey)
	if !f.Invalid && !status.CanReset(f.Status) {
		return f.Status, fmt.Errorf("reset %s/%s: %w: %s", productID, storeKey, ErrNotResettable, f.Status)
	}

	if err := l.UpdateStore(ctx, productID, storeKey, Update{Status: status.Pending, ClearClone: clearClone}); err != nil {
		return f.Status, err
	}
	return f.Status, nil
}

// Remove deletes productID's active row.
func (l *Ledger) Remove(ctx context.Context, productID string) error {
	err := l.withRow(ctx, productID, func(rec Record) error {
		return l.retry.Do(ctx, "ledger.delete_row", func(ctx context.Context) error {
			return l.backend.DeleteRow(ctx, l.sheet, rec.Row, rec.ProductID)
		})
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", productID, err)
	}
	return nil
}

// withRow locates productID's row and runs fn on it, locating it again when
// fn fails because the row moved in between.
func (l *Ledger) withRow(ctx context.Context, productID string, fn func(Record) error) error {
	var err error
	for attempt := 0; attempt < locateAttempts; attempt++ {
		var rec Record
		if rec, err = l.Find(ctx, productID); err != nil {
			return err
		}
		if err = fn(rec); !isRowMoved(err) {
			return err
		}
		l.logger.Debug("ledger row moved, locating again", zap.String("product_id", productID), zap.Error(err))
	}
	return err
}

func isRowMoved(err error) bool {
	var moved interface{ RowMoved() bool }
	return errors.As(err, &moved) && moved.RowMoved()
}

func (l *Ledger) move(ctx context.Context, rows []int, keys []string) error {
	return l.retry.Do(ctx, "ledger.move_rows", func(ctx context.Context) error {
		return l.backend.MoveRows(ctx, l.sheet, l.archive, rows, keys)
	})
}

func (l *Ledger) readAll(ctx context.Context, sheet string) ([]string, [][]string, error) {
	var (
		header []string
		rows   [][]string
	)
	err := l.retry.Do(ctx, "ledger.read_all", func(ctx context.Context) error {
		var err error
		header, rows, err = l.backend.ReadAll(ctx, sheet)
		return err
	})
	return header, rows, err
}

func (l *Ledger) records(ctx context.Context, sheet string) ([]Record, error) {
	_, rows, err := l.readAll(ctx, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := decodeRecord(l.schema, i+2, row)
		if rec.ProductID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (l *Ledger) knownIDs(ctx context.Context) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, sheet := range []string{l.sheet, l.archive} {
		recs, err := l.records(ctx, sheet)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			known[r.ProductID] = true
		}
	}
	return known, nil
}
