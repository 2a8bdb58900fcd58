package ledger

import (
	"strconv"
	"strings"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/status"
)

// StoreFields is one store's status triple on a ledger row.
type StoreFields struct {
	Status      status.Status
	RawStatus   string
	GID         string
	ClonedTitle string

	// Invalid is set when RawStatus could not be parsed. Such pairs are
	// treated as blocking until someone fixes the cell.
	Invalid bool
}

// Blocking reports whether automated runs must leave the pair alone.
func (f StoreFields) Blocking() bool {
	return f.Invalid || f.Status.IsBlocking()
}

// TerminalSuccess reports whether the store's work is complete.
func (f StoreFields) TerminalSuccess() bool {
	return !f.Invalid && f.Status.IsTerminalSuccess()
}

// Record is a decoded ledger row.
type Record struct {
	// Row is the sheet row number (data rows start at 2).
	Row        int
	ProductID  string
	Title      string
	SalesCount int
	Stores     map[string]StoreFields
}

// Store returns the fields for a store key.
func (r Record) Store(key string) StoreFields {
	return r.Stores[key]
}

// Complete reports whether every configured store is terminal-success.
func (r Record) Complete(schema Schema) bool {
	for _, key := range schema.stores {
		if !r.Stores[key].TerminalSuccess() {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func decodeRecord(schema Schema, rowNum int, row []string) Record {
	rec := Record{
		Row:       rowNum,
		ProductID: cell(row, ColProductID),
		Title:     cell(row, ColTitle),
		Stores:    make(map[string]StoreFields, len(schema.stores)),
	}
	rec.SalesCount, _ = strconv.Atoi(cell(row, ColSales))

	for _, key := range schema.stores {
		cols, _ := schema.Columns(key)
		f := StoreFields{
			RawStatus:   cell(row, cols.Status),
			GID:         cell(row, cols.GID),
			ClonedTitle: cell(row, cols.Title),
		}
		st, err := status.Parse(f.RawStatus)
		if err != nil {
			f.Invalid = true
		} else {
			f.Status = st
		}
		rec.Stores[key] = f
	}
	return rec
}

func encodeCandidate(schema Schema, p commerce.SoldProduct) []string {
	row := make([]string, schema.Width())
	row[ColProductID] = p.ProductID
	row[ColTitle] = p.Title
	row[ColSales] = strconv.Itoa(p.SalesCount)
	for _, key := range schema.stores {
		cols, _ := schema.Columns(key)
		row[cols.Status] = status.Pending.String()
	}
	return row
}
